package spatial

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pebblevault/internal/store"
)

// fakeStore is an in-memory BackingStore used by manager tests that don't
// need to exercise the real SQLite adapter.
type fakeStore struct {
	mu      sync.Mutex
	regions map[uuid.UUID]store.RegionMeta
	objects map[uuid.UUID]map[uuid.UUID]store.ObjectRecord // regionID -> uuid -> record
	blobs   map[uuid.UUID][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		regions: make(map[uuid.UUID]store.RegionMeta),
		objects: make(map[uuid.UUID]map[uuid.UUID]store.ObjectRecord),
		blobs:   make(map[uuid.UUID][]byte),
	}
}

func (f *fakeStore) ListRegions(ctx context.Context) ([]store.RegionMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.RegionMeta, 0, len(f.regions))
	for _, m := range f.regions {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) UpsertRegion(ctx context.Context, meta store.RegionMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions[meta.ID] = meta
	if _, ok := f.objects[meta.ID]; !ok {
		f.objects[meta.ID] = make(map[uuid.UUID]store.ObjectRecord)
	}
	return nil
}

func (f *fakeStore) DeleteRegion(ctx context.Context, regionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.regions, regionID)
	delete(f.objects, regionID)
	return nil
}

func (f *fakeStore) LoadObjects(ctx context.Context, regionID uuid.UUID) ([]store.ObjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ObjectRecord
	for _, rec := range f.objects[regionID] {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) UpsertObjectsTx(ctx context.Context, regionID uuid.UUID, records []store.ObjectRecord, tombstones []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.objects[regionID]
	if !ok {
		bucket = make(map[uuid.UUID]store.ObjectRecord)
		f.objects[regionID] = bucket
	}
	for _, rec := range records {
		bucket[rec.UUID] = rec
	}
	for _, id := range tombstones {
		delete(bucket, id)
	}
	return nil
}

func (f *fakeStore) PutBlob(ctx context.Context, id uuid.UUID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.blobs[id] = cp
	return nil
}

func (f *fakeStore) GetBlob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", id)
	}
	return data, nil
}

func (f *fakeStore) ObjectsWithinRadius(ctx context.Context, regionID uuid.UUID, cx, cy, cz, radius float64) ([]store.ObjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ObjectRecord
	r2 := radius * radius
	for _, rec := range f.objects[regionID] {
		dx, dy, dz := rec.X-cx, rec.Y-cy, rec.Z-cz
		if dx*dx+dy*dy+dz*dz <= r2 {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }
