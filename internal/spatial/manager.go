package spatial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pebblevault/internal/store"
	"pebblevault/internal/vlog"
)

// Manager is the top-level coordinator (§2, §4.1): region registry,
// object_index, cross-region transfer, and checkpoint/recovery
// orchestration. It is the only component that talks to BackingStore.
//
// Locking discipline (§5): mu protects regions and objectIndex. Each
// Region's own mu protects its index and uuid_map. Lock order is always
// manager first, then region(s); for two-region operations the region
// locks are taken in ascending region-id order.
type Manager struct {
	mu sync.RWMutex

	regions     map[uuid.UUID]*Region
	objectIndex map[uuid.UUID]uuid.UUID

	store store.BackingStore
	cfg   Config

	logger *log.Logger
	diag   *vlog.DiagLogger

	closeOnce sync.Once
}

// New opens or creates a BackingStore at cfg.StorePath and eagerly loads
// the region registry into memory with empty indices (§4.1, §4.4). Object
// data is not read until a region is touched.
func New(cfg Config, logger *log.Logger, diag *vlog.DiagLogger) (*Manager, error) {
	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, errStoreIO(err, "open backing store %s", cfg.StorePath)
	}
	return NewWithStore(cfg, st, logger, diag)
}

// NewWithStore is like New but takes an already-open BackingStore,
// primarily for tests that want an in-memory or fake store.
func NewWithStore(cfg Config, st store.BackingStore, logger *log.Logger, diag *vlog.DiagLogger) (*Manager, error) {
	if logger == nil {
		logger = log.New(logDiscard{}, "", 0)
	}
	m := &Manager{
		regions:     make(map[uuid.UUID]*Region),
		objectIndex: make(map[uuid.UUID]uuid.UUID),
		store:       st,
		cfg:         cfg,
		logger:      logger,
		diag:        diag,
	}

	ctx := context.Background()
	metas, err := st.ListRegions(ctx)
	if err != nil {
		st.Close()
		return nil, errStoreIO(err, "list regions")
	}
	for _, meta := range metas {
		m.regions[meta.ID] = newRegion(meta.ID, Point{meta.CX, meta.CY, meta.CZ}, meta.Radius)
	}
	return m, nil
}

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

// CreateOrLoadRegion returns the id of an existing region matching
// (center, radius) exactly, or allocates and persists a new one (§4.1,
// §4.4). Region identity uses bit-exact double equality by design (§9).
func (m *Manager) CreateOrLoadRegion(ctx context.Context, center Point, radius float64) (uuid.UUID, error) {
	if !center.finite() {
		return uuid.Nil, errInvalidArgument("region center must be finite, got %+v", center)
	}
	if !isFinite(radius) || radius <= 0 {
		return uuid.Nil, errInvalidArgument("region radius must be positive and finite, got %v", radius)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.regions {
		if r.center == center && r.radius == radius {
			return id, nil
		}
	}

	id := uuid.New()
	meta := store.RegionMeta{ID: id, CX: center.X, CY: center.Y, CZ: center.Z, Radius: radius}
	if err := m.store.UpsertRegion(ctx, meta); err != nil {
		return uuid.Nil, errStoreIO(err, "persist region %s", id)
	}
	m.regions[id] = newRegion(id, center, radius)
	return id, nil
}

// ensureLoaded performs the lazy-load protocol (§4.4, §4.6) for region,
// rehydrating its objects from BackingStore exactly once. It acquires the
// manager lock and then the region lock, in that order, independently of
// any lock the caller may be holding — callers must not hold either lock
// when calling this.
func (m *Manager) ensureLoaded(ctx context.Context, region *Region) error {
	region.mu.RLock()
	loaded := region.loaded
	region.mu.RUnlock()
	if loaded {
		return nil
	}

	m.mu.Lock()
	region.mu.Lock()

	if region.loaded {
		region.mu.Unlock()
		m.mu.Unlock()
		return nil
	}

	records, err := m.store.LoadObjects(ctx, region.id)
	if err != nil {
		region.mu.Unlock()
		m.mu.Unlock()
		return errStoreIO(err, "load objects for region %s", region.id)
	}

	entries := make([]bulkEntry, 0, len(records))
	skipped := 0
	var missingBlob string
	for _, rec := range records {
		obj := SpatialObject{
			UUID:       rec.UUID,
			ObjectType: rec.Type,
			Position:   Point{X: rec.X, Y: rec.Y, Z: rec.Z},
			RegionID:   region.id,
		}
		switch {
		case rec.PayloadRef != "":
			blobID, perr := uuid.Parse(rec.PayloadRef)
			if perr != nil {
				skipped++
				obj.CustomData = json.RawMessage("null")
				m.logger.Printf("region %s: object %s has malformed blob reference %q, loading with empty payload", region.id, rec.UUID, rec.PayloadRef)
				break
			}
			data, gerr := m.store.GetBlob(ctx, blobID)
			if gerr != nil {
				skipped++
				missingBlob = rec.PayloadRef
				obj.CustomData = json.RawMessage("null")
				m.logger.Printf("region %s: object %s missing blob %s: %v", region.id, rec.UUID, rec.PayloadRef, gerr)
			} else {
				obj.CustomData = json.RawMessage(data)
			}
		case len(rec.PayloadInline) > 0:
			obj.CustomData = json.RawMessage(rec.PayloadInline)
		default:
			obj.CustomData = json.RawMessage("null")
		}
		region.uuidMap[obj.UUID] = obj
		entries = append(entries, bulkEntry{ID: obj.UUID, Point: obj.Position})
		m.objectIndex[obj.UUID] = region.id
	}
	region.index.BulkLoad(entries)
	region.loaded = true

	region.mu.Unlock()
	m.mu.Unlock()

	if m.diag != nil {
		_ = m.diag.WriteRecovery(vlog.RecoveryEntry{
			Time:          time.Now().UTC().Format(time.RFC3339Nano),
			RegionID:      region.id.String(),
			ObjectCount:   len(entries),
			Degraded:      skipped > 0,
			SkippedCount:  skipped,
			MissingBlobID: missingBlob,
		})
	}
	return nil
}

// AddObject inserts a new object (§4.1). Precondition: region exists, uuid
// is not present anywhere in the manager, coordinates are finite.
func (m *Manager) AddObject(ctx context.Context, regionID, id uuid.UUID, objType string, pos Point, customData json.RawMessage) error {
	if !pos.finite() {
		return errInvalidArgument("object position must be finite, got %+v", pos)
	}

	m.mu.Lock()
	region, ok := m.regions[regionID]
	if !ok {
		m.mu.Unlock()
		return errNotFound("unknown region %s", regionID)
	}
	if owner, exists := m.objectIndex[id]; exists {
		m.mu.Unlock()
		if owner == regionID {
			return errInvalidArgument("object %s already present in region %s", id, regionID)
		}
		return errConflict("object %s already present in region %s", id, owner)
	}
	m.objectIndex[id] = regionID
	m.mu.Unlock()

	if err := m.ensureLoaded(ctx, region); err != nil {
		m.mu.Lock()
		delete(m.objectIndex, id)
		m.mu.Unlock()
		return err
	}

	if customData == nil {
		customData = json.RawMessage("null")
	}
	region.mu.Lock()
	region.add(SpatialObject{UUID: id, ObjectType: objType, Position: pos, CustomData: customData, RegionID: regionID})
	region.mu.Unlock()
	return nil
}

// GetObject looks up an object by uuid: O(1) via object_index, then
// O(log n) within its region. object_index only holds objects of regions
// loaded so far, so a miss loads every region and looks again.
func (m *Manager) GetObject(ctx context.Context, id uuid.UUID) (SpatialObject, error) {
	m.mu.RLock()
	regionID, ok := m.objectIndex[id]
	if !ok {
		regions := make([]*Region, 0, len(m.regions))
		for _, r := range m.regions {
			regions = append(regions, r)
		}
		m.mu.RUnlock()
		for _, r := range regions {
			if err := m.ensureLoaded(ctx, r); err != nil {
				return SpatialObject{}, err
			}
		}
		m.mu.RLock()
		regionID, ok = m.objectIndex[id]
	}
	if !ok {
		m.mu.RUnlock()
		return SpatialObject{}, errNotFound("unknown object %s", id)
	}
	region := m.regions[regionID]
	m.mu.RUnlock()

	if err := m.ensureLoaded(ctx, region); err != nil {
		return SpatialObject{}, err
	}

	region.mu.RLock()
	defer region.mu.RUnlock()
	obj, ok := region.uuidMap[id]
	if !ok {
		return SpatialObject{}, errNotFound("unknown object %s", id)
	}
	return obj.clone(), nil
}

// UpdateObject replaces the record matching obj.UUID. A position change is
// modeled as remove + insert into the index (§4.1, §9). Region membership
// is unchanged; use TransferPlayer to move an object between regions.
func (m *Manager) UpdateObject(ctx context.Context, obj SpatialObject) error {
	if !obj.Position.finite() {
		return errInvalidArgument("object position must be finite, got %+v", obj.Position)
	}

	m.mu.RLock()
	regionID, ok := m.objectIndex[obj.UUID]
	if !ok {
		m.mu.RUnlock()
		return errNotFound("unknown object %s", obj.UUID)
	}
	region := m.regions[regionID]
	m.mu.RUnlock()

	if err := m.ensureLoaded(ctx, region); err != nil {
		return err
	}

	obj.RegionID = regionID
	region.mu.Lock()
	defer region.mu.Unlock()
	if _, ok := region.update(obj); !ok {
		return errNotFound("unknown object %s", obj.UUID)
	}
	return nil
}

// QueryRegion returns every object in region whose point lies within the
// closed, normalized box spanning a and b (§4.1, P2).
func (m *Manager) QueryRegion(ctx context.Context, regionID uuid.UUID, a, b Point) ([]SpatialObject, error) {
	m.mu.RLock()
	region, ok := m.regions[regionID]
	m.mu.RUnlock()
	if !ok {
		return nil, errNotFound("unknown region %s", regionID)
	}

	if err := m.ensureLoaded(ctx, region); err != nil {
		return nil, err
	}

	box := NewBox(a, b)
	region.mu.RLock()
	defer region.mu.RUnlock()
	return region.queryBox(box), nil
}

// RemoveObject deletes an object from its region's index, uuid_map, and
// object_index (§4.1).
func (m *Manager) RemoveObject(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	regionID, ok := m.objectIndex[id]
	if !ok {
		m.mu.Unlock()
		return errNotFound("unknown object %s", id)
	}
	region := m.regions[regionID]
	delete(m.objectIndex, id)
	m.mu.Unlock()

	if err := m.ensureLoaded(ctx, region); err != nil {
		m.mu.Lock()
		m.objectIndex[id] = regionID
		m.mu.Unlock()
		return err
	}

	region.mu.Lock()
	_, removed := region.remove(id)
	region.mu.Unlock()
	if !removed {
		// object_index and region disagreed; restore invariant by
		// treating this as not-found rather than silently diverging.
		return errNotFound("unknown object %s", id)
	}
	return nil
}

// RemoveRegion deletes a region and every object it owns from memory and
// object_index. The backing store row is removed eagerly.
func (m *Manager) RemoveRegion(ctx context.Context, regionID uuid.UUID) error {
	m.mu.Lock()
	region, ok := m.regions[regionID]
	if !ok {
		m.mu.Unlock()
		return errNotFound("unknown region %s", regionID)
	}
	region.mu.RLock()
	owned := make([]uuid.UUID, 0, len(region.uuidMap))
	for id := range region.uuidMap {
		owned = append(owned, id)
	}
	region.mu.RUnlock()
	for _, id := range owned {
		delete(m.objectIndex, id)
	}
	delete(m.regions, regionID)
	m.mu.Unlock()

	if err := m.store.DeleteRegion(ctx, regionID); err != nil {
		return errStoreIO(err, "delete region %s", regionID)
	}
	return nil
}

// TransferPlayer atomically moves an object between regions, preserving
// its position and identity (§4.1, P5). Both region locks are held for
// the remove-then-insert so no reader observes the object in both regions
// or in neither.
func (m *Manager) TransferPlayer(ctx context.Context, id, fromRegionID, toRegionID uuid.UUID) error {
	if fromRegionID == toRegionID {
		return errInvalidArgument("source and destination region are identical (%s)", fromRegionID)
	}

	m.mu.RLock()
	from, fromOK := m.regions[fromRegionID]
	to, toOK := m.regions[toRegionID]
	m.mu.RUnlock()
	if !fromOK {
		return errNotFound("unknown region %s", fromRegionID)
	}
	if !toOK {
		return errNotFound("unknown region %s", toRegionID)
	}

	if err := m.ensureLoaded(ctx, from); err != nil {
		return err
	}
	if err := m.ensureLoaded(ctx, to); err != nil {
		return err
	}

	first, second := from, to
	if bytes.Compare(to.id[:], from.id[:]) < 0 {
		first, second = to, from
	}

	// Manager lock is held for the whole critical section so it is always
	// acquired before the region locks, never after, even though this
	// operation also needs to update object_index (a manager-owned map).
	m.mu.Lock()
	first.mu.Lock()
	second.mu.Lock()

	obj, ok := from.remove(id)
	if !ok {
		second.mu.Unlock()
		first.mu.Unlock()
		m.mu.Unlock()
		return errNotFound("object %s not present in region %s", id, fromRegionID)
	}
	obj.RegionID = toRegionID
	to.add(obj)
	m.objectIndex[id] = toRegionID

	second.mu.Unlock()
	first.mu.Unlock()
	m.mu.Unlock()
	return nil
}

// PersistToDisk checkpoints every dirty region to BackingStore (§4.5),
// clearing dirty only for regions whose commit fully succeeded. Errors are
// aggregated; one region's StoreIO failure does not stop others from
// checkpointing.
func (m *Manager) PersistToDisk(ctx context.Context) error {
	m.mu.RLock()
	regions := make([]*Region, 0, len(m.regions))
	for _, r := range m.regions {
		regions = append(regions, r)
	}
	m.mu.RUnlock()

	var errs []error
	for _, region := range regions {
		if err := m.checkpointRegion(ctx, region); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("persist_to_disk: %d region(s) failed: %w", len(errs), errs[0])
}

func (m *Manager) checkpointRegion(ctx context.Context, region *Region) error {
	start := time.Now()

	region.mu.Lock()
	if !region.dirty {
		region.mu.Unlock()
		return nil
	}
	objects := region.iterAll()
	tombstones := region.snapshotTombstones()
	region.mu.Unlock()

	records := make([]store.ObjectRecord, 0, len(objects))
	for _, obj := range objects {
		rec := store.ObjectRecord{
			UUID:     obj.UUID,
			RegionID: region.id,
			Type:     obj.ObjectType,
			X:        obj.Position.X,
			Y:        obj.Position.Y,
			Z:        obj.Position.Z,
		}
		if len(obj.CustomData) > m.cfg.OversizedPayloadThresholdBytes {
			if err := m.store.PutBlob(ctx, obj.UUID, obj.CustomData); err != nil {
				return errStoreIO(err, "externalize payload for object %s", obj.UUID)
			}
			rec.PayloadRef = obj.UUID.String()
		} else {
			rec.PayloadInline = []byte(obj.CustomData)
		}
		records = append(records, rec)
	}

	err := m.store.UpsertObjectsTx(ctx, region.id, records, tombstones)

	if m.diag != nil {
		entry := vlog.CheckpointEntry{
			Time:        time.Now().UTC().Format(time.RFC3339Nano),
			RegionID:    region.id.String(),
			ObjectCount: len(records),
			Tombstones:  len(tombstones),
			DurationMS:  time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Err = err.Error()
		}
		_ = m.diag.WriteCheckpoint(entry)
	}

	if err != nil {
		return errStoreIO(err, "checkpoint region %s", region.id)
	}

	region.mu.Lock()
	region.clearCheckpointState(tombstones)
	region.mu.Unlock()
	return nil
}

// Close releases the BackingStore handle. If cfg.CheckpointOnDrop is set,
// it first attempts a best-effort PersistToDisk; failures there are logged
// rather than returned, matching the teacher's own shutdown-flush idiom of
// not blocking process exit on a final flush failure.
func (m *Manager) Close(ctx context.Context) error {
	var closeErr error
	m.closeOnce.Do(func() {
		if m.cfg.CheckpointOnDrop {
			if err := m.PersistToDisk(ctx); err != nil {
				m.logger.Printf("checkpoint on close failed: %v", err)
			}
		}
		closeErr = m.store.Close()
	})
	return closeErr
}
