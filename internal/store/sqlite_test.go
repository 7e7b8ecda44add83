package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_RegionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	meta := RegionMeta{ID: uuid.New(), CX: 1, CY: 2, CZ: 3, Radius: 50}
	if err := st.UpsertRegion(ctx, meta); err != nil {
		t.Fatalf("UpsertRegion: %v", err)
	}

	regions, err := st.ListRegions(ctx)
	if err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	if len(regions) != 1 || regions[0].ID != meta.ID || regions[0].Radius != 50 {
		t.Fatalf("unexpected regions: %+v", regions)
	}

	if err := st.DeleteRegion(ctx, meta.ID); err != nil {
		t.Fatalf("DeleteRegion: %v", err)
	}
	regions, err = st.ListRegions(ctx)
	if err != nil {
		t.Fatalf("ListRegions after delete: %v", err)
	}
	if len(regions) != 0 {
		t.Fatalf("expected no regions after delete, got %+v", regions)
	}
}

func TestSQLiteStore_ObjectUpsertAndTombstone(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	regionID := uuid.New()
	if err := st.UpsertRegion(ctx, RegionMeta{ID: regionID, Radius: 10}); err != nil {
		t.Fatalf("UpsertRegion: %v", err)
	}

	objID := uuid.New()
	rec := ObjectRecord{UUID: objID, RegionID: regionID, Type: "player", X: 1, Y: 2, Z: 3, PayloadInline: []byte(`"hi"`)}
	if err := st.UpsertObjectsTx(ctx, regionID, []ObjectRecord{rec}, nil); err != nil {
		t.Fatalf("UpsertObjectsTx: %v", err)
	}

	loaded, err := st.LoadObjects(ctx, regionID)
	if err != nil {
		t.Fatalf("LoadObjects: %v", err)
	}
	if len(loaded) != 1 || loaded[0].UUID != objID || string(loaded[0].PayloadInline) != `"hi"` {
		t.Fatalf("unexpected loaded objects: %+v", loaded)
	}

	if err := st.UpsertObjectsTx(ctx, regionID, nil, []uuid.UUID{objID}); err != nil {
		t.Fatalf("tombstone delete: %v", err)
	}
	loaded, err = st.LoadObjects(ctx, regionID)
	if err != nil {
		t.Fatalf("LoadObjects after tombstone: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected object to be deleted, got %+v", loaded)
	}
}

func TestSQLiteStore_BlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	id := uuid.New()
	payload := bytes.Repeat([]byte("x"), 2*1024*1024) // 2 MiB, scenario 6
	if err := st.PutBlob(ctx, id, payload); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	got, err := st.GetBlob(ctx, id)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("blob round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestSQLiteStore_ObjectsWithinRadius(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	regionID := uuid.New()
	st.UpsertRegion(ctx, RegionMeta{ID: regionID, Radius: 100})

	near := ObjectRecord{UUID: uuid.New(), RegionID: regionID, Type: "x", X: 1, Y: 0, Z: 0}
	far := ObjectRecord{UUID: uuid.New(), RegionID: regionID, Type: "x", X: 500, Y: 0, Z: 0}
	st.UpsertObjectsTx(ctx, regionID, []ObjectRecord{near, far}, nil)

	got, err := st.ObjectsWithinRadius(ctx, regionID, 0, 0, 0, 10)
	if err != nil {
		t.Fatalf("ObjectsWithinRadius: %v", err)
	}
	if len(got) != 1 || got[0].UUID != near.UUID {
		t.Fatalf("expected only the near object, got %+v", got)
	}
}
