package spatial

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"pebblevault/internal/store"
)

func openRealManager(t *testing.T, path string) *Manager {
	t.Helper()
	st, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cfg := DefaultConfig(path)
	m, err := NewWithStore(cfg, st, nil, nil)
	if err != nil {
		t.Fatalf("NewWithStore: %v", err)
	}
	return m
}

// P4: after persist_to_disk and reopening on the same store path, the
// object set and their positions, types, and payloads are bitwise equal.
func TestPersistAndReopen_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	m1 := openRealManager(t, path)
	regionID := mustCreateRegion(t, m1, Point{0, 0, 0}, 200)

	type fixture struct {
		id      uuid.UUID
		objType string
		pos     Point
		payload json.RawMessage
	}
	fixtures := []fixture{
		{uuid.New(), "player", Point{10, 20, 30}, json.RawMessage(`"hello"`)},
		{uuid.New(), "building", Point{-5, 0, 5}, json.RawMessage(`{"hp":100}`)},
		{uuid.New(), "resource", Point{0, 0, 0}, json.RawMessage(`null`)},
	}
	for _, f := range fixtures {
		if err := m1.AddObject(ctx, regionID, f.id, f.objType, f.pos, f.payload); err != nil {
			t.Fatalf("AddObject: %v", err)
		}
	}

	if err := m1.PersistToDisk(ctx); err != nil {
		t.Fatalf("PersistToDisk: %v", err)
	}
	if err := m1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := openRealManager(t, path)
	for _, f := range fixtures {
		obj, err := m2.GetObject(ctx, f.id)
		if err != nil {
			t.Fatalf("GetObject(%v) after reopen: %v", f.id, err)
		}
		if obj.Position != f.pos || obj.ObjectType != f.objType {
			t.Fatalf("mismatch for %v: got %+v want pos=%+v type=%s", f.id, obj, f.pos, f.objType)
		}
		if !bytes.Equal(obj.CustomData, f.payload) {
			t.Fatalf("payload mismatch for %v: got %s want %s", f.id, obj.CustomData, f.payload)
		}
	}
}

// Scenario 6: a 2 MiB payload is externalized to a side file and comes
// back bitwise equal after persist + reopen.
func TestPersistAndReopen_OversizedPayload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	m1 := openRealManager(t, path)
	regionID := mustCreateRegion(t, m1, Point{0, 0, 0}, 200)

	objID := uuid.New()
	big := bytes.Repeat([]byte("a"), 2*1024*1024)
	payload, err := json.Marshal(string(big))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := m1.AddObject(ctx, regionID, objID, "blob", Point{1, 1, 1}, payload); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if err := m1.PersistToDisk(ctx); err != nil {
		t.Fatalf("PersistToDisk: %v", err)
	}
	if err := m1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := openRealManager(t, path)
	obj, err := m2.GetObject(ctx, objID)
	if err != nil {
		t.Fatalf("GetObject after reopen: %v", err)
	}
	if !bytes.Equal(obj.CustomData, payload) {
		t.Fatalf("oversized payload mismatch: got %d bytes, want %d", len(obj.CustomData), len(payload))
	}
}

// Tombstones: a removed object does not reappear after persist + reopen.
func TestPersistAndReopen_TombstonedObjectStaysDeleted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	m1 := openRealManager(t, path)
	regionID := mustCreateRegion(t, m1, Point{0, 0, 0}, 200)
	keep := uuid.New()
	gone := uuid.New()
	m1.AddObject(ctx, regionID, keep, "x", Point{1, 1, 1}, json.RawMessage(`null`))
	m1.AddObject(ctx, regionID, gone, "x", Point{2, 2, 2}, json.RawMessage(`null`))
	if err := m1.PersistToDisk(ctx); err != nil {
		t.Fatalf("initial PersistToDisk: %v", err)
	}

	if err := m1.RemoveObject(ctx, gone); err != nil {
		t.Fatalf("RemoveObject: %v", err)
	}
	if err := m1.PersistToDisk(ctx); err != nil {
		t.Fatalf("PersistToDisk after remove: %v", err)
	}
	if err := m1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := openRealManager(t, path)
	if _, err := m2.GetObject(ctx, keep); err != nil {
		t.Fatalf("expected kept object to survive: %v", err)
	}
	if _, err := m2.GetObject(ctx, gone); err == nil {
		t.Fatalf("expected removed object to stay deleted after reopen")
	}
}
