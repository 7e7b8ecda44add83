package spatial

import (
	"sync"

	"github.com/google/uuid"
)

// Region is a named spatial domain owning one SpatialIndex and an
// auxiliary UUID map for O(log n) identity lookups (§3, §4.3). All
// operations assume single-writer access serialized by the caller
// (VaultManager) per §5 — Region itself only supplies the lock, it does
// not decide lock ordering across regions.
type Region struct {
	mu sync.RWMutex

	id     uuid.UUID
	center Point
	radius float64

	index   *SpatialIndex
	uuidMap map[uuid.UUID]SpatialObject

	dirty      bool
	tombstones map[uuid.UUID]struct{}

	loaded bool // objects have been read from BackingStore at least once
}

// newRegion constructs an empty, unloaded region. Objects are populated
// later by load (lazy, §4.4) or by direct add calls.
func newRegion(id uuid.UUID, center Point, radius float64) *Region {
	return &Region{
		id:         id,
		center:     center,
		radius:     radius,
		index:      NewSpatialIndex(),
		uuidMap:    make(map[uuid.UUID]SpatialObject),
		tombstones: make(map[uuid.UUID]struct{}),
	}
}

// ID, Center, and Radius expose the region's identity; they never change
// after construction.
func (r *Region) ID() uuid.UUID   { return r.id }
func (r *Region) Center() Point   { return r.center }
func (r *Region) Radius() float64 { return r.radius }

// add inserts obj into the index and uuid_map. Caller holds r.mu for
// writing and has already verified the UUID is not present anywhere in the
// manager.
func (r *Region) add(obj SpatialObject) {
	r.uuidMap[obj.UUID] = obj
	r.index.Insert(obj.UUID, obj.Position)
	delete(r.tombstones, obj.UUID)
	r.dirty = true
}

// remove deletes obj's UUID from the index and uuid_map. Reports whether
// the UUID was present.
func (r *Region) remove(id uuid.UUID) (SpatialObject, bool) {
	obj, ok := r.uuidMap[id]
	if !ok {
		return SpatialObject{}, false
	}
	r.index.Remove(obj.UUID, obj.Position)
	delete(r.uuidMap, id)
	r.tombstones[id] = struct{}{}
	r.dirty = true
	return obj, true
}

// update replaces the record for obj.UUID. If the position changed, the
// index entry is removed and reinserted rather than moved in place (§4.1,
// §9 "No in-place point update"). Reports whether the UUID was present.
func (r *Region) update(obj SpatialObject) (SpatialObject, bool) {
	old, ok := r.uuidMap[obj.UUID]
	if !ok {
		return SpatialObject{}, false
	}
	if old.Position != obj.Position {
		r.index.Remove(old.UUID, old.Position)
		r.index.Insert(obj.UUID, obj.Position)
	}
	r.uuidMap[obj.UUID] = obj
	r.dirty = true
	return old, true
}

// queryBox returns every object in the region whose point lies within box.
func (r *Region) queryBox(box Box) []SpatialObject {
	ids := r.index.Intersects(box)
	out := make([]SpatialObject, 0, len(ids))
	for _, id := range ids {
		if obj, ok := r.uuidMap[uuid.UUID(id)]; ok {
			out = append(out, obj)
		}
	}
	return out
}

// iterAll returns every object currently resident in the region. Used by
// the checkpoint protocol to snapshot uuid_map under the write lock.
func (r *Region) iterAll() []SpatialObject {
	out := make([]SpatialObject, 0, len(r.uuidMap))
	for _, obj := range r.uuidMap {
		out = append(out, obj)
	}
	return out
}

// containsUUID reports whether id is present in this region's uuid_map.
func (r *Region) containsUUID(id uuid.UUID) bool {
	_, ok := r.uuidMap[id]
	return ok
}

// snapshotTombstones returns a copy of the pending-delete set and does not
// clear it; clearing happens only after a successful checkpoint commit.
func (r *Region) snapshotTombstones() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.tombstones))
	for id := range r.tombstones {
		out = append(out, id)
	}
	return out
}

// clearCheckpointState marks the region clean and drops the tombstones
// that were just committed. Called only after a successful transaction.
func (r *Region) clearCheckpointState(committedTombstones []uuid.UUID) {
	r.dirty = false
	for _, id := range committedTombstones {
		delete(r.tombstones, id)
	}
}
