package spatial

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func bruteForceIntersects(entries map[[16]byte]Point, box Box) map[[16]byte]bool {
	out := make(map[[16]byte]bool)
	for id, p := range entries {
		if box.Contains(p) {
			out[id] = true
		}
	}
	return out
}

func TestSpatialIndex_InsertQueryMatchesBruteForce(t *testing.T) {
	idx := NewSpatialIndex()
	entries := make(map[[16]byte]Point)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		id := [16]byte(uuid.New())
		p := Point{
			X: rng.Float64()*1000 - 500,
			Y: rng.Float64()*1000 - 500,
			Z: rng.Float64()*1000 - 500,
		}
		idx.Insert(id, p)
		entries[id] = p
	}

	box := NewBox(Point{-100, -100, -100}, Point{100, 100, 100})
	got := idx.Intersects(box)
	want := bruteForceIntersects(entries, box)

	if len(got) != len(want) {
		t.Fatalf("count mismatch: got %d want %d", len(got), len(want))
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("false positive: %v not in expected set", id)
		}
	}
}

func TestSpatialIndex_RemoveThenQueryExcludes(t *testing.T) {
	idx := NewSpatialIndex()
	id := [16]byte(uuid.New())
	p := Point{1, 2, 3}
	idx.Insert(id, p)

	box := NewBox(Point{0, 0, 0}, Point{10, 10, 10})
	if got := idx.Intersects(box); len(got) != 1 {
		t.Fatalf("expected 1 entry before removal, got %d", len(got))
	}

	if !idx.Remove(id, p) {
		t.Fatalf("Remove reported not found")
	}
	if got := idx.Intersects(box); len(got) != 0 {
		t.Fatalf("expected 0 entries after removal, got %d", len(got))
	}
	if idx.Len() != 0 {
		t.Fatalf("expected Len() == 0, got %d", idx.Len())
	}
}

func TestSpatialIndex_DuplicateCoordinatesDeleteByUUID(t *testing.T) {
	idx := NewSpatialIndex()
	p := Point{5, 5, 5}
	a := [16]byte(uuid.New())
	b := [16]byte(uuid.New())
	idx.Insert(a, p)
	idx.Insert(b, p)

	if idx.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", idx.Len())
	}
	if !idx.Remove(a, p) {
		t.Fatalf("failed to remove a")
	}
	got := idx.Intersects(NewBox(p, p))
	if len(got) != 1 || got[0] != b {
		t.Fatalf("expected only b to remain, got %v", got)
	}
}

func TestSpatialIndex_MinEqualsMaxReturnsExactPoint(t *testing.T) {
	idx := NewSpatialIndex()
	id := [16]byte(uuid.New())
	p := Point{7, 8, 9}
	idx.Insert(id, p)

	got := idx.Intersects(NewBox(p, p))
	if len(got) != 1 || got[0] != id {
		t.Fatalf("expected exact point match, got %v", got)
	}
}

func TestSpatialIndex_BulkLoadMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	entries := make(map[[16]byte]Point)
	bulk := make([]bulkEntry, 0, 5000)
	for i := 0; i < 5000; i++ {
		id := [16]byte(uuid.New())
		p := Point{
			X: rng.Float64()*1000 - 500,
			Y: rng.Float64()*1000 - 500,
			Z: rng.Float64()*1000 - 500,
		}
		entries[id] = p
		bulk = append(bulk, bulkEntry{ID: id, Point: p})
	}

	idx := NewSpatialIndex()
	idx.BulkLoad(bulk)
	if idx.Len() != len(entries) {
		t.Fatalf("count mismatch after bulk load: got %d want %d", idx.Len(), len(entries))
	}

	box := NewBox(Point{-200, -200, -200}, Point{200, 200, 200})
	got := idx.Intersects(box)
	want := bruteForceIntersects(entries, box)
	if len(got) != len(want) {
		t.Fatalf("bulk-loaded query count mismatch: got %d want %d", len(got), len(want))
	}
}

func TestNewBox_NormalizesReversedBounds(t *testing.T) {
	b := NewBox(Point{10, 10, 10}, Point{-10, -10, -10})
	if b.Min != (Point{-10, -10, -10}) || b.Max != (Point{10, 10, 10}) {
		t.Fatalf("box not normalized: %+v", b)
	}
}
