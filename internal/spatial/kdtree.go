package spatial

import "sort"

// kdNode is a node of a 3-dimensional k-d tree. Splits cycle through axes
// 0 (X), 1 (Y), 2 (Z) by depth. Ties on the splitting axis always route to
// the right subtree, both on insert and on the delete-time descent, so
// objects that share a coordinate on the split axis can still be told
// apart by UUID.
type kdNode struct {
	id          [16]byte
	point       Point
	left, right *kdNode
}

func axisOf(depth int) int {
	return depth % 3
}

func coord(p Point, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// SpatialIndex is a mutable 3D k-d tree over point geometries, keyed by
// UUID. It stores only the UUID as payload; the full record lives in the
// owning Region's uuid_map (§4.2).
type SpatialIndex struct {
	root  *kdNode
	count int
}

// NewSpatialIndex returns an empty index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{}
}

// Len reports the number of entries currently indexed.
func (idx *SpatialIndex) Len() int { return idx.count }

// Insert adds id at point. Coordinates must already be finite; the index
// does not validate them (§4.2 — NaN is rejected at the VaultManager
// boundary, not here).
func (idx *SpatialIndex) Insert(id [16]byte, point Point) {
	idx.root = insertNode(idx.root, id, point, 0)
	idx.count++
}

func insertNode(n *kdNode, id [16]byte, point Point, depth int) *kdNode {
	if n == nil {
		return &kdNode{id: id, point: point}
	}
	axis := axisOf(depth)
	if coord(point, axis) < coord(n.point, axis) {
		n.left = insertNode(n.left, id, point, depth+1)
	} else {
		n.right = insertNode(n.right, id, point, depth+1)
	}
	return n
}

// Remove deletes id from the index. point must be the entry's current
// indexed position (callers track this via the region's uuid_map); passing
// a stale point makes the node unreachable by the descent below.
func (idx *SpatialIndex) Remove(id [16]byte, point Point) bool {
	newRoot, removed := deleteNode(idx.root, id, point, 0)
	if removed {
		idx.root = newRoot
		idx.count--
	}
	return removed
}

func deleteNode(n *kdNode, id [16]byte, point Point, depth int) (*kdNode, bool) {
	if n == nil {
		return nil, false
	}
	if n.id == id {
		return removeRoot(n, depth), true
	}
	axis := axisOf(depth)
	if coord(point, axis) < coord(n.point, axis) {
		newLeft, ok := deleteNode(n.left, id, point, depth+1)
		n.left = newLeft
		return n, ok
	}
	newRight, ok := deleteNode(n.right, id, point, depth+1)
	n.right = newRight
	return n, ok
}

// removeRoot removes the subtree root n, restructuring per the classic
// k-d tree deletion: replace with the minimum (along the splitting axis)
// of the right subtree if present, else the minimum of the left subtree
// moved into the right slot, else collapse to nil.
func removeRoot(n *kdNode, depth int) *kdNode {
	axis := axisOf(depth)
	if n.right != nil {
		min := findMin(n.right, axis, depth+1)
		n.id, n.point = min.id, min.point
		n.right, _ = deleteNode(n.right, min.id, min.point, depth+1)
		return n
	}
	if n.left != nil {
		min := findMin(n.left, axis, depth+1)
		n.id, n.point = min.id, min.point
		n.right, _ = deleteNode(n.left, min.id, min.point, depth+1)
		n.left = nil
		return n
	}
	return nil
}

// findMin returns the node with the smallest coord(axis) in the subtree
// rooted at n, which is itself split on axes cycling from depth.
func findMin(n *kdNode, axis, depth int) *kdNode {
	if n == nil {
		return nil
	}
	nodeAxis := axisOf(depth)
	if nodeAxis == axis {
		if n.left == nil {
			return n
		}
		return findMin(n.left, axis, depth+1)
	}
	left := findMin(n.left, axis, depth+1)
	right := findMin(n.right, axis, depth+1)
	best := n
	if left != nil && coord(left.point, axis) < coord(best.point, axis) {
		best = left
	}
	if right != nil && coord(right.point, axis) < coord(best.point, axis) {
		best = right
	}
	return best
}

// Intersects returns every indexed UUID whose point lies within the closed
// box, with no false positives or negatives. Order is unspecified.
func (idx *SpatialIndex) Intersects(box Box) [][16]byte {
	var out [][16]byte
	searchBox(idx.root, box, 0, &out)
	return out
}

func searchBox(n *kdNode, box Box, depth int, out *[][16]byte) {
	if n == nil {
		return
	}
	if box.Contains(n.point) {
		*out = append(*out, n.id)
	}
	axis := axisOf(depth)
	splitVal := coord(n.point, axis)
	boxMin := coord(box.Min, axis)
	boxMax := coord(box.Max, axis)

	// Insert routes values < splitVal left and >= splitVal right, so the
	// left subtree can only hold points with coord < splitVal and the
	// right subtree coord >= splitVal. Prune whichever side the query box
	// cannot reach.
	if boxMin < splitVal {
		searchBox(n.left, box, depth+1, out)
	}
	if boxMax >= splitVal {
		searchBox(n.right, box, depth+1, out)
	}
}

// bulkEntry is one (uuid, point) pair used to bulk-load an index.
type bulkEntry struct {
	ID    [16]byte
	Point Point
}

// BulkLoad replaces the index contents with a balanced tree built from
// entries via recursive median-of-axis partitioning. Used when a region's
// objects are rehydrated from BackingStore in one shot (§4.6), so recovery
// doesn't leave the tree in the unbalanced shape a long run of sequential
// inserts would produce.
func (idx *SpatialIndex) BulkLoad(entries []bulkEntry) {
	cp := make([]bulkEntry, len(entries))
	copy(cp, entries)
	idx.root = buildBalanced(cp, 0)
	idx.count = len(cp)
}

func buildBalanced(entries []bulkEntry, depth int) *kdNode {
	if len(entries) == 0 {
		return nil
	}
	axis := axisOf(depth)
	sort.Slice(entries, func(i, j int) bool {
		return coord(entries[i].Point, axis) < coord(entries[j].Point, axis)
	})
	mid := len(entries) / 2
	// Move mid back to the first entry tied with the median on this axis so the
	// left/right split still respects the "< goes left, >= goes right"
	// invariant relied on by deleteNode/searchBox.
	for mid > 0 && coord(entries[mid].Point, axis) == coord(entries[mid-1].Point, axis) {
		mid--
	}
	n := &kdNode{id: entries[mid].ID, point: entries[mid].Point}
	n.left = buildBalanced(entries[:mid], depth+1)
	n.right = buildBalanced(entries[mid+1:], depth+1)
	return n
}
