package spatial

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"
)

// Point is a finite 3D coordinate in world space.
type Point struct {
	X, Y, Z float64
}

func (p Point) finite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Box is an axis-aligned bounding box, normalized so Min <= Max on every
// axis. Use NewBox to build one from unordered corners.
type Box struct {
	Min, Max Point
}

// NewBox normalizes two arbitrary corners into a closed box with Min <= Max
// component-wise, per §4.1's "for any permutation of min/max the engine
// normalizes" rule.
func NewBox(a, b Point) Box {
	return Box{
		Min: Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Contains reports whether p lies within the closed box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// SpatialObject is a UUID-identified point record carrying a type tag and
// an opaque, engine-uninterpreted payload.
type SpatialObject struct {
	UUID       uuid.UUID
	ObjectType string
	Position   Point
	CustomData json.RawMessage
	RegionID   uuid.UUID
}

// clone returns a deep-enough copy: CustomData is reused (callers must not
// mutate it after handing it to the engine), all other fields are value
// types.
func (o SpatialObject) clone() SpatialObject {
	return o
}
