// Package store implements the BackingStore contract (§6): durable
// key/record storage for region metadata, per-region object records, and
// side-file blobs for externalized payloads. The spatial package depends
// only on the BackingStore interface, never on this package's concrete
// types, so an alternative relational backend can be substituted without
// touching the core.
package store

import (
	"context"

	"github.com/google/uuid"
)

// RegionMeta is the persisted form of a region: identity, center, radius.
type RegionMeta struct {
	ID         uuid.UUID
	CX, CY, CZ float64
	Radius     float64
}

// ObjectRecord is the persisted form of a spatial object. PayloadInline
// holds the serialized custom_data when it fits under the oversized
// threshold; PayloadRef, when non-empty, names a side-file blob holding
// the externalized payload instead.
type ObjectRecord struct {
	UUID          uuid.UUID
	RegionID      uuid.UUID
	Type          string
	X, Y, Z       float64
	PayloadInline []byte
	PayloadRef    string
}

// BackingStore is the durable store the VaultManager talks to. The
// default implementation (SQLiteStore) uses an embedded SQL engine; any
// implementation satisfying this contract suffices (§6).
type BackingStore interface {
	// ListRegions returns every region's metadata, in unspecified order.
	ListRegions(ctx context.Context) ([]RegionMeta, error)
	// UpsertRegion creates or updates a region's metadata row.
	UpsertRegion(ctx context.Context, meta RegionMeta) error
	// DeleteRegion removes a region and cascades to its object records.
	DeleteRegion(ctx context.Context, regionID uuid.UUID) error
	// LoadObjects returns every object record belonging to regionID.
	LoadObjects(ctx context.Context, regionID uuid.UUID) ([]ObjectRecord, error)
	// UpsertObjectsTx applies records and tombstones to regionID in a
	// single all-or-nothing transaction.
	UpsertObjectsTx(ctx context.Context, regionID uuid.UUID, records []ObjectRecord, tombstones []uuid.UUID) error
	// PutBlob and GetBlob store and retrieve externalized payloads keyed
	// by object UUID.
	PutBlob(ctx context.Context, id uuid.UUID, data []byte) error
	GetBlob(ctx context.Context, id uuid.UUID) ([]byte, error)
	// ObjectsWithinRadius is a diagnostic/maintenance query, not used on
	// the VaultManager hot path: every record within a sphere.
	ObjectsWithinRadius(ctx context.Context, regionID uuid.UUID, cx, cy, cz, radius float64) ([]ObjectRecord, error)
	// Close releases the underlying handle.
	Close() error
}
