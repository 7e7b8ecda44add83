package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS regions (
		id TEXT PRIMARY KEY,
		cx REAL NOT NULL,
		cy REAL NOT NULL,
		cz REAL NOT NULL,
		radius REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS objects (
		uuid TEXT PRIMARY KEY,
		region_id TEXT NOT NULL,
		type TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		payload_inline BLOB,
		payload_ref TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_objects_region ON objects(region_id)`,
}

var pragmaStatements = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA synchronous=NORMAL`,
	`PRAGMA foreign_keys=ON`,
	`PRAGMA busy_timeout=5000`,
	`PRAGMA temp_store=MEMORY`,
}

// SQLiteStore is the default BackingStore implementation (§6), backed by
// an embedded, pure-Go SQL engine so the whole module stays cgo-free. It
// owns a single *sql.DB restricted to one connection, since SQLite itself
// only ever allows one writer at a time — matching the production index
// database's own single-connection posture.
type SQLiteStore struct {
	db    *sql.DB
	blobs *blobStore
}

// OpenSQLite opens or creates a BackingStore at path, creating the schema
// if absent (§4.1 "new(store_path)"). Side-file blobs for externalized
// payloads live in a sibling "<path>.blobs" directory.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	blobs, err := newBlobStore(path + ".blobs")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, blobs: blobs}, nil
}

func initPragmas(db *sql.DB) error {
	for _, stmt := range pragmaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("pragma %q: %w", stmt, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListRegions(ctx context.Context) ([]RegionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, cx, cy, cz, radius FROM regions`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []RegionMeta
	for rows.Next() {
		var idStr string
		var m RegionMeta
		if err := rows.Scan(&idStr, &m.CX, &m.CY, &m.CZ, &m.Radius); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("region id %q: %w", idStr, err)
		}
		m.ID = id
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRegion(ctx context.Context, meta RegionMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regions (id, cx, cy, cz, radius) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cx=excluded.cx, cy=excluded.cy, cz=excluded.cz, radius=excluded.radius
	`, meta.ID.String(), meta.CX, meta.CY, meta.CZ, meta.Radius)
	if err != nil {
		return fmt.Errorf("upsert region: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRegion(ctx context.Context, regionID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete region tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE region_id = ?`, regionID.String()); err != nil {
		return fmt.Errorf("delete region objects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM regions WHERE id = ?`, regionID.String()); err != nil {
		return fmt.Errorf("delete region: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadObjects(ctx context.Context, regionID uuid.UUID) ([]ObjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, type, x, y, z, payload_inline, payload_ref FROM objects WHERE region_id = ?
	`, regionID.String())
	if err != nil {
		return nil, fmt.Errorf("load objects: %w", err)
	}
	defer rows.Close()

	var out []ObjectRecord
	for rows.Next() {
		var uStr string
		var rec ObjectRecord
		var payloadRef sql.NullString
		if err := rows.Scan(&uStr, &rec.Type, &rec.X, &rec.Y, &rec.Z, &rec.PayloadInline, &payloadRef); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		id, err := uuid.Parse(uStr)
		if err != nil {
			return nil, fmt.Errorf("object uuid %q: %w", uStr, err)
		}
		rec.UUID = id
		rec.RegionID = regionID
		rec.PayloadRef = payloadRef.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertObjectsTx(ctx context.Context, regionID uuid.UUID, records []ObjectRecord, tombstones []uuid.UUID) error {
	if len(records) == 0 && len(tombstones) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (uuid, region_id, type, x, y, z, payload_inline, payload_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			region_id=excluded.region_id, type=excluded.type,
			x=excluded.x, y=excluded.y, z=excluded.z,
			payload_inline=excluded.payload_inline, payload_ref=excluded.payload_ref
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	for _, rec := range records {
		var payloadRef any
		if rec.PayloadRef != "" {
			payloadRef = rec.PayloadRef
		}
		if _, err := upsert.ExecContext(ctx, rec.UUID.String(), regionID.String(), rec.Type,
			rec.X, rec.Y, rec.Z, rec.PayloadInline, payloadRef); err != nil {
			return fmt.Errorf("upsert object %s: %w", rec.UUID, err)
		}
	}

	if len(tombstones) > 0 {
		del, err := tx.PrepareContext(ctx, `DELETE FROM objects WHERE uuid = ? AND region_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare delete: %w", err)
		}
		defer del.Close()
		for _, id := range tombstones {
			if _, err := del.ExecContext(ctx, id.String(), regionID.String()); err != nil {
				return fmt.Errorf("delete tombstone %s: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) PutBlob(ctx context.Context, id uuid.UUID, data []byte) error {
	return s.blobs.put(ctx, id, data)
}

func (s *SQLiteStore) GetBlob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.blobs.get(ctx, id)
}

func (s *SQLiteStore) ObjectsWithinRadius(ctx context.Context, regionID uuid.UUID, cx, cy, cz, radius float64) ([]ObjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, type, x, y, z, payload_inline, payload_ref FROM objects
		WHERE region_id = ?
		AND ((x - ?) * (x - ?) + (y - ?) * (y - ?) + (z - ?) * (z - ?)) <= ?
	`, regionID.String(), cx, cx, cy, cy, cz, cz, radius*radius)
	if err != nil {
		return nil, fmt.Errorf("radius query: %w", err)
	}
	defer rows.Close()

	var out []ObjectRecord
	for rows.Next() {
		var uStr string
		var rec ObjectRecord
		var payloadRef sql.NullString
		if err := rows.Scan(&uStr, &rec.Type, &rec.X, &rec.Y, &rec.Z, &rec.PayloadInline, &payloadRef); err != nil {
			return nil, fmt.Errorf("scan radius object: %w", err)
		}
		id, err := uuid.Parse(uStr)
		if err != nil {
			return nil, fmt.Errorf("object uuid %q: %w", uStr, err)
		}
		rec.UUID = id
		rec.RegionID = regionID
		rec.PayloadRef = payloadRef.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
