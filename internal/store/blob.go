package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// blobStore is a side directory of blob files named by UUID, one per
// externalized payload (§6 "Persisted state layout"). Files are sharded by
// the first two hex characters of the UUID, the same layout the original
// point-store side files used, and zstd-compressed the way the production
// log writer compresses its rotated segments.
type blobStore struct {
	dir string
}

func newBlobStore(dir string) (*blobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &blobStore{dir: dir}, nil
}

func (b *blobStore) path(id uuid.UUID) string {
	s := id.String()
	shard := s[:2]
	return filepath.Join(b.dir, shard, s)
}

func (b *blobStore) put(_ context.Context, id uuid.UUID, data []byte) error {
	p := b.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create blob shard dir: %w", err)
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create blob file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush blob encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close blob file: %w", err)
	}
	return os.Rename(tmp, p)
}

func (b *blobStore) get(_ context.Context, id uuid.UUID) ([]byte, error) {
	p := b.path(id)
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
