// Package vlog provides ambient diagnostic logging for the vault engine:
// a prefixed stdlib logger for terse operational lines, and a rotating,
// zstd-compressed JSONL writer for higher-volume structured diagnostics
// (checkpoint timings, degraded-region warnings, recovery summaries).
package vlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// maxBytesPerFile bounds a single rotation file regardless of elapsed
// time. Unlike a per-tick event stream, checkpoint and recovery entries
// arrive in bursts (a cold start can lazy-load dozens of regions inside
// one second; a backfill run can checkpoint thousands of regions back to
// back), so capping on size as well as on the hour keeps any one file
// from growing unbounded during a burst.
const maxBytesPerFile = 64 * 1024 * 1024

// rotatingWriter appends JSON-encoded entries to a zstd-compressed file
// that rotates on the hour or once the uncompressed JSON written to it
// reaches maxBytesPerFile, whichever comes first. Safe for concurrent use.
type rotatingWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	seq     int
	written int64
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newRotatingWriter(baseDir, prefix string) *rotatingWriter {
	return &rotatingWriter{baseDir: baseDir, prefix: prefix}
}

func (w *rotatingWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		w.seq = 0
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	} else if w.written >= maxBytesPerFile {
		w.seq++
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n, err := w.w.Write(b)
	if err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written += int64(n) + 1
	return w.w.Flush()
}

func (w *rotatingWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *rotatingWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour, w.seq)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.written = 0
	return nil
}

func (w *rotatingWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *rotatingWriter) pathForHour(hour string, seq int) string {
	if seq == 0 {
		return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	}
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.%d.jsonl.zst", w.prefix, hour, seq))
}

// CheckpointEntry is one structured diagnostic line written per region per
// persist_to_disk call.
type CheckpointEntry struct {
	Time        string `json:"time"`
	RegionID    string `json:"region_id"`
	ObjectCount int    `json:"object_count"`
	Tombstones  int    `json:"tombstones"`
	DurationMS  int64  `json:"duration_ms"`
	Err         string `json:"err,omitempty"`
}

// RecoveryEntry is one structured diagnostic line written when a region is
// lazily loaded or degraded during recovery (§4.6, §7).
type RecoveryEntry struct {
	Time          string `json:"time"`
	RegionID      string `json:"region_id"`
	ObjectCount   int    `json:"object_count"`
	Degraded      bool   `json:"degraded"`
	SkippedCount  int    `json:"skipped_count"`
	MissingBlobID string `json:"missing_blob_id,omitempty"`
}

// CheckpointLogger writes one CheckpointEntry per persist_to_disk region.
type CheckpointLogger struct{ w *rotatingWriter }

func newCheckpointLogger(dir string) *CheckpointLogger {
	return &CheckpointLogger{w: newRotatingWriter(filepath.Join(dir, "checkpoints"), "checkpoint")}
}

func (l *CheckpointLogger) WriteCheckpoint(e CheckpointEntry) error { return l.w.write(e) }
func (l *CheckpointLogger) Close() error                            { return l.w.close() }

// RecoveryLogger writes one RecoveryEntry per lazily-loaded or degraded
// region.
type RecoveryLogger struct{ w *rotatingWriter }

func newRecoveryLogger(dir string) *RecoveryLogger {
	return &RecoveryLogger{w: newRotatingWriter(filepath.Join(dir, "recovery"), "recovery")}
}

func (l *RecoveryLogger) WriteRecovery(e RecoveryEntry) error { return l.w.write(e) }
func (l *RecoveryLogger) Close() error                        { return l.w.close() }

// DiagLogger bundles the two structured JSONL streams a running vault
// emits alongside its plain operational log.
type DiagLogger struct {
	checkpoints *CheckpointLogger
	recovery    *RecoveryLogger
}

// NewDiagLogger returns structured loggers rooted at dir/checkpoints and
// dir/recovery.
func NewDiagLogger(dir string) *DiagLogger {
	return &DiagLogger{
		checkpoints: newCheckpointLogger(dir),
		recovery:    newRecoveryLogger(dir),
	}
}

func (d *DiagLogger) WriteCheckpoint(e CheckpointEntry) error {
	if d == nil {
		return nil
	}
	return d.checkpoints.WriteCheckpoint(e)
}

func (d *DiagLogger) WriteRecovery(e RecoveryEntry) error {
	if d == nil {
		return nil
	}
	return d.recovery.WriteRecovery(e)
}

func (d *DiagLogger) Close() error {
	if d == nil {
		return nil
	}
	err1 := d.checkpoints.Close()
	err2 := d.recovery.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
