package spatial

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds vault configuration (§6 "Configuration"). Fields not named
// by the distilled spec (LogDir, RegionLockTimeout, CommitBatchSize) are
// ambient knobs a complete service needs; defaults match the teacher's own
// "struct with code-applied defaults, optional YAML override" convention.
// Manager does not read RegionLockTimeout or CommitBatchSize: region locks
// always block, and each region is checkpointed in one transaction.
type Config struct {
	StorePath string `yaml:"store_path"`

	OversizedPayloadThresholdBytes int  `yaml:"oversized_payload_threshold_bytes"`
	CheckpointOnDrop                bool `yaml:"checkpoint_on_drop"`
	LazyLoadRegions                 bool `yaml:"lazy_load_regions"`

	LogDir            string        `yaml:"log_dir"`
	RegionLockTimeout time.Duration `yaml:"region_lock_timeout"`
	CommitBatchSize   int           `yaml:"commit_batch_size"`
}

// DefaultConfig returns the defaults named in §6: a 1 MiB oversized
// threshold, checkpoint-on-drop and lazy-loading both enabled.
func DefaultConfig(storePath string) Config {
	return Config{
		StorePath:                      storePath,
		OversizedPayloadThresholdBytes: 1 << 20,
		CheckpointOnDrop:               true,
		LazyLoadRegions:                true,
		LogDir:                         "",
		RegionLockTimeout:              0,
		CommitBatchSize:                2000,
	}
}

// LoadConfig reads a YAML config file and overlays it onto DefaultConfig,
// the same "defaults in code, optional YAML override" pattern the
// production world configuration uses.
func LoadConfig(path, storePath string) (Config, error) {
	cfg := DefaultConfig(storePath)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
