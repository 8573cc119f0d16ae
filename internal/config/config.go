// Package config loads the engine's tunables from a YAML file with
// viper, the same way the teacher repo loads its NovaSqlConfig.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/crio-db/crio/internal/btree"
	"github.com/crio-db/crio/internal/buffer"
)

// EngineConfig holds the engine's tunable knobs, plus the on-disk
// location of the engine's segment files and a reserved segment sizing
// knob the disk manager doesn't use yet (segments grow one page at a
// time; this exists for a future pre-allocation strategy).
type EngineConfig struct {
	Workdir             string `mapstructure:"workdir"`
	PoolSize            int    `mapstructure:"pool_size"`
	K                   int    `mapstructure:"k"`
	SequentialThreshold int    `mapstructure:"sequential_threshold"`
	PrefetchLookahead   int    `mapstructure:"prefetch_lookahead"`
	BtreeOrder          int    `mapstructure:"btree_order"`
	SegmentSizePages    int    `mapstructure:"segment_size_pages"`
}

// DefaultPoolSize is used when a loaded config omits pool_size.
const DefaultPoolSize = 64

// Defaults returns an EngineConfig with every documented default.
func Defaults() *EngineConfig {
	return &EngineConfig{
		Workdir:             ".",
		PoolSize:            DefaultPoolSize,
		K:                   buffer.DefaultK,
		SequentialThreshold: buffer.SequentialThreshold,
		PrefetchLookahead:   buffer.PrefetchLookahead,
		BtreeOrder:          btree.DefaultOrder,
		SegmentSizePages:    0,
	}
}

// Load reads a YAML config file at path, filling in documented defaults for any
// field the file omits. A missing file is not an error preventing the
// caller from opening an engine with pure defaults; callers that want to
// require the file should stat it themselves first.
func Load(path string) (*EngineConfig, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	applyDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// With an explicit SetConfigFile path, viper reports a missing file
		// as a plain not-exist error rather than ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper, cfg *EngineConfig) {
	v.SetDefault("workdir", cfg.Workdir)
	v.SetDefault("pool_size", cfg.PoolSize)
	v.SetDefault("k", cfg.K)
	v.SetDefault("sequential_threshold", cfg.SequentialThreshold)
	v.SetDefault("prefetch_lookahead", cfg.PrefetchLookahead)
	v.SetDefault("btree_order", cfg.BtreeOrder)
	v.SetDefault("segment_size_pages", cfg.SegmentSizePages)
}
