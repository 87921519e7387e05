// Package config loads the engine's tunable knobs from a YAML file with
// environment-variable overrides, the way go-ethereum's cmd/geth binds flags
// onto node.Config -- except here viper owns the file/env precedence instead
// of urfave/cli flag defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every engine-wide knob SPEC_FULL.md names. Field names match
// the YAML keys case-insensitively; viper also accepts the equivalent
// STREAMCORE_* environment variable for each.
type Config struct {
	NumWorkerThreads       int           `mapstructure:"numWorkerThreads"`
	TaskQueueCapacity      int           `mapstructure:"taskQueueCapacity"`
	ShredderInitialBitmaps  int `mapstructure:"shredderInitialBitmaps"`
	ShredderMaxBitmaps      int `mapstructure:"shredderMaxBitmaps"`
	ShredderResizeThreshold int `mapstructure:"shredderResizeThreshold"`
	HashMapPageSize        int           `mapstructure:"hashMapPageSize"`
	StopTimeout            time.Duration `mapstructure:"stopTimeout"`
}

// Default returns the configuration the engine runs with when no file or
// environment override is present.
func Default() Config {
	return Config{
		NumWorkerThreads:        4,
		TaskQueueCapacity:       4096,
		ShredderInitialBitmaps:  8,
		ShredderMaxBitmaps:      4096,
		ShredderResizeThreshold: 2,
		HashMapPageSize:         64 * 1024,
		StopTimeout:             10 * time.Minute,
	}
}

// Load reads configuration from path (if non-empty) layered over Default,
// then applies STREAMCORE_* environment overrides. A missing path is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("STREAMCORE")
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("numWorkerThreads", cfg.NumWorkerThreads)
	v.SetDefault("taskQueueCapacity", cfg.TaskQueueCapacity)
	v.SetDefault("shredderInitialBitmaps", cfg.ShredderInitialBitmaps)
	v.SetDefault("shredderMaxBitmaps", cfg.ShredderMaxBitmaps)
	v.SetDefault("shredderResizeThreshold", cfg.ShredderResizeThreshold)
	v.SetDefault("hashMapPageSize", cfg.HashMapPageSize)
	v.SetDefault("stopTimeout", cfg.StopTimeout)
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	if c.NumWorkerThreads <= 0 {
		return fmt.Errorf("config: numWorkerThreads must be positive, got %d", c.NumWorkerThreads)
	}
	if c.ShredderMaxBitmaps < c.ShredderInitialBitmaps {
		return fmt.Errorf("config: shredderMaxBitmaps (%d) below shredderInitialBitmaps (%d)", c.ShredderMaxBitmaps, c.ShredderInitialBitmaps)
	}
	if c.ShredderResizeThreshold <= 0 {
		return fmt.Errorf("config: shredderResizeThreshold must be positive, got %d", c.ShredderResizeThreshold)
	}
	if c.HashMapPageSize <= 0 {
		return fmt.Errorf("config: hashMapPageSize must be positive, got %d", c.HashMapPageSize)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("config: stopTimeout must be positive, got %s", c.StopTimeout)
	}
	return nil
}
