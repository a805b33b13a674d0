// Package config defines the process-wide configuration: ring sizing,
// recorder batching, client catch-up behavior, CPU pinning, and segment
// archival. Grounded on the teacher's CometConfig/DefaultCometConfig/
// validateConfig pattern (client.go): grouped sub-structs, a Default
// constructor, and a Validate pass that fills in zero-valued fields and
// rejects genuinely invalid ones.
package config

import (
	"fmt"
	"time"

	"github.com/mktdata/replayfabric/affinity"
)

// RingConfig sizes the SPMC ring buffer.
type RingConfig struct {
	// Capacity must be a power of two; the ring mask relies on it.
	Capacity int `json:"capacity"`
}

// RecorderConfig controls the durable consumer.
type RecorderConfig struct {
	BatchSize int    `json:"batch_size"`
	OutputDir string `json:"output_dir"`
	CPUCore   int    `json:"cpu_core"`
}

// ClientConfig controls the replaying consumer.
type ClientConfig struct {
	CatchUpThreshold   int64 `json:"catch_up_threshold"`
	AutoFaultDetection bool  `json:"auto_fault_detection"`
	CPUCore            int   `json:"cpu_core"`
}

// FeedConfig controls the synthetic producer.
type FeedConfig struct {
	MessageCount int64 `json:"message_count"`
	RatePerSec   int64 `json:"rate_per_sec"`
	CPUCore      int   `json:"cpu_core"`
}

// ArchiveConfig controls background segment compression and expiry.
type ArchiveConfig struct {
	MaxAge          time.Duration `json:"max_age"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// LogConfig controls the telemetry level.
type LogConfig struct {
	Level string `json:"level"`
}

// Config is the complete process configuration.
type Config struct {
	Ring     RingConfig     `json:"ring"`
	Recorder RecorderConfig `json:"recorder"`
	Client   ClientConfig   `json:"client"`
	Feed     FeedConfig     `json:"feed"`
	Archive  ArchiveConfig  `json:"archive"`
	Log      LogConfig      `json:"log"`
}

// Default returns sensible defaults for a single-host test run: a
// 65536-slot ring, 1024-message recorder batches, a catch-up threshold of
// 100, auto fault detection enabled, no CPU pinning, and an hourly
// archival sweep retaining 7 days of compressed segments.
func Default() Config {
	return Config{
		Ring: RingConfig{
			Capacity: 1 << 16,
		},
		Recorder: RecorderConfig{
			BatchSize: 1024,
			OutputDir: ".",
			CPUCore:   affinity.Unset,
		},
		Client: ClientConfig{
			CatchUpThreshold:   100,
			AutoFaultDetection: true,
			CPUCore:            affinity.Unset,
		},
		Feed: FeedConfig{
			MessageCount: 10000,
			RatePerSec:   1000,
			CPUCore:      affinity.Unset,
		},
		Archive: ArchiveConfig{
			MaxAge:          7 * 24 * time.Hour,
			CleanupInterval: 1 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate fills in any zero-valued fields with their defaults and
// rejects combinations that cannot be made to work.
func (c *Config) Validate() error {
	if c.Ring.Capacity <= 0 {
		c.Ring.Capacity = 1 << 16
	}
	if c.Ring.Capacity&(c.Ring.Capacity-1) != 0 {
		return fmt.Errorf("config: ring capacity %d is not a power of two", c.Ring.Capacity)
	}

	if c.Recorder.BatchSize <= 0 {
		c.Recorder.BatchSize = 1024
	}
	if c.Recorder.OutputDir == "" {
		c.Recorder.OutputDir = "."
	}

	if c.Client.CatchUpThreshold <= 0 {
		c.Client.CatchUpThreshold = 100
	}
	if c.Client.CatchUpThreshold >= int64(c.Ring.Capacity) {
		return fmt.Errorf("config: catch_up_threshold %d must be smaller than ring capacity %d",
			c.Client.CatchUpThreshold, c.Ring.Capacity)
	}

	if c.Feed.MessageCount < 0 {
		return fmt.Errorf("config: feed message_count cannot be negative")
	}
	if c.Feed.RatePerSec < 0 {
		return fmt.Errorf("config: feed rate_per_sec cannot be negative")
	}

	if c.Archive.CleanupInterval < 0 {
		return fmt.Errorf("config: archive cleanup_interval cannot be negative")
	}

	for _, core := range []int{c.Recorder.CPUCore, c.Client.CPUCore, c.Feed.CPUCore} {
		if core != affinity.Unset && core < 0 {
			return fmt.Errorf("config: cpu core %d is invalid", core)
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	return nil
}
