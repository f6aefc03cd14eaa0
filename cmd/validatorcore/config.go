// Command validatorcore wires C1-C8 into a runnable process: stake engine,
// account store, program cache, lock table, loader, message processor, PoH
// recorder, and banking stage (spec.md §2). Packet ingest, signature
// verification, and any RPC surface are out of scope (spec.md §1) and are
// not wired here.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stakenet/validatorcore/internal/banking"
)

// Config holds all configuration for a validatorcore process.
type Config struct {
	// DataDir is the root directory for the pebble account store and the
	// ledger entry log.
	DataDir string

	// Identity is this node's hex-encoded pubkey, used as Self for the
	// banking stage's leader-schedule comparisons.
	Identity string

	// Workers is the total number of banking-stage threads, worker 0
	// always dedicated to vote transactions (spec.md §4.8).
	Workers int

	// BufferCap bounds each worker's per-pubkey-hashed FIFO buffer.
	BufferCap int

	// SlotCostBudget is the per-slot QoS cost budget each worker's
	// CostTracker resets to (spec.md §4.8 step 2 "cost-model admission").
	SlotCostBudget uint64

	// MaxTickHeight bounds how many entries the PoH recorder accepts
	// for the current working bank before MaxHeightReached (spec.md §4.7).
	MaxTickHeight uint64

	// ProgramCacheMaxDistinct caps the number of distinct program pubkeys
	// the program cache holds (spec.md §4.3).
	ProgramCacheMaxDistinct int

	// AccountStoreCacheBytes sizes the fastcache front of the pebble
	// account store.
	AccountStoreCacheBytes int

	// MetricsAddr is the listen address for the Prometheus exposition
	// handler, e.g. ":9090".
	MetricsAddr string

	// Verbosity controls numeric log level (0-1=error, 2=warn, 3=info,
	// 4-5=debug; see VerbosityToLogLevel).
	Verbosity int

	// LogRotatePath, if non-empty, routes structured logs through a
	// lumberjack-rotated file instead of stderr.
	LogRotatePath string
}

// defaultDataDir mirrors the teacher's per-platform default data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".validatorcore"
	}
	return filepath.Join(home, ".validatorcore")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:                 defaultDataDir(),
		Identity:                "0x01",
		Workers:                 4,
		BufferCap:               banking.PacketsPerBatch,
		SlotCostBudget:          banking.DefaultSlotCostBudget,
		MaxTickHeight:           64,
		ProgramCacheMaxDistinct: 2048,
		AccountStoreCacheBytes:  32 << 20,
		MetricsAddr:             ":9090",
		Verbosity:               3,
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if c.Workers < 2 {
		return fmt.Errorf("config: workers must be >= 2 (1 vote + 1 non-vote), got %d", c.Workers)
	}
	if c.BufferCap <= 0 {
		return fmt.Errorf("config: invalid buffer cap: %d", c.BufferCap)
	}
	if c.SlotCostBudget == 0 {
		return errors.New("config: slot cost budget must be nonzero")
	}
	if c.MaxTickHeight == 0 {
		return errors.New("config: max tick height must be nonzero")
	}
	if c.ProgramCacheMaxDistinct <= 0 {
		return fmt.Errorf("config: invalid program cache size: %d", c.ProgramCacheMaxDistinct)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: verbosity must be 0-5, got %d", c.Verbosity)
	}
	return nil
}

// InitDataDir creates the data directory and its subdirectories.
func (c *Config) InitDataDir() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if err := os.MkdirAll(filepath.Join(c.DataDir, "accounts"), 0700); err != nil {
		return fmt.Errorf("config: create accounts dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(c.DataDir, "ledger"), 0700); err != nil {
		return fmt.Errorf("config: create ledger dir: %w", err)
	}
	return nil
}

// VerbosityToLogLevel converts a numeric verbosity level to a slog level
// name, the same mapping the teacher's node.Config uses.
func VerbosityToLogLevel(v int) string {
	switch {
	case v <= 1:
		return "error"
	case v == 2:
		return "warn"
	case v == 3:
		return "info"
	default:
		return "debug"
	}
}
