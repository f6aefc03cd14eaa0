package main

import (
	"flag"
	"fmt"
	"strconv"
)

// flagSet wraps flag.FlagSet to add support for uint64 flags, which the
// standard library's flag package does not provide directly.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior so
// callers control error handling instead of flag's default os.Exit.
func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}

// Uint64Var defines a uint64 flag via a custom flag.Value implementation.
func (fs *flagSet) Uint64Var(p *uint64, name string, value uint64, usage string) {
	fs.FlagSet.Var(&uint64Value{p: p}, name, usage)
	*p = value
}

type uint64Value struct{ p *uint64 }

func (v *uint64Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatUint(*v.p, 10)
}

func (v *uint64Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %q", s)
	}
	*v.p = n
	return nil
}

// newFlagSet binds every CLI flag to cfg.
func newFlagSet(cfg *Config) *flagSet {
	fs := newCustomFlagSet("validatorcore")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory for the account store and ledger")
	fs.StringVar(&cfg.Identity, "identity", cfg.Identity, "hex-encoded validator identity pubkey")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "banking-stage worker count (worker 0 is the vote worker)")
	fs.IntVar(&cfg.BufferCap, "buffer-cap", cfg.BufferCap, "per-worker packet buffer capacity")
	fs.Uint64Var(&cfg.SlotCostBudget, "slot-cost-budget", cfg.SlotCostBudget, "per-slot QoS cost budget")
	fs.Uint64Var(&cfg.MaxTickHeight, "max-tick-height", cfg.MaxTickHeight, "PoH ticks accepted per working bank")
	fs.IntVar(&cfg.ProgramCacheMaxDistinct, "program-cache-size", cfg.ProgramCacheMaxDistinct, "max distinct program pubkeys cached")
	fs.IntVar(&cfg.AccountStoreCacheBytes, "account-cache-bytes", cfg.AccountStoreCacheBytes, "fastcache size in front of the pebble account store")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for the Prometheus exposition endpoint")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0-1=error, 2=warn, 3=info, 4-5=debug)")
	fs.StringVar(&cfg.LogRotatePath, "log-file", cfg.LogRotatePath, "rotate structured logs to this file instead of stderr")
	return fs
}
