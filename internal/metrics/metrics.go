// Package metrics wires the validator core's counters and gauges to
// Prometheus, in the spirit of the teacher repo's own metrics package but
// backed by the real client_golang registry rather than a hand-rolled text
// exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the validator pipeline emits. One Registry
// is constructed at process start and threaded down to each subsystem by
// reference (spec.md §9 "Global mutable state" -- no package-level globals).
type Registry struct {
	reg *prometheus.Registry

	BankingConsumed       prometheus.Counter
	BankingForwarded      prometheus.Counter
	BankingHeld           prometheus.Gauge
	BankingDroppedBatches prometheus.Counter

	LockContention prometheus.Counter
	LockHeld       prometheus.Gauge

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheUnloaded prometheus.Counter
	OneHitWonders prometheus.Counter

	AccountStoreWrites prometheus.Counter
	AccountStoreReads  prometheus.Counter
	RootedSlots        prometheus.Counter
	PurgedSlots        prometheus.Counter

	PohEntriesRecorded prometheus.Counter
	PohMaxHeightHits   prometheus.Counter
}

// NewRegistry constructs and registers every validator-core metric under
// the given namespace (e.g. "validatorcore").
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	f := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	g := func(name, help string) prometheus.Gauge {
		gg := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
		reg.MustRegister(gg)
		return gg
	}
	return &Registry{
		reg: reg,

		BankingConsumed:       f("banking_consumed_total", "transactions committed by Consume"),
		BankingForwarded:      f("banking_forwarded_total", "packets forwarded to the next leader"),
		BankingHeld:           g("banking_held_buffer_size", "packets currently buffered awaiting leader slot"),
		BankingDroppedBatches: f("banking_dropped_batches_total", "oldest batches dropped on buffer overflow"),

		LockContention: f("lock_contention_total", "lock_accounts calls that returned AccountInUse"),
		LockHeld:       g("lock_held_keys", "account locks currently held, one per key per locking transaction"),

		CacheHits:     f("program_cache_hits_total", "program cache lookups returning a compiled entry"),
		CacheMisses:   f("program_cache_misses_total", "program cache lookups returning Missing"),
		CacheUnloaded: f("program_cache_unloaded_total", "entries demoted to Unloaded by sort_and_unload"),
		OneHitWonders: f("program_cache_one_hit_wonders_total", "entries evicted with tx_usage == 1"),

		AccountStoreWrites: f("account_store_writes_total", "versioned entries stored"),
		AccountStoreReads:  f("account_store_reads_total", "load() calls"),
		RootedSlots:        f("account_store_rooted_slots_total", "add_root calls"),
		PurgedSlots:        f("account_store_purged_slots_total", "purge_slot calls that removed entries"),

		PohEntriesRecorded: f("poh_entries_recorded_total", "entries accepted by record()"),
		PohMaxHeightHits:   f("poh_max_height_reached_total", "record() calls rejected with MaxHeightReached"),
	}
}

// Handler returns the http.Handler serving this registry's metrics in
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
