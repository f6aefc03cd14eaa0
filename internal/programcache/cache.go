// Package programcache implements the tiered cache of compiled executable
// programs (C3): per-pubkey lists of LoadedProgram entries keyed by
// (deployment slot, effective slot, environment), with an LRU-bounded
// distinct-program index and usage-based unload (spec.md §4.3).
package programcache

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/metrics"
	"github.com/stakenet/validatorcore/internal/types"
)

// LookupResult tags what a Lookup call found (spec.md §4.3 "Failure").
type LookupResult int

const (
	ResultFound LookupResult = iota
	ResultTombstone
	ResultMissing
	ResultMissingReloadHint
)

// LookupCriteria narrows a Lookup to entries matching the caller's needs;
// currently only the usage increment is caller-supplied, mirroring the
// original's per-call usage count.
type LookupCriteria struct {
	UsageCount uint64
}

// Cache is the C3 program cache. maxDistinctPrograms bounds the number of
// distinct program pubkeys tracked (an LRU over *pubkeys*, not over
// individual LoadedProgram artifacts -- those are bounded instead by
// sort_and_unload's target fraction).
type Cache struct {
	mu      sync.RWMutex
	entries *lru.Cache[types.Pubkey, []*LoadedProgram]

	forkGraph   types.ForkGraph
	current     *Environment
	upcoming    *Environment // set ahead of an epoch boundary, spec.md §4.3
	currentSlot types.Slot   // most recent slot observed via SetCurrentSlot

	oneHitWonders uint64

	metrics *metrics.Registry
	log     *log.Logger
}

// New constructs a Cache bounded to maxDistinctPrograms pubkeys, running
// under the given environment.
func New(maxDistinctPrograms int, env *Environment, forkGraph types.ForkGraph, reg *metrics.Registry, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cache{
		forkGraph: forkGraph,
		current:   env,
		metrics:   reg,
		log:       logger.Module("programcache"),
	}
	entries, err := lru.New[types.Pubkey, []*LoadedProgram](maxDistinctPrograms)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// construction-time configuration bug, not a runtime condition.
		panic(err)
	}
	c.entries = entries
	return c
}

// environmentFor picks current vs. upcoming based on whether W falls in
// the next epoch's window relative to the most recently observed slot
// (spec.md §4.3 "Epoch transition").
func (c *Cache) environmentFor(w types.Slot) *Environment {
	if c.upcoming != nil && c.forkGraph != nil {
		if c.forkGraph.SlotEpoch(w) > c.forkGraph.SlotEpoch(c.currentSlot) {
			return c.upcoming
		}
	}
	return c.current
}

// SetCurrentSlot records the most recently processed slot, the reference
// point environmentFor uses to decide whether a lookup's W has crossed
// into the next epoch. Callers advance this on every new working bank.
func (c *Cache) SetCurrentSlot(slot types.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentSlot = slot
}

// SetUpcomingEnvironment arms the next epoch's environment; promoted on
// the next call to PromoteEpoch (spec.md §4.3 "Epoch transition").
func (c *Cache) SetUpcomingEnvironment(env *Environment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upcoming = env
}

// PromoteEpoch promotes upcoming to current on the first root taken in the
// new epoch, pruning entries whose environment no longer matches.
func (c *Cache) PromoteEpoch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upcoming == nil {
		return
	}
	newEnv := c.upcoming
	c.current = newEnv
	c.upcoming = nil

	for _, key := range c.entries.Keys() {
		list, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		kept := list[:0:0]
		for _, p := range list {
			if Same(p.Environment, newEnv) {
				kept = append(kept, p)
			}
		}
		c.entries.Add(key, kept)
	}
	c.log.Info("promoted upcoming program cache environment", "environment", newEnv.Name)
}

// Lookup implements the seven-step policy of spec.md §4.3 for (key, w,
// criteria).
func (c *Cache) Lookup(key types.Pubkey, w types.Slot, criteria LookupCriteria) (*LoadedProgram, LookupResult) {
	c.mu.RLock()
	list, ok := c.entries.Get(key)
	env := c.environmentFor(w)
	c.mu.RUnlock()
	if !ok {
		c.recordMiss()
		return nil, ResultMissing
	}

	for _, p := range list {
		// Step 2: deployment_slot must be an ancestor of W.
		if c.forkGraph != nil && p.DeploymentSlot != w {
			rel := c.forkGraph.Relationship(p.DeploymentSlot, w)
			if rel != types.RelationshipAncestor && rel != types.RelationshipEqual {
				continue
			}
		}

		// Step 3: delay-visibility window.
		if w < p.EffectiveSlot && w >= p.DeploymentSlot {
			return delayVisibilityTombstone(p), ResultTombstone
		}

		// Step 4: expiration.
		if p.HasExpiration && p.ExpirationSlot <= w {
			c.recordMiss()
			return nil, ResultMissing
		}

		// Step 5: environment must match identically.
		if !Same(p.Environment, env) {
			continue
		}

		// Step 6: Unloaded but otherwise matching.
		if p.Kind == KindUnloaded {
			return p, ResultMissingReloadHint
		}

		// Step 7: hit.
		p.addUsage(criteria.UsageCount)
		c.recordHit()
		return p, ResultFound
	}
	c.recordMiss()
	return nil, ResultMissing
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}

// Replenish inserts (or updates) an entry, deduplicating on (deployment
// slot, effective slot) per spec.md §4.3 "Replenish".
func (c *Cache) Replenish(key types.Pubkey, entry *LoadedProgram) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, _ := c.entries.Get(key)
	for i, existing := range list {
		if existing.DeploymentSlot == entry.DeploymentSlot && existing.EffectiveSlot == entry.EffectiveSlot {
			switch {
			case existing.Kind == KindUnloaded && entry.Kind != KindUnloaded:
				// Migrate usage counters into the newly inserted entry.
				entry.txUsage.Store(existing.txUsage.Load())
				entry.ixUsage.Store(existing.ixUsage.Load())
				list[i] = entry
			case existing.Kind != KindUnloaded && entry.Kind == KindUnloaded:
				// Existing non-tombstone wins over an incoming unload.
			case isTombstoneKind(existing.Kind) && !isTombstoneKind(entry.Kind):
				list[i] = entry
			case !isTombstoneKind(existing.Kind) && isTombstoneKind(entry.Kind):
				// existing non-tombstone wins
			default:
				// Redeploying at the same (deployment_slot, effective_slot):
				// carry the prior usage counters forward onto the new entry.
				entry.txUsage.Store(existing.txUsage.Load())
				entry.ixUsage.Store(existing.ixUsage.Load())
				list[i] = entry
			}
			c.entries.Add(key, list)
			return
		}
	}

	// New (deployment_slot, effective_slot): insert newest-first.
	next := make([]*LoadedProgram, 0, len(list)+1)
	inserted := false
	for _, existing := range list {
		if !inserted && entry.DeploymentSlot > existing.DeploymentSlot {
			next = append(next, entry)
			inserted = true
		}
		next = append(next, existing)
	}
	if !inserted {
		next = append(next, entry)
	}
	c.entries.Add(key, next)
}

func isTombstoneKind(k Kind) bool {
	return k == KindFailedVerification || k == KindClosed || k == KindDelayVisibility
}

// SortAndUnload converts the lowest (1-targetFraction)*len(compiled)
// entries (ranked ascending by tx_usage) to Unloaded, preserving their
// usage counters (spec.md §4.3 "Eviction").
func (c *Cache) SortAndUnload(targetFraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type ref struct {
		key types.Pubkey
		idx int
	}
	var compiled []ref
	for _, key := range c.entries.Keys() {
		list, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		for i, p := range list {
			if p.Kind == KindCompiled {
				compiled = append(compiled, ref{key, i})
			}
		}
	}
	if len(compiled) == 0 {
		return
	}

	lists := make(map[types.Pubkey][]*LoadedProgram, len(compiled))
	get := func(k types.Pubkey) []*LoadedProgram {
		if l, ok := lists[k]; ok {
			return l
		}
		l, _ := c.entries.Peek(k)
		lists[k] = l
		return l
	}
	for _, r := range compiled {
		get(r.key)
	}

	sort.Slice(compiled, func(i, j int) bool {
		pi := lists[compiled[i].key][compiled[i].idx]
		pj := lists[compiled[j].key][compiled[j].idx]
		return pi.TxUsage() < pj.TxUsage()
	})

	unloadCount := int(float64(len(compiled)) * (1 - targetFraction))
	var oneHit uint64
	for i := 0; i < unloadCount; i++ {
		r := compiled[i]
		list := lists[r.key]
		p := list[r.idx]
		if p.TxUsage() == 1 {
			oneHit++
		}
		unloaded := p.clone()
		unloaded.Kind = KindUnloaded
		unloaded.Artifact = nil
		list[r.idx] = unloaded
	}
	for key, list := range lists {
		c.entries.Add(key, list)
	}

	c.oneHitWonders += oneHit
	if c.metrics != nil {
		c.metrics.CacheUnloaded.Add(float64(unloadCount))
		c.metrics.OneHitWonders.Add(float64(oneHit))
	}
	c.log.Info("sort_and_unload completed", "unloaded", unloadCount, "one_hit_wonders", oneHit)
}

// OneHitWonders returns the diagnostic-only counter of entries evicted
// while having tx_usage == 1 (spec.md §4.3 "Eviction").
func (c *Cache) OneHitWonders() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oneHitWonders
}

// Prune removes every entry across every tracked pubkey whose
// DeploymentSlot fails the relation test against root -- called alongside
// accounts.Store.Prune when a new root is taken.
func (c *Cache) Prune(root types.Slot) {
	if c.forkGraph == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.entries.Keys() {
		list, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		kept := list[:0:0]
		keptAncestor := false
		for _, p := range list {
			rel := c.forkGraph.Relationship(p.DeploymentSlot, root)
			switch rel {
			case types.RelationshipDescendant, types.RelationshipEqual:
				kept = append(kept, p)
			case types.RelationshipAncestor:
				if !keptAncestor {
					kept = append(kept, p)
					keptAncestor = true
				}
			}
		}
		c.entries.Add(key, kept)
	}
}
