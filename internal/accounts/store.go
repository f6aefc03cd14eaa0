// Package accounts implements the fork-aware, versioned account store (C2):
// a pubkey->slot->account map with ancestor-aware lookup, fork pruning, and
// rooted commit (spec.md §4.2).
package accounts

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/metrics"
	"github.com/stakenet/validatorcore/internal/types"
)

// numShards buckets the outer pubkey map for fine-grained locking
// (spec.md §4.2 "per-pubkey or bucketed-pubkey fine-grained locking").
const numShards = 256

// Persister is the durable backing store a Store flushes rooted entries to
// and falls back to on a cold read for a pubkey evicted from memory. It is
// implemented by the ledger package (pebble + fastcache); Store itself has
// no direct storage-engine dependency, keeping the versioned-index logic
// independent of the persistence format (spec.md §6).
type Persister interface {
	Flush(slot types.Slot, writes []types.Pubkey, entries map[types.Pubkey]types.VersionedEntry) error
	ColdLoad(key types.Pubkey) (types.Account, types.Slot, bool, error)
}

// entryList is the immutable, sorted-descending-by-slot snapshot a shard
// swaps in atomically. Readers load the pointer once and linear-search it
// without holding any lock (spec.md §4.2 "the inner list is copy-on-update
// for readers").
type entryList []types.VersionedEntry

type shard struct {
	mu      sync.Mutex // serializes writers within the shard only
	entries map[types.Pubkey]*atomic.Pointer[entryList]
}

// Store is the C2 account store.
type Store struct {
	shards    [numShards]*shard
	writeVer  atomic.Uint64
	forkGraph types.ForkGraph
	persister Persister

	rootsMu sync.RWMutex
	roots   map[types.Slot]struct{}

	slotIndexMu sync.Mutex
	slotIndex   map[types.Slot]map[types.Pubkey]struct{}

	parentOf   map[types.Slot]types.Slot
	deltaHash  map[types.Slot][32]byte
	parentMu   sync.Mutex

	metrics *metrics.Registry
	log     *log.Logger
}

// New constructs an empty Store. forkGraph and persister may be nil in
// tests that do not exercise pruning or cold reads.
func New(forkGraph types.ForkGraph, persister Persister, reg *metrics.Registry, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		forkGraph:  forkGraph,
		persister:  persister,
		roots:      make(map[types.Slot]struct{}),
		slotIndex:  make(map[types.Slot]map[types.Pubkey]struct{}),
		parentOf:   make(map[types.Slot]types.Slot),
		deltaHash:  make(map[types.Slot][32]byte),
		metrics:    reg,
		log:        logger.Module("accounts"),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[types.Pubkey]*atomic.Pointer[entryList])}
	}
	return s
}

func (s *Store) shardFor(key types.Pubkey) *shard {
	return s.shards[key[0]]
}

// SetParent records the parent of a newly-created slot, used by HashAt to
// chain delta hashes (spec.md §4.2 "Delta hash").
func (s *Store) SetParent(slot, parent types.Slot) {
	s.parentMu.Lock()
	defer s.parentMu.Unlock()
	s.parentOf[slot] = parent
}

// Load returns the most recent entry for key visible from ancestors, or
// false if missing. A zero-lamport entry is a tombstone: it shadows older
// non-zero entries on the same fork but is reported as missing
// (spec.md §4.2).
func (s *Store) Load(ancestors types.AncestorSet, key types.Pubkey) (types.Account, types.Slot, bool) {
	if s.metrics != nil {
		s.metrics.AccountStoreReads.Inc()
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	ptr, ok := sh.entries[key]
	sh.mu.Unlock()

	if ok {
		list := ptr.Load()
		for _, e := range *list {
			if ancestors.Contains(e.Slot) {
				if !e.Account.Exists() {
					return types.Account{}, 0, false
				}
				return e.Account, e.Slot, true
			}
		}
	}

	if s.persister != nil {
		if acct, slot, found, err := s.persister.ColdLoad(key); err == nil && found {
			if !ancestors.Contains(slot) {
				return types.Account{}, 0, false
			}
			if !acct.Exists() {
				return types.Account{}, 0, false
			}
			return acct, slot, true
		}
	}
	return types.Account{}, 0, false
}

// Store writes versioned entries at slot, assigning each a fresh
// strictly-increasing write_version (spec.md §4.2).
func (s *Store) Store(slot types.Slot, writes []AccountWrite) {
	for _, w := range writes {
		sh := s.shardFor(w.Key)
		sh.mu.Lock()
		ptr, ok := sh.entries[w.Key]
		if !ok {
			ptr = &atomic.Pointer[entryList]{}
			empty := entryList{}
			ptr.Store(&empty)
			sh.entries[w.Key] = ptr
		}
		old := *ptr.Load()
		wv := s.writeVer.Add(1)
		newEntry := types.VersionedEntry{Slot: slot, Account: w.Account, WriteVersion: wv}

		replaced := false
		next := make(entryList, 0, len(old)+1)
		for _, e := range old {
			if e.Slot == slot && !replaced {
				next = append(next, newEntry)
				replaced = true
				continue
			}
			next = append(next, e)
		}
		if !replaced {
			// Insert keeping descending-by-slot order.
			idx := sort.Search(len(next), func(i int) bool { return next[i].Slot <= slot })
			next = append(next, types.VersionedEntry{})
			copy(next[idx+1:], next[idx:])
			next[idx] = newEntry
		}
		ptr.Store(&next)
		sh.mu.Unlock()
	}

	s.slotIndexMu.Lock()
	idx, ok := s.slotIndex[slot]
	if !ok {
		idx = make(map[types.Pubkey]struct{}, len(writes))
		s.slotIndex[slot] = idx
	}
	for _, w := range writes {
		idx[w.Key] = struct{}{}
	}
	s.slotIndexMu.Unlock()

	if s.metrics != nil {
		s.metrics.AccountStoreWrites.Add(float64(len(writes)))
	}
}

// AccountWrite pairs a pubkey with the account to write at a given slot.
type AccountWrite struct {
	Key     types.Pubkey
	Account types.Account
}

// ScanSlot applies f to every entry written at slot, the latest per key
// (spec.md §4.2).
func (s *Store) ScanSlot(slot types.Slot, f func(types.Pubkey, types.Account)) {
	s.slotIndexMu.Lock()
	keys := make([]types.Pubkey, 0, len(s.slotIndex[slot]))
	for k := range s.slotIndex[slot] {
		keys = append(keys, k)
	}
	s.slotIndexMu.Unlock()

	for _, k := range keys {
		sh := s.shardFor(k)
		sh.mu.Lock()
		ptr := sh.entries[k]
		sh.mu.Unlock()
		if ptr == nil {
			continue
		}
		for _, e := range *ptr.Load() {
			if e.Slot == slot {
				f(k, e.Account)
				break
			}
		}
	}
}

// AddRoot declares slot finalized; entries at non-ancestor siblings become
// eligible for removal by a subsequent Prune call (spec.md §4.2). Rooted
// entries are flushed to the durable Persister so a cold read or process
// restart can still find them after an in-memory Prune evicts them.
func (s *Store) AddRoot(slot types.Slot) {
	s.rootsMu.Lock()
	s.roots[slot] = struct{}{}
	s.rootsMu.Unlock()
	if s.metrics != nil {
		s.metrics.RootedSlots.Inc()
	}
	s.flushSlot(slot)
}

// flushSlot hands every entry written at slot to the Persister. A nil
// Persister (e.g. in tests that don't exercise durability) is a no-op.
func (s *Store) flushSlot(slot types.Slot) {
	if s.persister == nil {
		return
	}

	s.slotIndexMu.Lock()
	keys := make([]types.Pubkey, 0, len(s.slotIndex[slot]))
	for k := range s.slotIndex[slot] {
		keys = append(keys, k)
	}
	s.slotIndexMu.Unlock()
	if len(keys) == 0 {
		return
	}

	entries := make(map[types.Pubkey]types.VersionedEntry, len(keys))
	for _, k := range keys {
		sh := s.shardFor(k)
		sh.mu.Lock()
		ptr := sh.entries[k]
		sh.mu.Unlock()
		if ptr == nil {
			continue
		}
		for _, e := range *ptr.Load() {
			if e.Slot == slot {
				entries[k] = e
				break
			}
		}
	}

	if err := s.persister.Flush(slot, keys, entries); err != nil {
		s.log.Error("failed to flush rooted slot", "slot", slot, "err", err)
	}
}

// IsRooted reports whether slot has been declared finalized.
func (s *Store) IsRooted(slot types.Slot) bool {
	s.rootsMu.RLock()
	defer s.rootsMu.RUnlock()
	_, ok := s.roots[slot]
	return ok
}

// PurgeSlot unconditionally removes all entries at slot if slot is not
// rooted; a no-op (silent) on a rooted slot (spec.md §4.2).
func (s *Store) PurgeSlot(slot types.Slot) {
	if s.IsRooted(slot) {
		return
	}
	s.slotIndexMu.Lock()
	keys := s.slotIndex[slot]
	delete(s.slotIndex, slot)
	s.slotIndexMu.Unlock()

	removed := false
	for k := range keys {
		sh := s.shardFor(k)
		sh.mu.Lock()
		if ptr, ok := sh.entries[k]; ok {
			old := *ptr.Load()
			next := make(entryList, 0, len(old))
			for _, e := range old {
				if e.Slot != slot {
					next = append(next, e)
				} else {
					removed = true
				}
			}
			ptr.Store(&next)
		}
		sh.mu.Unlock()
	}
	if removed && s.metrics != nil {
		s.metrics.PurgedSlots.Inc()
	}
}

// Prune applies the fork-prune rule of spec.md §4.2 now that root has been
// declared: for every pubkey, keep (a) all entries whose slot is root or a
// descendant of root, and (b) the single newest entry whose slot is an
// ancestor of root. Requires a ForkGraph to have been supplied at
// construction.
func (s *Store) Prune(root types.Slot) {
	if s.forkGraph == nil {
		s.log.Warn("prune called without a fork graph, skipping", "root", root)
		return
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, ptr := range sh.entries {
			old := *ptr.Load()
			next := make(entryList, 0, len(old))
			keptAncestor := false
			for _, e := range old {
				rel := s.forkGraph.Relationship(e.Slot, root)
				switch rel {
				case types.RelationshipDescendant, types.RelationshipEqual:
					next = append(next, e)
				case types.RelationshipAncestor:
					if !keptAncestor {
						next = append(next, e)
						keptAncestor = true
					}
				default:
					// Unrelated/unknown: belongs to a pruned sibling fork,
					// drop it.
				}
			}
			ptr.Store(&next)
		}
		sh.mu.Unlock()
	}
}

// HashAt returns the delta hash of all writes at slot combined with the
// parent's delta hash (spec.md §4.2, §9 "Hash determinism"). The parent
// must have been registered via SetParent, or hasParent must be false for
// a genesis slot.
func (s *Store) HashAt(slot types.Slot) ([32]byte, error) {
	s.parentMu.Lock()
	parent, hasParent := s.parentOf[slot]
	if cached, ok := s.deltaHash[slot]; ok {
		s.parentMu.Unlock()
		return cached, nil
	}
	s.parentMu.Unlock()

	var parentHash [32]byte
	if hasParent {
		var err error
		parentHash, err = s.HashAt(parent)
		if err != nil {
			return [32]byte{}, err
		}
	}

	var writes []keyedAccount
	s.ScanSlot(slot, func(k types.Pubkey, a types.Account) {
		writes = append(writes, keyedAccount{k, a})
	})
	sort.Slice(writes, func(i, j int) bool { return writes[i].key.Less(writes[j].key) })

	h := deltaHash(parentHash, writes)

	s.parentMu.Lock()
	s.deltaHash[slot] = h
	s.parentMu.Unlock()
	return h, nil
}

// Capitalization sums lamports over every account reachable from ancestors
// (spec.md §4.2). The running total is accumulated in a uint256 so that
// summing millions of near-max-uint64 balances can never silently wrap,
// the same overflow-safe-accumulator idiom the teacher uses when summing
// account balances for a state-root check.
func (s *Store) Capitalization(ancestors types.AncestorSet) uint64 {
	total := new(uint256.Int)
	for _, sh := range s.shards {
		sh.mu.Lock()
		ptrs := make([]*atomic.Pointer[entryList], 0, len(sh.entries))
		for _, p := range sh.entries {
			ptrs = append(ptrs, p)
		}
		sh.mu.Unlock()

		for _, ptr := range ptrs {
			for _, e := range *ptr.Load() {
				if ancestors.Contains(e.Slot) {
					// A zero-lamport tombstone shadows older entries, as in Load.
					if e.Account.Exists() {
						total.Add(total, uint256.NewInt(e.Account.Lamports))
					}
					break
				}
			}
		}
	}
	if !total.IsUint64() {
		return ^uint64(0)
	}
	return total.Uint64()
}
