// Package locks implements the account-lock table (C4): attempts to take
// write/read locks on every key a transaction touches, atomically per
// transaction, with rollback on partial failure (spec.md §4.4).
package locks

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/metrics"
	"github.com/stakenet/validatorcore/internal/types"
)

// Result is the outcome of attempting to lock one transaction's accounts.
type Result struct {
	OK  bool
	Err error // one of SanitizeFailure, AccountLoadedTwice, AccountInUse
}

// Table is the account-lock table. writeLocked is the set of pubkeys
// currently write-locked; readCounts counts concurrent readers per
// read-locked key, since mapset itself only tracks membership.
type Table struct {
	mu          sync.Mutex
	writeLocked mapset.Set[types.Pubkey]
	readCounts  map[types.Pubkey]int

	metrics *metrics.Registry
	log     *log.Logger
}

// New constructs an empty lock table.
func New(reg *metrics.Registry, logger *log.Logger) *Table {
	if logger == nil {
		logger = log.Default()
	}
	return &Table{
		writeLocked: mapset.NewThreadUnsafeSet[types.Pubkey](),
		readCounts:  make(map[types.Pubkey]int),
		metrics:     reg,
		log:         logger.Module("locks"),
	}
}

// LockAccounts attempts to lock every transaction's accounts, in order.
// Earlier transactions in the slice win contention over later ones
// (spec.md §4.4 "Order... is observable").
func (t *Table) LockAccounts(txs []types.Transaction) []Result {
	results := make([]Result, len(txs))
	for i, tx := range txs {
		results[i] = t.lockOne(tx)
	}
	return results
}

func (t *Table) lockOne(tx types.Transaction) Result {
	if err := tx.Sanitize(); err != nil {
		return Result{OK: false, Err: err}
	}

	// Sanitize already rejects duplicate account keys across the whole
	// message, so WritableKeys and ReadonlyKeys (a partition of
	// account_keys) cannot overlap or self-duplicate here.
	writable := tx.WritableKeys()
	readonly := tx.ReadonlyKeys()

	t.mu.Lock()
	defer t.mu.Unlock()

	acquiredWrite := make([]types.Pubkey, 0, len(writable))
	acquiredRead := make([]types.Pubkey, 0, len(readonly))

	rollback := func() {
		for _, k := range acquiredWrite {
			t.writeLocked.Remove(k)
		}
		for _, k := range acquiredRead {
			t.readCounts[k]--
			if t.readCounts[k] <= 0 {
				delete(t.readCounts, k)
			}
		}
	}

	for _, k := range writable {
		if t.writeLocked.Contains(k) || t.readCounts[k] > 0 {
			rollback()
			t.recordContention()
			return Result{OK: false, Err: types.ErrAccountInUse}
		}
		t.writeLocked.Add(k)
		acquiredWrite = append(acquiredWrite, k)
	}

	for _, k := range readonly {
		if t.writeLocked.Contains(k) {
			rollback()
			t.recordContention()
			return Result{OK: false, Err: types.ErrAccountInUse}
		}
		t.readCounts[k]++
		acquiredRead = append(acquiredRead, k)
	}

	t.recordHeld(len(acquiredWrite) + len(acquiredRead))
	return Result{OK: true}
}

// Unlock releases the locks a prior LockAccounts call acquired for tx.
// Per spec.md §4.4, transactions whose Result.Err is non-nil did not
// acquire any locks and must not be passed here.
func (t *Table) Unlock(tx types.Transaction, result Result) {
	if !result.OK {
		return
	}
	writable := tx.WritableKeys()
	readonly := tx.ReadonlyKeys()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range writable {
		t.writeLocked.Remove(k)
	}
	for _, k := range readonly {
		t.readCounts[k]--
		if t.readCounts[k] <= 0 {
			delete(t.readCounts, k)
		}
	}
	if t.metrics != nil {
		t.metrics.LockHeld.Sub(float64(len(writable) + len(readonly)))
	}
}

func (t *Table) recordContention() {
	if t.metrics != nil {
		t.metrics.LockContention.Inc()
	}
}

func (t *Table) recordHeld(n int) {
	if t.metrics != nil {
		t.metrics.LockHeld.Add(float64(n))
	}
}
