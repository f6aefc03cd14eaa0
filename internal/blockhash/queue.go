// Package blockhash implements a bounded recent-blockhash queue: the
// fee-calculator lookup the loader's step 1 resolves recent_blockhash
// against (spec.md §4.5, grounded on
// original_source/runtime/src/accounts.rs's BlockhashQueue /
// register_hash usage in load_accounts_with_fee_and_rent).
package blockhash

import "sync"

// DefaultMaxAge bounds how many distinct blockhashes the queue remembers
// before evicting the oldest, the same shape as the original's
// BlockhashQueue::new(max_age) constructor.
const DefaultMaxAge = 300

// Queue is a FIFO of (blockhash -> lamports_per_signature) entries.
type Queue struct {
	mu         sync.Mutex
	maxAge     int
	order      [][32]byte
	lamportsBy map[[32]byte]uint64
}

// New constructs an empty Queue bounded to maxAge entries.
func New(maxAge int) *Queue {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Queue{
		maxAge:     maxAge,
		lamportsBy: make(map[[32]byte]uint64, maxAge),
	}
}

// RegisterHash records a newly-produced blockhash and the fee it currently
// charges per signature, evicting the oldest entry once the queue is full.
func (q *Queue) RegisterHash(hash [32]byte, lamportsPerSignature uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.lamportsBy[hash]; exists {
		return
	}
	q.order = append(q.order, hash)
	q.lamportsBy[hash] = lamportsPerSignature

	if len(q.order) > q.maxAge {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.lamportsBy, oldest)
	}
}

// LamportsPerSignature implements loader.BlockhashQueue: it reports the fee
// a transaction referencing hash as its recent_blockhash must pay, or false
// if the hash has aged out or was never registered.
func (q *Queue) LamportsPerSignature(hash [32]byte) (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.lamportsBy[hash]
	return v, ok
}
