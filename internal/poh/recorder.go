// Package poh implements the proof-of-history recorder (C7): a
// single-writer sequential hash chain that stamps committed entries with
// a tick count and reports leader-slot windows to the banking stage
// (spec.md §4.7).
package poh

import (
	"crypto/sha256"
	"sync"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/types"
)

// Bank is the minimal working-bank handle the recorder needs: which slot
// it is building and the most PoH ticks (one per Record call) that slot
// accepts.
type Bank struct {
	Slot          types.Slot
	MaxTickHeight uint64
}

// Entry is one PoH-stamped batch of transactions (spec.md §4.7, wire
// shape matches the ledger package's Entry for direct persistence).
type Entry struct {
	NumHashes    uint64
	Hash         [32]byte
	Transactions []types.Transaction
}

// Recorder is the C7 single-writer hash chain.
type Recorder struct {
	mu sync.Mutex // single-writer lock (spec.md §5 "single record at a time")

	hash       [32]byte
	tickHeight uint64

	bank       *Bank
	hasBank    bool
	schedule   types.LeaderSchedule
	currentSlot types.Slot

	out chan Entry

	log *log.Logger
}

// New constructs a Recorder seeded with an initial hash and an outbound
// entry channel (spec.md §4.7's "single output channel").
func New(seedHash [32]byte, schedule types.LeaderSchedule, outBuffer int, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		hash:     seedHash,
		schedule: schedule,
		out:      make(chan Entry, outBuffer),
		log:      logger.Module("poh"),
	}
}

// Entries returns the recorder's outbound entry channel.
func (r *Recorder) Entries() <-chan Entry { return r.out }

// SetBank attaches the working bank the recorder is currently producing
// entries for. Clearing it (nil) marks the recorder as having no working
// bank, matching HasBank()/Bank()'s Option semantics.
func (r *Recorder) SetBank(b *Bank, slot types.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bank = b
	r.hasBank = b != nil
	r.tickHeight = 0
	r.currentSlot = slot
}

// HasBank reports whether a working bank is currently attached.
func (r *Recorder) HasBank() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasBank
}

// CurrentBank returns the current working bank, or false if none is
// attached (spec.md §4.7 "bank() -> Option<Bank>").
func (r *Recorder) CurrentBank() (*Bank, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasBank {
		return nil, false
	}
	return r.bank, true
}

// LeaderAfterNSlots returns who the leader schedule assigns n slots ahead
// of the recorder's current slot (spec.md §4.7).
func (r *Recorder) LeaderAfterNSlots(n uint64) (types.Pubkey, bool) {
	r.mu.Lock()
	slot := r.currentSlot
	r.mu.Unlock()
	if r.schedule == nil {
		return types.Pubkey{}, false
	}
	return r.schedule.LeaderAtSlot(slot + types.Slot(n))
}

// WouldBeLeader reports whether this node becomes leader within
// ticksAhead ticks (the current slot and every slot up to
// ticksAhead/ticksPerSlot ahead), using self as the pubkey the caller
// compares against -- callers pass their own identity since the recorder
// itself is identity-agnostic.
func (r *Recorder) WouldBeLeader(ticksAhead uint64, self types.Pubkey, ticksPerSlot uint64) bool {
	if ticksPerSlot == 0 {
		return false
	}
	slots := ticksAhead / ticksPerSlot
	for n := uint64(0); n <= slots; n++ {
		if leader, ok := r.LeaderAfterNSlots(n); ok && leader == self {
			return true
		}
	}
	return false
}

// NextSlotLeader returns the leader of the slot immediately following the
// recorder's current slot.
func (r *Recorder) NextSlotLeader() (types.Pubkey, bool) {
	return r.LeaderAfterNSlots(1)
}

// Record appends one batch to the hash chain, mixing the caller-supplied
// batch hash into the chain before emitting the entry (spec.md §4.7
// "record(slot, hash_of_batch, transactions)"). Fails with
// ErrMaxHeightReached if slot does not match the working bank's slot or
// the tick budget is exhausted.
func (r *Recorder) Record(slot types.Slot, hashOfBatch [32]byte, txs []types.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasBank || slot != r.bank.Slot {
		return types.ErrMaxHeightReached
	}
	if r.tickHeight >= r.bank.MaxTickHeight {
		return types.ErrMaxHeightReached
	}

	r.hash = mixHash(r.hash, hashOfBatch)
	r.tickHeight++

	entry := Entry{
		NumHashes:    r.tickHeight,
		Hash:         r.hash,
		Transactions: txs,
	}
	r.out <- entry
	return nil
}

// mixHash folds a batch hash into the running PoH chain via SHA-256, the
// same primitive the account store's delta hash uses for chain extension
// (internal/accounts/hash.go), kept consistent across the repo's two hash
// chains per spec.md §9 "Hash determinism".
func mixHash(prev, batch [32]byte) [32]byte {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(batch[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
