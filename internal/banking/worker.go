// Package banking implements the banking stage (C8): N worker goroutines
// that drain verified packets, decide Consume/Forward/Hold, resolve
// account locks, load and process transactions, and record successful
// entries through the PoH recorder (spec.md §4.8).
package banking

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/stakenet/validatorcore/internal/loader"
	"github.com/stakenet/validatorcore/internal/locks"
	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/metrics"
	"github.com/stakenet/validatorcore/internal/poh"
	"github.com/stakenet/validatorcore/internal/processor"
	"github.com/stakenet/validatorcore/internal/types"
)

// maxBatchSize is "a batch of up to 128 transactions" (spec.md §4.8 step 2).
const maxBatchSize = 128

// PacketsPerBatch bounds the per-worker FIFO buffer sizing formula of
// spec.md §4.8 step 2.
const PacketsPerBatch = maxBatchSize

// Forwarder sends a worker's held, non-vote packets to the next leader's
// TPU-forwards address (spec.md §4.8 step 3). Errors are swallowed:
// forwarding is best-effort (spec.md §5 "Suspension points").
type Forwarder interface {
	Forward(addr *net.UDPAddr, txs []types.Transaction) error
}

// AccountApplier commits a processed message's resulting account set back
// to the account store at the working bank's slot; it is supplied by the
// bank/runtime layer this package does not own.
type AccountApplier interface {
	Apply(slot types.Slot, keys []types.Pubkey, writable []bool, result []types.Account)
}

// Worker is one of the N banking-stage threads (spec.md §4.8).
type Worker struct {
	id         int
	isVote     bool
	incoming   <-chan types.Transaction
	buffer     []types.Transaction // FIFO, capped, overflow drops oldest
	bufferCap  int

	table     *locks.Table
	ld        *loader.Loader
	proc      *processor.Processor
	recorder  *poh.Recorder
	forwarder Forwarder
	applier   AccountApplier
	costs     *CostTracker

	ancestors func() types.AncestorSet
	self      types.Pubkey
	nextLeaderAddr func(types.Pubkey) (*net.UDPAddr, bool)

	metrics *metrics.Registry
	log     *log.Logger
}

// Config bundles a Worker's collaborators, supplied once by Stage.
type Config struct {
	ID             int
	IsVote         bool
	Incoming       <-chan types.Transaction
	BufferCap      int
	Table          *locks.Table
	Loader         *loader.Loader
	Processor      *processor.Processor
	Recorder       *poh.Recorder
	Forwarder      Forwarder
	Applier        AccountApplier
	Costs          *CostTracker
	Ancestors      func() types.AncestorSet
	Self           types.Pubkey
	NextLeaderAddr func(types.Pubkey) (*net.UDPAddr, bool)
	Metrics        *metrics.Registry
	Logger         *log.Logger
}

// NewWorker constructs a Worker from Config.
func NewWorker(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	bufCap := cfg.BufferCap
	if bufCap <= 0 {
		bufCap = PacketsPerBatch
	}
	return &Worker{
		id:             cfg.ID,
		isVote:         cfg.IsVote,
		incoming:       cfg.Incoming,
		bufferCap:      bufCap,
		table:          cfg.Table,
		ld:             cfg.Loader,
		proc:           cfg.Processor,
		recorder:       cfg.Recorder,
		forwarder:      cfg.Forwarder,
		applier:        cfg.Applier,
		costs:          cfg.Costs,
		ancestors:      cfg.Ancestors,
		self:           cfg.Self,
		nextLeaderAddr: cfg.NextLeaderAddr,
		metrics:        cfg.Metrics,
		log:            logger.Module("banking").With("worker", cfg.ID),
	}
}

// Run loops until ctx is cancelled or the incoming channel closes
// (spec.md §4.8 "Cancellation"). Each iteration makes one
// Consume/Forward/Hold decision and acts on it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-w.incoming:
			if !ok {
				return nil
			}
			w.enqueue(tx)
		}
		w.step()
	}
}

func (w *Worker) enqueue(tx types.Transaction) {
	w.buffer = append(w.buffer, tx)
	if len(w.buffer) > w.bufferCap {
		// Oldest batch dropped on overflow (spec.md §4.8 step 2).
		drop := len(w.buffer) - w.bufferCap
		w.buffer = w.buffer[drop:]
		if w.metrics != nil {
			w.metrics.BankingDroppedBatches.Add(float64(drop))
		}
	}
}

func (w *Worker) step() {
	hasBank := w.recorder.HasBank()
	nextLeader, leaderKnown := w.recorder.NextSlotLeader()
	isSelf := leaderKnown && nextLeader == w.self
	wouldBeLeaderWithinOffset := w.recorder.WouldBeLeader(forwardOffsetSlots, w.self, 1)

	decision := decide(hasBank, wouldBeLeaderWithinOffset, leaderKnown, isSelf, w.isVote)

	switch decision {
	case DecisionConsume:
		w.consume()
	case DecisionForward:
		w.forward(nextLeader)
	case DecisionHold:
		// Keep buffer, resume polling (spec.md §4.8 step 4).
	}
}

func (w *Worker) consume() {
	if len(w.buffer) == 0 {
		return
	}
	batchSize := len(w.buffer)
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	batch := w.buffer[:batchSize]

	admitted := make([]types.Transaction, 0, len(batch))
	held := make([]types.Transaction, 0)
	for _, tx := range batch {
		if w.costs == nil || w.costs.TryAdmit(tx) {
			admitted = append(admitted, tx)
		} else {
			// Over-budget transactions are held, not dropped: they go
			// back to the front of the buffer for a later slot's budget.
			held = append(held, tx)
		}
	}

	results := w.table.LockAccounts(admitted)

	locked := make([]types.Transaction, 0, len(admitted))
	lockResults := make([]locks.Result, 0, len(admitted))
	for i, tx := range admitted {
		if results[i].OK {
			locked = append(locked, tx)
			lockResults = append(lockResults, results[i])
		} else if results[i].Err == types.ErrAccountInUse {
			// AccountInUse transactions go back to the front of the buffer
			// with the held ones and are retried on a later consume.
			held = append(held, tx)
		}
		// SanitizeFailure / AccountLoadedTwice transactions are dropped.
	}

	bank, _ := w.recorder.CurrentBank()
	var committedHashes [][32]byte
	var committedTxs []types.Transaction

	for i, tx := range locked {
		lt, err := w.ld.Load(tx, w.ancestors(), bank.Slot)
		if err != nil {
			w.table.Unlock(tx, lockResults[i])
			continue
		}

		keys := make([]types.Pubkey, len(lt.Accounts))
		writable := make([]bool, len(lt.Accounts))
		initial := make([]types.Account, len(lt.Accounts))
		for j, a := range lt.Accounts {
			keys[j] = a.Key
			writable[j] = a.Writable
			initial[j] = a.Account
		}

		result, err := w.proc.Process(keys, writable, initial, tx.Message.Instructions, nil)
		w.table.Unlock(tx, lockResults[i])
		if err != nil {
			continue
		}

		if w.applier != nil {
			w.applier.Apply(bank.Slot, keys, writable, result)
		}
		committedTxs = append(committedTxs, tx)
		committedHashes = append(committedHashes, batchHash(tx))
	}

	if len(committedTxs) > 0 && w.recorder != nil {
		combined := combineHashes(committedHashes)
		_ = w.recorder.Record(bank.Slot, combined, committedTxs)
	}
	if w.metrics != nil {
		w.metrics.BankingConsumed.Add(float64(len(committedTxs)))
	}

	w.buffer = append(held, w.buffer[batchSize:]...)
}

func (w *Worker) forward(nextLeader types.Pubkey) {
	if w.isVote {
		// Vote thread never forwards (spec.md §4.8 step 1).
		return
	}
	if len(w.buffer) == 0 {
		return
	}
	if w.nextLeaderAddr != nil && w.forwarder != nil {
		if addr, ok := w.nextLeaderAddr(nextLeader); ok {
			_ = w.forwarder.Forward(addr, w.buffer) // best-effort, errors swallowed
			if w.metrics != nil {
				w.metrics.BankingForwarded.Add(float64(len(w.buffer)))
			}
		}
	}
	w.buffer = w.buffer[:0]
}

// Stage owns N workers and supervises them with an errgroup, replacing a
// hand-rolled sync.WaitGroup + error channel (SPEC_FULL.md §3, grounded
// in the teacher pack's use of golang.org/x/sync/errgroup for worker-pool
// supervision).
type Stage struct {
	workers []*Worker
}

// NewStage constructs a Stage. Per spec.md §4.8, N defaults to 4 and a
// minimum of 2 (1 vote + 1 non-vote); worker 0 is always the vote worker
// (SPEC_FULL.md §4 "Vote vs. non-vote worker split").
func NewStage(workers []*Worker) *Stage {
	return &Stage{workers: workers}
}

// Run starts every worker under a shared errgroup and blocks until all
// exit or ctx is cancelled.
func (s *Stage) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
