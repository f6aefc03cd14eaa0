package banking

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stakenet/validatorcore/internal/builtin"
	"github.com/stakenet/validatorcore/internal/loader"
	"github.com/stakenet/validatorcore/internal/locks"
	"github.com/stakenet/validatorcore/internal/poh"
	"github.com/stakenet/validatorcore/internal/processor"
	"github.com/stakenet/validatorcore/internal/types"
)

type fakeStore struct {
	accounts map[types.Pubkey]types.Account
}

func (s *fakeStore) Load(_ types.AncestorSet, key types.Pubkey) (types.Account, types.Slot, bool) {
	a, ok := s.accounts[key]
	return a, 0, ok
}

type fakeQueue struct{}

func (fakeQueue) LamportsPerSignature(_ [32]byte) (uint64, bool) { return 5, true }

type fakeRent struct{}

func (fakeRent) CollectRent(_ types.Slot, _ types.Pubkey, _ *types.Account) uint64 { return 0 }

func (fakeRent) MinimumBalance(int) uint64 { return 0 }

type fakeSchedule struct {
	leader types.Pubkey
}

func (s fakeSchedule) LeaderAtSlot(_ types.Slot) (types.Pubkey, bool) { return s.leader, true }

type fakeApplier struct {
	applied bool
	keys    []types.Pubkey
	result  []types.Account
}

func (f *fakeApplier) Apply(_ types.Slot, keys []types.Pubkey, _ []bool, result []types.Account) {
	f.applied = true
	f.keys = keys
	f.result = result
}

type fakeForwarder struct {
	forwarded bool
}

func (f *fakeForwarder) Forward(_ *net.UDPAddr, _ []types.Transaction) error {
	f.forwarded = true
	return nil
}

func transferTx(payer, recipient, program types.Pubkey, amount uint64) types.Transaction {
	data := make([]byte, 8)
	for i := 0; i < 8; i++ {
		data[i] = byte(amount >> (8 * i))
	}
	return types.Transaction{
		Signatures: []types.Signature{{0x1}},
		Message: types.Message{
			Header: types.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: []types.Pubkey{payer, recipient, program},
			Instructions: []types.Instruction{
				{ProgramIDIndex: 2, AccountIndices: []int{0, 1}, Data: data},
			},
		},
	}
}

func newTestWorker(t *testing.T, slot types.Slot, applier *fakeApplier, forwarder *fakeForwarder, bufCap int) (*Worker, types.Pubkey, types.Pubkey, types.Pubkey) {
	t.Helper()

	payer := pk(10)
	recipient := pk(11)
	program := types.SystemProgramPubkey

	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:     {Lamports: 1_000, Owner: types.SystemProgramPubkey},
		recipient: {Lamports: 0, Owner: types.SystemProgramPubkey},
		program:   {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	ld := loader.New(store, fakeQueue{}, fakeRent{}, types.Pubkey{}, false, nil)

	proc := processor.New(builtin.New(), nil, nil)

	rec := poh.New([32]byte{}, fakeSchedule{leader: pk(99)}, 4, nil)
	rec.SetBank(&poh.Bank{Slot: slot, MaxTickHeight: 100}, slot)

	incoming := make(chan types.Transaction, 4)
	w := NewWorker(Config{
		ID:        0,
		IsVote:    false,
		Incoming:  incoming,
		BufferCap: bufCap,
		Table:     locks.New(nil, nil),
		Loader:    ld,
		Processor: proc,
		Recorder:  rec,
		Forwarder: forwarder,
		Applier:   applier,
		Costs:     NewCostTracker(DefaultSlotCostBudget),
		Ancestors: func() types.AncestorSet { return types.NewAncestorSet(slot) },
		Self:      pk(1),
		NextLeaderAddr: func(types.Pubkey) (*net.UDPAddr, bool) {
			return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8001}, true
		},
	})
	w.incoming = incoming
	return w, payer, recipient, program
}

func TestWorkerConsumeAppliesAndRecords(t *testing.T) {
	applier := &fakeApplier{}
	w, payer, recipient, program := newTestWorker(t, 7, applier, &fakeForwarder{}, PacketsPerBatch)

	w.enqueue(transferTx(payer, recipient, program, 100))
	w.consume()

	if !applier.applied {
		t.Fatal("expected the applier to receive the committed account set")
	}
	var gotPayer, gotRecipient types.Account
	for i, k := range applier.keys {
		if k == payer {
			gotPayer = applier.result[i]
		}
		if k == recipient {
			gotRecipient = applier.result[i]
		}
	}
	// 1000 starting - 5 lamports fee (lamports_per_signature=5, one
	// signature) - 100 lamports transferred.
	if gotPayer.Lamports != 895 {
		t.Fatalf("expected payer left with 895 lamports, got %d", gotPayer.Lamports)
	}
	if gotRecipient.Lamports != 100 {
		t.Fatalf("expected recipient credited 100 lamports, got %d", gotRecipient.Lamports)
	}
	if len(w.buffer) != 0 {
		t.Fatalf("expected buffer drained after consume, got %d remaining", len(w.buffer))
	}

	select {
	case entry := <-w.recorder.Entries():
		if len(entry.Transactions) != 1 {
			t.Fatalf("expected one recorded transaction, got %d", len(entry.Transactions))
		}
	case <-time.After(time.Second):
		t.Fatal("expected a PoH entry to be recorded for the committed batch")
	}
}

func TestWorkerConsumeHoldsOverBudgetTransactions(t *testing.T) {
	applier := &fakeApplier{}
	w, payer, recipient, program := newTestWorker(t, 7, applier, &fakeForwarder{}, PacketsPerBatch)
	w.costs = NewCostTracker(1) // too small for any transaction to be admitted

	w.enqueue(transferTx(payer, recipient, program, 50))
	w.consume()

	if applier.applied {
		t.Fatal("did not expect an over-budget transaction to be applied")
	}
	if len(w.buffer) != 1 {
		t.Fatalf("expected the over-budget transaction to remain buffered, got %d", len(w.buffer))
	}
}

func TestWorkerForwardSendsBufferedNonVoteTraffic(t *testing.T) {
	forwarder := &fakeForwarder{}
	w, payer, recipient, program := newTestWorker(t, 7, &fakeApplier{}, forwarder, PacketsPerBatch)

	w.enqueue(transferTx(payer, recipient, program, 1))
	w.forward(pk(99))

	if !forwarder.forwarded {
		t.Fatal("expected buffered packets forwarded to the next leader")
	}
	if len(w.buffer) != 0 {
		t.Fatal("expected buffer cleared after forwarding")
	}
}

func TestWorkerForwardIsNoOpForVoteWorker(t *testing.T) {
	forwarder := &fakeForwarder{}
	w, payer, recipient, program := newTestWorker(t, 7, &fakeApplier{}, forwarder, PacketsPerBatch)
	w.isVote = true

	w.enqueue(transferTx(payer, recipient, program, 1))
	w.forward(pk(99))

	if forwarder.forwarded {
		t.Fatal("expected the vote worker never to forward")
	}
	if len(w.buffer) != 1 {
		t.Fatal("expected the vote worker's buffer to be left untouched")
	}
}

func TestWorkerEnqueueDropsOldestOnOverflow(t *testing.T) {
	w, payer, recipient, program := newTestWorker(t, 7, &fakeApplier{}, &fakeForwarder{}, 2)

	first := transferTx(payer, recipient, program, 1)
	second := transferTx(payer, recipient, program, 2)
	third := transferTx(payer, recipient, program, 3)

	w.enqueue(first)
	w.enqueue(second)
	w.enqueue(third)

	if len(w.buffer) != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", len(w.buffer))
	}
	if w.buffer[0].Message.Instructions[0].Data[0] != 2 {
		t.Fatal("expected the oldest batch dropped, keeping the two most recent transactions")
	}
}

func TestStageRunSupervisesWorkersUntilCancelled(t *testing.T) {
	w, _, _, _ := newTestWorker(t, 7, &fakeApplier{}, &fakeForwarder{}, PacketsPerBatch)
	stage := NewStage([]*Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stage.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context-cancellation error from Stage.Run")
		}
	case <-time.After(time.Second):
		t.Fatal("expected Stage.Run to return after context cancellation")
	}
}
