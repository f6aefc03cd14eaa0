package poh

import (
	"errors"
	"testing"

	"github.com/stakenet/validatorcore/internal/types"
)

type fakeSchedule struct {
	leaders map[types.Slot]types.Pubkey
}

func (f *fakeSchedule) LeaderAtSlot(s types.Slot) (types.Pubkey, bool) {
	p, ok := f.leaders[s]
	return p, ok
}

func pk(b byte) types.Pubkey {
	var k types.Pubkey
	k[0] = b
	return k
}

func TestHasBankReflectsSetBank(t *testing.T) {
	r := New([32]byte{}, nil, 8, nil)
	if r.HasBank() {
		t.Fatal("expected no working bank initially")
	}
	r.SetBank(&Bank{Slot: 5, MaxTickHeight: 10}, 5)
	if !r.HasBank() {
		t.Fatal("expected working bank attached")
	}
	b, ok := r.CurrentBank()
	if !ok || b.Slot != 5 {
		t.Fatalf("expected bank at slot 5, got %+v ok=%v", b, ok)
	}
}

func TestRecordSucceedsAndChainsHash(t *testing.T) {
	r := New([32]byte{1}, nil, 8, nil)
	r.SetBank(&Bank{Slot: 1, MaxTickHeight: 5}, 1)

	if err := r.Record(1, [32]byte{2}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := <-r.Entries()
	if entry.NumHashes != 1 {
		t.Fatalf("expected tick height 1, got %d", entry.NumHashes)
	}

	if err := r.Record(1, [32]byte{3}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry2 := <-r.Entries()
	if entry2.Hash == entry.Hash {
		t.Fatal("expected chained hash to differ between entries")
	}
}

func TestRecordWrongSlotFails(t *testing.T) {
	r := New([32]byte{}, nil, 8, nil)
	r.SetBank(&Bank{Slot: 1, MaxTickHeight: 5}, 1)

	err := r.Record(2, [32]byte{1}, nil)
	if !errors.Is(err, types.ErrMaxHeightReached) {
		t.Fatalf("expected ErrMaxHeightReached on slot mismatch, got %v", err)
	}
}

func TestRecordExhaustsTickBudget(t *testing.T) {
	r := New([32]byte{}, nil, 8, nil)
	r.SetBank(&Bank{Slot: 1, MaxTickHeight: 2}, 1)

	if err := r.Record(1, [32]byte{1}, nil); err != nil {
		t.Fatalf("unexpected error on first record: %v", err)
	}
	<-r.Entries()
	if err := r.Record(1, [32]byte{2}, nil); err != nil {
		t.Fatalf("unexpected error on second record: %v", err)
	}
	<-r.Entries()
	if err := r.Record(1, [32]byte{3}, nil); !errors.Is(err, types.ErrMaxHeightReached) {
		t.Fatalf("expected MaxHeightReached once tick budget exhausted, got %v", err)
	}
}

func TestNextSlotLeaderAndWouldBeLeader(t *testing.T) {
	me := pk(7)
	schedule := &fakeSchedule{leaders: map[types.Slot]types.Pubkey{
		1: pk(1),
		2: me,
	}}
	r := New([32]byte{}, schedule, 8, nil)
	r.SetBank(&Bank{Slot: 1, MaxTickHeight: 10}, 1)

	leader, ok := r.NextSlotLeader()
	if !ok || leader != me {
		t.Fatalf("expected next slot leader to be me, got %v ok=%v", leader, ok)
	}
	if !r.WouldBeLeader(4, me, 4) { // ticksPerSlot=4, ticksAhead=4 -> 1 slot ahead
		t.Fatal("expected WouldBeLeader true one slot ahead")
	}
	if r.WouldBeLeader(0, me, 4) { // 0 slots ahead = current slot, leader is pk(1) not me
		t.Fatal("expected WouldBeLeader false at current slot")
	}
}
