package main

import (
	"net"

	"github.com/stakenet/validatorcore/internal/accounts"
	"github.com/stakenet/validatorcore/internal/ledger"
	"github.com/stakenet/validatorcore/internal/types"
)

// bootstrapForkGraph is a single-chain ForkGraph (spec.md §6): every slot is
// its own parent's direct descendant, with no competing siblings. The real
// fork graph is a consensus-layer collaborator this module borrows rather
// than owns (spec.md §6); this stand-in lets the pipeline run standalone.
type bootstrapForkGraph struct{}

func (bootstrapForkGraph) Relationship(a, b types.Slot) types.Relationship {
	switch {
	case a == b:
		return types.RelationshipEqual
	case a < b:
		return types.RelationshipAncestor
	default:
		return types.RelationshipDescendant
	}
}

func (bootstrapForkGraph) SlotEpoch(s types.Slot) types.Epoch {
	return types.EpochOf(s, types.DefaultSlotsPerEpoch)
}

// bootstrapLeaderSchedule always assigns the local identity as leader,
// matching a single-validator bootstrap cluster. A multi-validator
// deployment supplies its own LeaderSchedule (spec.md §6).
type bootstrapLeaderSchedule struct {
	self types.Pubkey
}

func (s bootstrapLeaderSchedule) LeaderAtSlot(types.Slot) (types.Pubkey, bool) {
	return s.self, true
}

// storeApplier commits a processed message's resulting accounts back to the
// account store, implementing banking.AccountApplier.
type storeApplier struct {
	store *accounts.Store
}

func (a *storeApplier) Apply(slot types.Slot, keys []types.Pubkey, writable []bool, result []types.Account) {
	writes := make([]accounts.AccountWrite, 0, len(keys))
	for i, k := range keys {
		if writable[i] {
			writes = append(writes, accounts.AccountWrite{Key: k, Account: result[i]})
		}
	}
	if len(writes) > 0 {
		a.store.Store(slot, writes)
	}
}

// udpForwarder sends a worker's held packets to the next leader's TPU
// address over UDP, best-effort, implementing banking.Forwarder.
type udpForwarder struct{}

func (udpForwarder) Forward(addr *net.UDPAddr, txs []types.Transaction) error {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	for _, tx := range txs {
		enc, err := ledger.EncodeTransaction(tx)
		if err != nil {
			continue
		}
		_, _ = conn.Write(enc)
	}
	return nil
}
