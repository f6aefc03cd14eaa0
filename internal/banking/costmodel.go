package banking

import "github.com/stakenet/validatorcore/internal/types"

// Per-unit cost weights for the QoS admission gate (SPEC_FULL.md §4 "Cost-
// model admission", grounded on original_source/core/banking_stage.rs's
// qos_service): a fixed per-signature cost plus a per-writable-account
// cost, checked against a remaining per-slot budget before locking.
const (
	costPerSignature     = 720
	costPerWritableWrite = 300
)

// DefaultSlotCostBudget is the per-slot compute-unit budget a CostTracker
// starts each slot with.
const DefaultSlotCostBudget = 48_000_000

// estimateCost computes one transaction's cost estimate (SPEC_FULL.md §4).
func estimateCost(tx types.Transaction) uint64 {
	cost := uint64(len(tx.Signatures)) * costPerSignature
	cost += uint64(len(tx.WritableKeys())) * costPerWritableWrite
	return cost
}

// CostTracker gates transactions against a remaining per-slot cost
// budget. Over-budget transactions are held, never dropped
// (SPEC_FULL.md §4).
type CostTracker struct {
	remaining uint64
}

// NewCostTracker constructs a tracker with the given starting budget.
func NewCostTracker(budget uint64) *CostTracker {
	return &CostTracker{remaining: budget}
}

// TryAdmit reports whether tx fits the remaining budget, deducting its
// cost if so.
func (c *CostTracker) TryAdmit(tx types.Transaction) bool {
	cost := estimateCost(tx)
	if cost > c.remaining {
		return false
	}
	c.remaining -= cost
	return true
}

// ResetForSlot restores the tracker to a fresh per-slot budget.
func (c *CostTracker) ResetForSlot(budget uint64) {
	c.remaining = budget
}
