// Package stake implements the warmup/cooldown state machine (C1): for a
// delegation and an epoch, the effective/activating/deactivating stake used
// by the consensus layer (spec.md §4.1).
package stake

import (
	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/types"
)

// Delegation associates stake to a voter for a time window (spec.md §3).
// ActivationEpoch and Stake are immutable for the life of the delegation;
// redelegation produces a new Delegation value.
type Delegation struct {
	Voter              types.Pubkey
	Stake              uint64
	ActivationEpoch    types.Epoch
	DeactivationEpoch  types.Epoch // types.InfiniteEpoch if not deactivating
	WarmupCooldownRate float64
}

// HistoryEntry is the per-epoch cluster-wide triple (spec.md §3
// "StakeHistoryEntry").
type HistoryEntry struct {
	Effective   uint64
	Activating  uint64
	Deactivating uint64
}

// Stake is the (effective, activating, deactivating) triple returned by
// CalculateStake (spec.md §4.1).
type Stake struct {
	Effective    uint64
	Activating   uint64
	Deactivating uint64
}

// moduleLog is the module logger; set via SetLogger, defaulting to the
// "stake" module child of the package default logger.
var moduleLog = log.Default().Module("stake")

// SetLogger overrides the module logger, used by callers that construct
// their own per-bank logger hierarchy.
func SetLogger(l *log.Logger) { moduleLog = l }

// CalculateStake returns the (effective, activating, deactivating) triple of
// delegation d at epoch e, given an optional stake history. history may be
// nil (spec.md §4.1 "If H is absent...").
func CalculateStake(d Delegation, e types.Epoch, history *History) Stake {
	if d.ActivationEpoch == types.InfiniteEpoch {
		// Bootstrap delegation: fully effective at every epoch.
		return Stake{Effective: d.Stake}
	}

	effective, activating := activationStake(d, e, history)
	if d.DeactivationEpoch == types.InfiniteEpoch || e < d.DeactivationEpoch {
		return Stake{Effective: effective, Activating: activating}
	}

	// e >= d.DeactivationEpoch: the delegation is past its activation and
	// now deactivating. At exactly DeactivationEpoch, deactivating is
	// capped at however much had actually become effective by then -- a
	// delegation that starts deactivating before it finished warming up
	// cannot deactivate more than it has (spec.md §8 boundary case).
	if e == d.DeactivationEpoch {
		deactivating := effective
		if deactivating > d.Stake {
			deactivating = d.Stake
		}
		return Stake{Effective: effective, Deactivating: deactivating}
	}
	return deactivationStake(d, e, history)
}

// activationStake computes (effective, activating) ignoring deactivation,
// i.e. as if DeactivationEpoch were infinite (spec.md §4.1 "Activation").
func activationStake(d Delegation, e types.Epoch, history *History) (effective, activating uint64) {
	if e < d.ActivationEpoch {
		return 0, 0
	}
	if e == d.ActivationEpoch {
		return 0, d.Stake
	}
	if history == nil {
		// "assume fully activated" (spec.md §4.1).
		return d.Stake, 0
	}

	effective = 0
	for epoch := d.ActivationEpoch; epoch < e; epoch++ {
		entry, ok := history.Get(epoch)
		if !ok {
			break
		}
		if effective >= d.Stake {
			break
		}
		remaining := d.Stake - effective
		if entry.Activating == 0 {
			// Nothing in the cluster-wide pool to apportion a share of;
			// this delegation cannot move forward this epoch.
			continue
		}
		weight := float64(remaining) / float64(entry.Activating)
		increment := weight * float64(entry.Effective) * d.WarmupCooldownRate
		inc := uint64(increment)
		if inc < 1 {
			inc = 1 // §4.1: "The 1 floor is deliberate ... MUST be preserved"
		}
		if inc > remaining {
			inc = remaining
		}
		effective += inc
	}
	return effective, d.Stake - effective
}

// deactivationStake computes the effective stake after deactivation has
// begun, symmetric to activationStake (spec.md §4.1 "Deactivation").
func deactivationStake(d Delegation, e types.Epoch, history *History) Stake {
	if history == nil {
		// "assume fully deactivated" (spec.md §4.1).
		return Stake{}
	}

	effective := d.Stake
	for epoch := d.DeactivationEpoch; epoch < e; epoch++ {
		entry, ok := history.Get(epoch)
		if !ok {
			break
		}
		if effective == 0 {
			break
		}
		if entry.Deactivating == 0 {
			continue
		}
		weight := float64(effective) / float64(entry.Deactivating)
		decrement := weight * float64(entry.Effective) * d.WarmupCooldownRate
		dec := uint64(decrement)
		if dec < 1 {
			dec = 1
		}
		if dec > effective {
			dec = effective
		}
		effective -= dec
	}
	return Stake{Effective: effective, Deactivating: effective}
}

// NewHistoryEntry sums the three stake components over delegations at
// epoch e. The caller-supplied iteration order over delegations is
// authoritative and must be identical across callers for determinism
// (spec.md §4.1 "History computation").
func NewHistoryEntry(e types.Epoch, delegations []Delegation, prior *History) HistoryEntry {
	var entry HistoryEntry
	for _, d := range delegations {
		s := CalculateStake(d, e, prior)
		entry.Effective += s.Effective
		entry.Activating += s.Activating
		entry.Deactivating += s.Deactivating
	}
	moduleLog.Debug("computed stake history entry", "epoch", e, "delegations", len(delegations),
		"effective", entry.Effective, "activating", entry.Activating, "deactivating", entry.Deactivating)
	return entry
}
