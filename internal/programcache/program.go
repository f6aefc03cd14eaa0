package programcache

import (
	"sync/atomic"

	"github.com/stakenet/validatorcore/internal/types"
)

// Kind tags the closed union spec.md §3 describes for LoadedProgram
// (spec.md §9 "Trait objects -> tagged variants": a closed enum plus one
// variant holding an opaque handle, here Compiled's Artifact).
type Kind int

const (
	KindFailedVerification Kind = iota
	KindClosed
	KindDelayVisibility
	KindUnloaded
	KindCompiled
	KindBuiltin
)

func (k Kind) String() string {
	switch k {
	case KindFailedVerification:
		return "FailedVerification"
	case KindClosed:
		return "Closed"
	case KindDelayVisibility:
		return "DelayVisibility"
	case KindUnloaded:
		return "Unloaded"
	case KindCompiled:
		return "Compiled"
	case KindBuiltin:
		return "Builtin"
	default:
		return "Unknown"
	}
}

// LoadedProgram is a single versioned cache entry (spec.md §3).
//
// Invariant: EffectiveSlot >= DeploymentSlot; when EffectiveSlot ==
// DeploymentSlot+1 the program is in delay-visibility.
type LoadedProgram struct {
	Kind           Kind
	AccountSize    int
	DeploymentSlot types.Slot
	EffectiveSlot  types.Slot
	HasExpiration  bool
	ExpirationSlot types.Slot
	Environment    *Environment
	Artifact       []byte // opaque compiled artifact; only meaningful for KindCompiled

	txUsage atomic.Uint64
	ixUsage atomic.Uint64
}

// NewDeployedProgram constructs a Compiled entry with the standard
// deployment_slot/effective_slot relationship (effective one slot after
// deployment, spec.md §3).
func NewDeployedProgram(deploymentSlot types.Slot, env *Environment, artifact []byte, accountSize int) *LoadedProgram {
	return &LoadedProgram{
		Kind:           KindCompiled,
		AccountSize:    accountSize,
		DeploymentSlot: deploymentSlot,
		EffectiveSlot:  deploymentSlot + 1,
		Environment:    env,
		Artifact:       artifact,
	}
}

// NewBuiltin constructs a Builtin entry effective from genesis.
func NewBuiltin(env *Environment, name string) *LoadedProgram {
	return &LoadedProgram{
		Kind:        KindBuiltin,
		Environment: env,
		Artifact:    []byte(name),
	}
}

// TxUsage returns the current transaction-level usage counter.
func (p *LoadedProgram) TxUsage() uint64 { return p.txUsage.Load() }

// IxUsage returns the current instruction-level usage counter.
func (p *LoadedProgram) IxUsage() uint64 { return p.ixUsage.Load() }

// addUsage increments both counters by count (spec.md §4.3 lookup step 7).
func (p *LoadedProgram) addUsage(count uint64) {
	p.txUsage.Add(count)
	p.ixUsage.Add(count)
}

// clone copies an entry's identity fields and its usage counters, used
// when materializing an Unloaded stand-in.
func (p *LoadedProgram) clone() *LoadedProgram {
	c := &LoadedProgram{
		Kind:           p.Kind,
		AccountSize:    p.AccountSize,
		DeploymentSlot: p.DeploymentSlot,
		EffectiveSlot:  p.EffectiveSlot,
		HasExpiration:  p.HasExpiration,
		ExpirationSlot: p.ExpirationSlot,
		Environment:    p.Environment,
		Artifact:       p.Artifact,
	}
	c.txUsage.Store(p.txUsage.Load())
	c.ixUsage.Store(p.ixUsage.Load())
	return c
}

// delayVisibilityTombstone synthesizes the transient tombstone returned
// when W is between deployment and effective slot (spec.md §4.3 step 3).
func delayVisibilityTombstone(p *LoadedProgram) *LoadedProgram {
	return &LoadedProgram{
		Kind:           KindDelayVisibility,
		DeploymentSlot: p.DeploymentSlot,
		EffectiveSlot:  p.EffectiveSlot,
		Environment:    p.Environment,
	}
}
