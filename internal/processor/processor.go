// Package processor implements the message processor (C6): executes a
// sanitized message's instructions against mutable account handles,
// verifying every post-state transition against the rule table of
// spec.md §4.6 and rolling back in full on any violation.
package processor

import (
	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/types"
)

// maxInvokeDepth caps cross-program invocation recursion (spec.md §4.6
// step 3, "typical cap 4").
const maxInvokeDepth = 4

// Handler is a program's instruction entry point. It may mutate the
// writable accounts reachable through ctx and may recurse via
// ctx.Invoke for cross-program invocation.
type Handler func(ctx *InvocationContext, ix *types.Instruction) error

// Registry resolves a program id to its Handler, collaborating with the
// program cache (C3) for availability but owning none of its eviction
// policy.
type Registry interface {
	HandlerFor(programID types.Pubkey) (Handler, bool)
}

// preAccount is the pre-instruction snapshot verified against post-state
// (spec.md §4.6 step 1). globalIndex is its position in the message-wide
// keys/working arrays, distinct from this instruction's local
// AccountIndices ordering.
type preAccount struct {
	key         types.Pubkey
	writable    bool
	before      types.Account
	globalIndex int
}

// InvocationContext is threaded through a handler call and its nested
// invocations (spec.md §4.6 step 2). indexByKey maps every message-wide
// account key to its position in state; writableByKey narrows to the
// accounts this specific instruction declared writable.
type InvocationContext struct {
	keys          []types.Pubkey // message-wide, indexed by global position
	indexByKey    map[types.Pubkey]int
	writableByKey map[types.Pubkey]bool
	state         []types.Account // live, mutable, message-wide
	programID     types.Pubkey
	depth         int
	parent        *InvocationContext
	registry      Registry
	log           *log.Logger
}

// KeyAt resolves ix.AccountIndices[i] (a message-wide index) to its
// pubkey, letting a handler pair each index with the Account/IsWritable
// calls it needs.
func (ic *InvocationContext) KeyAt(globalIndex int) types.Pubkey {
	return ic.keys[globalIndex]
}

// Invoke dispatches a nested cross-program invocation from within a
// handler. Self-reentry (callee == caller) is allowed; any other program
// still active on the call stack is rejected as ReentrancyNotAllowed
// (spec.md §4.6 step 3).
func (ic *InvocationContext) Invoke(programID types.Pubkey, ix *types.Instruction) error {
	if ic.depth+1 >= maxInvokeDepth {
		return types.NewInstructionError(0, types.KindCallDepth)
	}
	for frame := ic; frame != nil; frame = frame.parent {
		if frame.programID == programID && programID != ic.programID {
			return types.NewInstructionError(0, types.KindReentrancyNotAllowed)
		}
	}
	handler, ok := ic.registry.HandlerFor(programID)
	if !ok {
		return types.NewInstructionError(0, types.KindUnsupportedProgramId)
	}
	nested := &InvocationContext{
		keys:          ic.keys,
		indexByKey:    ic.indexByKey,
		writableByKey: ic.writableByKey,
		state:         ic.state,
		programID:     programID,
		depth:         ic.depth + 1,
		parent:        ic,
		registry:      ic.registry,
		log:           ic.log,
	}
	return handler(nested, ix)
}

// Account returns the live mutable account at key. Writes through the
// returned pointer are visible to subsequent reads within the same
// instruction, including nested invocations sharing this context's state.
func (ic *InvocationContext) Account(key types.Pubkey) (*types.Account, bool) {
	idx, ok := ic.indexByKey[key]
	if !ok {
		return nil, false
	}
	return &ic.state[idx], true
}

// IsWritable reports whether key was declared writable for this
// instruction's accounts.
func (ic *InvocationContext) IsWritable(key types.Pubkey) bool {
	return ic.writableByKey[key]
}

// RentExemptionChecker supplies the minimum balance at which an account of
// a given size is rent-exempt (spec.md §4.6 "ExecutableAccountNotRentExempt").
// internal/rent.Collector implements this; a nil checker disables the
// check (every newly-executable account is treated as exempt), which is
// the right default for tests that don't exercise program deployment.
type RentExemptionChecker interface {
	MinimumBalance(dataLen int) uint64
}

// Processor is the C6 component.
type Processor struct {
	registry Registry
	rent     RentExemptionChecker
	log      *log.Logger
}

// New constructs a Processor bound to a program registry and, optionally,
// a rent-exemption checker (spec.md §4.6). Pass nil for rent when the
// caller has no rent model wired, which disables the exemption check.
func New(registry Registry, rent RentExemptionChecker, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{registry: registry, rent: rent, log: logger.Module("processor")}
}

// NonceAdvanceResult communicates the rollback state computed when a
// message carrying a durable-nonce advance as its first instruction fails
// (spec.md §4.6 "Nonce rollback").
type NonceAdvanceResult struct {
	Applies           bool
	NonceKey          types.Pubkey
	NewBlockhash      [32]byte
	NewLamportsPerSig uint64
	FeePayerKey       types.Pubkey
	FeePayerBalance   uint64
}

// Process executes every instruction of a message against accounts in
// order, returning the mutated accounts on success. On failure it returns
// the original, unmutated accounts plus the InstructionError that aborted
// the message (spec.md §4.6 "leaving accounts mutated if and only if
// status is Ok"). The one exception is a failed message whose nonceAdvance
// applies and whose failing instruction is not the first: it returns the
// original accounts with only the nonce state advanced and the fee payer
// set to FeePayerBalance.
func (p *Processor) Process(keys []types.Pubkey, writable []bool, initial []types.Account, instructions []types.Instruction, nonceAdvance *NonceAdvanceResult) ([]types.Account, error) {
	indexByKey := make(map[types.Pubkey]int, len(keys))
	for i, k := range keys {
		indexByKey[k] = i
	}

	working := make([]types.Account, len(initial))
	for i, a := range initial {
		working[i] = a.Clone()
	}

	for ixIndex, ix := range instructions {
		if err := p.processOne(ixIndex, &ix, keys, writable, indexByKey, working); err != nil {
			if nonceAdvance != nil && nonceAdvance.Applies && ixIndex != 0 {
				rolled := make([]types.Account, len(initial))
				for i, a := range initial {
					rolled[i] = a.Clone()
				}
				applyNonceRollback(rolled, indexByKey, nonceAdvance)
				return rolled, err
			}
			return initial, err
		}
	}
	return working, nil
}

func (p *Processor) processOne(ixIndex int, ix *types.Instruction, keys []types.Pubkey, writable []bool, indexByKey map[types.Pubkey]int, working []types.Account) error {
	programID := keys[ix.ProgramIDIndex]

	// Step 1: snapshot PreAccounts for every account this instruction
	// references.
	pre := make([]*preAccount, 0, len(ix.AccountIndices))
	writableByKey := make(map[types.Pubkey]bool, len(ix.AccountIndices))
	for _, idx := range ix.AccountIndices {
		pre = append(pre, &preAccount{
			key:         keys[idx],
			writable:    writable[idx],
			before:      working[idx].Clone(),
			globalIndex: idx,
		})
		writableByKey[keys[idx]] = writable[idx]
	}

	// Step 2: construct the invocation context.
	ctx := &InvocationContext{
		keys:          keys,
		indexByKey:    indexByKey,
		writableByKey: writableByKey,
		state:         working,
		programID:     programID,
		depth:         0,
		registry:      p.registry,
		log:           p.log,
	}

	// Step 3: dispatch.
	handler, ok := p.registry.HandlerFor(programID)
	if !ok {
		return types.NewInstructionError(ixIndex, types.KindUnsupportedProgramId)
	}
	if err := handler(ctx, ix); err != nil {
		if ie, ok := err.(*types.InstructionError); ok {
			ie.Index = ixIndex
			return ie
		}
		return types.NewInstructionError(ixIndex, types.KindGenericError)
	}

	// Step 4: verify every PreAccount against post-state.
	return p.verify(ixIndex, programID, pre, working)
}
