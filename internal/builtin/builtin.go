// Package builtin populates the closed Builtin tag of spec.md §9 "trait
// objects -> tagged variants" with minimal System, Stake, and Vote
// program handlers -- enough to drive the loader's owner-chain walk and
// the processor's verification rules end-to-end (SPEC_FULL.md §4
// "Builtin program table", supplemented from
// original_source/programs/{system,stake,vote}/ and
// message_processor.rs).
package builtin

import (
	"github.com/stakenet/validatorcore/internal/processor"
	"github.com/stakenet/validatorcore/internal/types"
)

// Table is a processor.Registry backed by a fixed map of builtin
// handlers, populated at construction and never mutated afterward.
type Table struct {
	handlers map[types.Pubkey]processor.Handler
}

// New constructs the builtin table with System, Stake, and Vote wired in.
func New() *Table {
	t := &Table{handlers: make(map[types.Pubkey]processor.Handler, 3)}
	t.handlers[types.SystemProgramPubkey] = systemHandler
	t.handlers[types.StakeProgramPubkey] = stakeHandler
	t.handlers[types.VoteProgramPubkey] = voteHandler
	return t
}

// HandlerFor implements processor.Registry.
func (t *Table) HandlerFor(programID types.Pubkey) (processor.Handler, bool) {
	h, ok := t.handlers[programID]
	return h, ok
}

// systemHandler implements a minimal Transfer: account_indices[0] is the
// funding account, account_indices[1] the recipient, ix.Data is the
// lamport amount as 8 bytes little-endian. Any other instruction shape is
// rejected as invalid.
func systemHandler(ctx *processor.InvocationContext, ix *types.Instruction) error {
	if len(ix.AccountIndices) < 2 || len(ix.Data) < 8 {
		return types.NewInstructionError(0, types.KindInvalidInstructionData)
	}
	amount := decodeU64(ix.Data)

	from, to := ix.AccountIndices[0], ix.AccountIndices[1]
	fromKey, toKey := ctx.KeyAt(from), ctx.KeyAt(to)
	fromAcc, ok := ctx.Account(fromKey)
	if !ok {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	toAcc, ok := ctx.Account(toKey)
	if !ok {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	if !ctx.IsWritable(fromKey) || !ctx.IsWritable(toKey) {
		return types.NewInstructionError(0, types.KindPrivilegeEscalation)
	}
	if fromAcc.Lamports < amount {
		return types.NewInstructionError(0, types.KindInvalidArgument)
	}
	fromAcc.Lamports -= amount
	toAcc.Lamports += amount
	return nil
}

// stakeHandler implements a minimal DelegateStake marker: it only
// validates that the stake account is writable and owned by the stake
// program, touching no lamports. Activation/deactivation math itself
// lives in internal/stake and is driven by the bank's epoch-boundary
// logic, not by this handler.
func stakeHandler(ctx *processor.InvocationContext, ix *types.Instruction) error {
	if len(ix.AccountIndices) < 1 {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	stakeKey := ctx.KeyAt(ix.AccountIndices[0])
	if !ctx.IsWritable(stakeKey) {
		return types.NewInstructionError(0, types.KindPrivilegeEscalation)
	}
	acc, ok := ctx.Account(stakeKey)
	if !ok {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	if acc.Owner != types.StakeProgramPubkey {
		return types.NewInstructionError(0, types.KindInvalidArgument)
	}
	return nil
}

// voteHandler implements a minimal vote-submission marker: validates the
// vote account is writable and owned by the vote program. The PoH
// recorder and banking stage, not this handler, decide scheduling
// consequences of a vote.
func voteHandler(ctx *processor.InvocationContext, ix *types.Instruction) error {
	if len(ix.AccountIndices) < 1 {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	voteKey := ctx.KeyAt(ix.AccountIndices[0])
	if !ctx.IsWritable(voteKey) {
		return types.NewInstructionError(0, types.KindPrivilegeEscalation)
	}
	acc, ok := ctx.Account(voteKey)
	if !ok {
		return types.NewInstructionError(0, types.KindMissingAccount)
	}
	if acc.Owner != types.VoteProgramPubkey {
		return types.NewInstructionError(0, types.KindInvalidArgument)
	}
	return nil
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
