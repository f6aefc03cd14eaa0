package processor

import (
	"github.com/stakenet/validatorcore/internal/types"
)

// verify implements the post-state verification rule table of spec.md
// §4.6: every violation aborts the instruction's enclosing message with
// the matching InstructionErrorKind.
func (p *Processor) verify(ixIndex int, programID types.Pubkey, pre []*preAccount, working []types.Account) error {
	var preLamports, postLamports uint64

	for _, acc := range pre {
		before := acc.before
		after := working[acc.globalIndex]

		preLamports += before.Lamports
		postLamports += after.Lamports

		ownedByProgram := before.Owner == programID

		if before.Owner != after.Owner {
			if !(acc.writable && !before.Executable && ownedByProgram && after.DataAllZero()) {
				return types.NewInstructionError(ixIndex, types.KindModifiedProgramId)
			}
		}

		if before.Lamports != after.Lamports {
			if !acc.writable {
				if before.Executable {
					return types.NewInstructionError(ixIndex, types.KindExecutableLamportChange)
				}
				return types.NewInstructionError(ixIndex, types.KindReadonlyLamportChange)
			}
			if before.Executable {
				return types.NewInstructionError(ixIndex, types.KindExecutableLamportChange)
			}
			if after.Lamports < before.Lamports && !ownedByProgram {
				return types.NewInstructionError(ixIndex, types.KindExternalAccountLamportSpend)
			}
		}

		if len(before.Data) != len(after.Data) {
			if !(programID == types.SystemProgramPubkey && before.Owner == types.SystemProgramPubkey) {
				return types.NewInstructionError(ixIndex, types.KindAccountDataSizeChanged)
			}
		} else if !bytesEqual(before.Data, after.Data) {
			switch {
			case before.Executable:
				return types.NewInstructionError(ixIndex, types.KindExecutableDataModified)
			case !acc.writable:
				return types.NewInstructionError(ixIndex, types.KindReadonlyDataModified)
			case !ownedByProgram:
				return types.NewInstructionError(ixIndex, types.KindExternalAccountDataModified)
			}
		}

		if !before.Executable && after.Executable {
			if !(acc.writable && ownedByProgram) {
				return types.NewInstructionError(ixIndex, types.KindExecutableModified)
			}
			if !p.isRentExempt(after) {
				return types.NewInstructionError(ixIndex, types.KindExecutableAccountNotRentExempt)
			}
		}
		if before.Executable && !after.Executable {
			return types.NewInstructionError(ixIndex, types.KindExecutableModified)
		}

		if before.RentEpoch != after.RentEpoch {
			return types.NewInstructionError(ixIndex, types.KindRentEpochModified)
		}
	}

	if preLamports != postLamports {
		return types.NewInstructionError(ixIndex, types.KindUnbalancedInstruction)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isRentExempt checks a freshly-executable account against the wired
// rent-exemption minimum balance for its data size (spec.md §4.6
// "ExecutableAccountNotRentExempt"). Without a rent checker wired, the
// check is disabled and every such account is treated as exempt.
func (p *Processor) isRentExempt(a types.Account) bool {
	if p.rent == nil {
		return true
	}
	return a.Lamports >= p.rent.MinimumBalance(len(a.Data))
}
