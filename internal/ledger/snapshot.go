package ledger

import "github.com/stakenet/validatorcore/internal/types"

// Snapshot is the tuple captured at a rooted slot (spec.md §6 "Snapshots").
// AccountsFiles names the pebble SSTables/WAL segments live at capture
// time; this repo does not implement cross-node snapshot transfer (out of
// scope, spec.md §1), only the tuple shape and a local capture helper.
type Snapshot struct {
	Slot             types.Slot
	BankHash         [32]byte
	AccountDeltaHash [32]byte
	Capitalization   uint64
	AccountsFiles    []string
}

// Capture assembles a Snapshot for a rooted slot. deltaHash is the value
// returned by accounts.Store.HashAt(slot); bankHash additionally folds in
// the PoH state, which this package does not own.
func Capture(slot types.Slot, bankHash, deltaHash [32]byte, capitalization uint64, files []string) Snapshot {
	return Snapshot{
		Slot:             slot,
		BankHash:         bankHash,
		AccountDeltaHash: deltaHash,
		Capitalization:   capitalization,
		AccountsFiles:    append([]string(nil), files...),
	}
}
