package types

// NativeLoaderPubkey is the sentinel owner identifying a builtin program
// account: the owner chain walk in the loader (spec.md §4.5 step 5)
// terminates here.
var NativeLoaderPubkey = Pubkey{0x01}

// SystemProgramPubkey is the builtin System program id. Only the system
// program may change an account's data length (spec.md §3).
var SystemProgramPubkey = Pubkey{0x02}

// UpgradeableLoaderPubkey owns programs whose executable data lives in a
// derived ProgramData account (spec.md §4.5 step 5).
var UpgradeableLoaderPubkey = Pubkey{0x03}

// StakeProgramPubkey and VoteProgramPubkey are the builtin program ids
// populating the closed Builtin tag (SPEC_FULL.md §4 "Builtin program
// table", supplemented from original_source/programs/{stake,vote}/).
var (
	StakeProgramPubkey = Pubkey{0x04}
	VoteProgramPubkey  = Pubkey{0x05}
)

// Account is the on-chain record described in spec.md §3.
//
// Invariants enforced by callers (not by this struct itself):
//   - Lamports == 0 is treated as nonexistence by readers.
//   - Executable is monotone false->true, settable only by Owner.
//   - len(Data) changes only when Owner is the system program.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      Pubkey
	Executable bool
	RentEpoch  Epoch
}

// Exists reports whether the account should be visible to a reader. A
// zero-lamport account is a tombstone (spec.md §3, §4.2).
func (a *Account) Exists() bool {
	return a != nil && a.Lamports != 0
}

// Clone returns a deep copy sufficient for PreAccount snapshotting
// (spec.md §4.6 step 1).
func (a Account) Clone() Account {
	c := a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return c
}

// DataAllZero reports whether every byte of Data is zero, used by the
// ModifiedProgramId verification rule (spec.md §4.6).
func (a *Account) DataAllZero() bool {
	for _, b := range a.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// VersionedEntry is the per-(pubkey, slot) record the account store keeps:
// the post-write account plus a strictly increasing write_version
// (spec.md §3 "Versioned account entry").
type VersionedEntry struct {
	Slot         Slot
	Account      Account
	WriteVersion uint64
}
