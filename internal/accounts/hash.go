package accounts

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/stakenet/validatorcore/internal/types"
)

// keyedAccount pairs a pubkey with the account write it contributes to a
// slot's delta hash.
type keyedAccount struct {
	key types.Pubkey
	acc types.Account
}

// deltaHash computes H(parent_delta_hash || sorted_writes) where writes are
// pre-sorted by pubkey and each contributes
// H(pubkey || lamports || owner || executable || rent_epoch || data)
// (spec.md §4.2 "Delta hash", normative per §9 "Hash determinism").
func deltaHash(parent [32]byte, writes []keyedAccount) [32]byte {
	h := sha256.New()
	h.Write(parent[:])
	for _, w := range writes {
		h.Write(accountHash(w.key, w.acc)[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// accountHash computes H(pubkey || lamports || owner || executable ||
// rent_epoch || data) for a single account write.
func accountHash(key types.Pubkey, a types.Account) [32]byte {
	h := sha256.New()
	h.Write(key[:])
	var lamports [8]byte
	binary.LittleEndian.PutUint64(lamports[:], a.Lamports)
	h.Write(lamports[:])
	h.Write(a.Owner[:])
	if a.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var rentEpoch [8]byte
	binary.LittleEndian.PutUint64(rentEpoch[:], uint64(a.RentEpoch))
	h.Write(rentEpoch[:])
	h.Write(a.Data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
