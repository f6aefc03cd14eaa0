package banking

import (
	"crypto/sha256"

	"github.com/stakenet/validatorcore/internal/types"
)

// batchHash summarizes one committed transaction for the PoH recorder's
// record() call, consistent with the SHA-256 primitive used elsewhere in
// the repo's hash chains (internal/accounts/hash.go, internal/poh).
func batchHash(tx types.Transaction) [32]byte {
	h := sha256.New()
	for _, sig := range tx.Signatures {
		h.Write(sig[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// combineHashes folds a batch's individual transaction hashes into the
// single hash_of_batch record() expects.
func combineHashes(hashes [][32]byte) [32]byte {
	h := sha256.New()
	for _, hh := range hashes {
		h.Write(hh[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
