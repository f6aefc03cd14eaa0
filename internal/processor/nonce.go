package processor

import "github.com/stakenet/validatorcore/internal/types"

// applyNonceRollback overwrites the nonce account's stored blockhash and
// resets the fee payer to its pre-execution balance minus the fee, leaving
// the nonce state advanced even though the message is reported failed
// (spec.md §4.6 "Nonce rollback").
func applyNonceRollback(working []types.Account, indexByKey map[types.Pubkey]int, n *NonceAdvanceResult) {
	if idx, ok := indexByKey[n.NonceKey]; ok {
		acc := &working[idx]
		acc.Data = encodeNonceState(n.NewBlockhash, n.NewLamportsPerSig)
	}
	if idx, ok := indexByKey[n.FeePayerKey]; ok {
		working[idx].Lamports = n.FeePayerBalance
	}
}

// encodeNonceState is a minimal flat encoding of the durable-nonce state
// (blockhash || lamports_per_signature as 8 bytes LE), sufficient for the
// rollback path; this repo does not implement the full nonce-account
// instruction set (create/advance/withdraw), only the rollback side effect
// spec.md §4.6 names.
func encodeNonceState(blockhash [32]byte, lamportsPerSig uint64) []byte {
	buf := make([]byte, 32+8)
	copy(buf[:32], blockhash[:])
	for i := 0; i < 8; i++ {
		buf[32+i] = byte(lamportsPerSig >> (8 * i))
	}
	return buf
}
