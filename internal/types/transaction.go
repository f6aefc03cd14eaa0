package types

import "fmt"

// Signature is an opaque 64-byte transaction signature.
type Signature [64]byte

// MessageHeader carries the signer/writable-account counts used to derive
// is_signer/is_writable for each account_keys index (spec.md §3).
type MessageHeader struct {
	NumRequiredSignatures      uint8
	NumReadonlySignedAccounts  uint8
	NumReadonlyUnsignedAccounts uint8
}

// Instruction carries an index into Message.AccountKeys identifying the
// program plus zero or more account indices.
type Instruction struct {
	ProgramIDIndex int
	AccountIndices []int
	Data           []byte
}

// Message is the signable payload of a Transaction.
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash [32]byte
	Instructions    []Instruction
}

// IsSigner reports whether account_keys[i] is in the signer prefix.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether account_keys[i] is writable, derived from the
// header layout: [writable signers][readonly signers][writable
// non-signers][readonly non-signers].
func (m *Message) IsWritable(i int) bool {
	n := len(m.AccountKeys)
	if i >= n {
		return false
	}
	numSigned := int(m.Header.NumRequiredSignatures)
	if i < numSigned {
		return i < numSigned-int(m.Header.NumReadonlySignedAccounts)
	}
	numUnsigned := n - numSigned
	j := i - numSigned
	return j < numUnsigned-int(m.Header.NumReadonlyUnsignedAccounts)
}

// ProgramID returns the pubkey addressed by an instruction's program index.
func (m *Message) ProgramID(ix *Instruction) (Pubkey, error) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(m.AccountKeys) {
		return Pubkey{}, fmt.Errorf("validatorcore: program id index %d out of range", ix.ProgramIDIndex)
	}
	return m.AccountKeys[ix.ProgramIDIndex], nil
}

// Sanitize performs the admission-time checks of spec.md §3: non-empty
// account_keys, no duplicate keys, signatures covering exactly the signer
// prefix.
func (t *Transaction) Sanitize() error {
	if len(t.Message.AccountKeys) == 0 {
		return fmt.Errorf("%w: empty account_keys", ErrSanitizeFailure)
	}
	seen := make(map[Pubkey]struct{}, len(t.Message.AccountKeys))
	for _, k := range t.Message.AccountKeys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate account key %s", ErrAccountLoadedTwice, k)
		}
		seen[k] = struct{}{}
	}
	if len(t.Signatures) != int(t.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: %d signatures, %d required", ErrSanitizeFailure, len(t.Signatures), t.Message.Header.NumRequiredSignatures)
	}
	return nil
}

// Transaction is a signed message (spec.md §3).
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// FeePayer returns the first account key, which bears the transaction fee.
func (t *Transaction) FeePayer() Pubkey {
	return t.Message.AccountKeys[0]
}

// WritableKeys returns every writable account key referenced by the message,
// in account_keys order, used by the lock table (C4).
func (t *Transaction) WritableKeys() []Pubkey {
	var out []Pubkey
	for i, k := range t.Message.AccountKeys {
		if t.Message.IsWritable(i) {
			out = append(out, k)
		}
	}
	return out
}

// ReadonlyKeys returns every readonly account key referenced by the message.
func (t *Transaction) ReadonlyKeys() []Pubkey {
	var out []Pubkey
	for i, k := range t.Message.AccountKeys {
		if !t.Message.IsWritable(i) {
			out = append(out, k)
		}
	}
	return out
}
