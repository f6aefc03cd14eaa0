// Package types defines the core data structures shared across the
// validator pipeline: pubkeys, slots, accounts, and transactions.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

// PubkeyLength is the size in bytes of a Pubkey.
const PubkeyLength = 32

// Pubkey is a 32-byte opaque account identifier. Total order is defined by
// lexicographic byte order (spec.md §3).
type Pubkey [PubkeyLength]byte

// BytesToPubkey converts bytes to a Pubkey, left-padding if shorter than 32 bytes.
func BytesToPubkey(b []byte) Pubkey {
	var p Pubkey
	p.SetBytes(b)
	return p
}

// HexToPubkey converts a hex string (with or without 0x prefix) to a Pubkey.
func HexToPubkey(s string) Pubkey {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, _ := hex.DecodeString(s)
	return BytesToPubkey(b)
}

// Bytes returns the byte representation of the pubkey.
func (p Pubkey) Bytes() []byte { return p[:] }

// Hex returns the hex string representation of the pubkey.
func (p Pubkey) Hex() string { return fmt.Sprintf("0x%x", p[:]) }

// String implements fmt.Stringer.
func (p Pubkey) String() string { return p.Hex() }

// SetBytes sets the pubkey from a byte slice, left-padding if necessary.
func (p *Pubkey) SetBytes(b []byte) {
	if len(b) > PubkeyLength {
		b = b[len(b)-PubkeyLength:]
	}
	copy(p[PubkeyLength-len(b):], b)
}

// IsZero returns whether the pubkey is all zeros.
func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// Less defines the total order over Pubkeys: lexicographic byte order.
// This is the sort order normatively required by spec.md §4.2's delta hash.
func (p Pubkey) Less(o Pubkey) bool {
	return bytes.Compare(p[:], o[:]) < 0
}

// Compare returns -1, 0, or 1 following bytes.Compare semantics.
func (p Pubkey) Compare(o Pubkey) int {
	return bytes.Compare(p[:], o[:])
}

// SortPubkeys sorts a slice of Pubkeys in place by byte-lex order. This is
// the normative sort order for the §4.2 delta hash.
func SortPubkeys(keys []Pubkey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
