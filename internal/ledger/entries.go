package ledger

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/stakenet/validatorcore/internal/types"
)

// Entry mirrors the PoH-recorder output (spec.md §6 "PoH entry channel"):
// num_hashes ticks since the previous entry, the chained hash, and the
// transactions it covers.
type Entry struct {
	NumHashes    uint64
	Hash         [32]byte
	Transactions []types.Transaction
}

// EntryWriter appends entries to the ledger in the length-prefixed format
// of spec.md §6: num_hashes(8B LE) || hash(32B) || tx_count(8B LE) ||
// serialized_transactions.
type EntryWriter struct {
	w *bufio.Writer
}

// NewEntryWriter wraps w for sequential entry writes.
func NewEntryWriter(w io.Writer) *EntryWriter {
	return &EntryWriter{w: bufio.NewWriter(w)}
}

// WriteEntry appends a single entry and flushes.
func (ew *EntryWriter) WriteEntry(e Entry) error {
	var header [8 + 32 + 8]byte
	binary.LittleEndian.PutUint64(header[0:8], e.NumHashes)
	copy(header[8:40], e.Hash[:])
	binary.LittleEndian.PutUint64(header[40:48], uint64(len(e.Transactions)))
	if _, err := ew.w.Write(header[:]); err != nil {
		return fmt.Errorf("ledger: write entry header: %w", err)
	}
	for i, tx := range e.Transactions {
		enc, err := EncodeTransaction(tx)
		if err != nil {
			return fmt.Errorf("ledger: encode transaction %d: %w", i, err)
		}
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(enc)))
		if _, err := ew.w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := ew.w.Write(enc); err != nil {
			return err
		}
	}
	return ew.w.Flush()
}

// EntryReader reads entries back in the same order they were written.
type EntryReader struct {
	r *bufio.Reader
}

// NewEntryReader wraps r for sequential entry reads.
func NewEntryReader(r io.Reader) *EntryReader {
	return &EntryReader{r: bufio.NewReader(r)}
}

// ReadEntry reads the next entry, or io.EOF at end of stream.
func (er *EntryReader) ReadEntry() (Entry, error) {
	var header [8 + 32 + 8]byte
	if _, err := io.ReadFull(er.r, header[:]); err != nil {
		return Entry{}, err
	}
	e := Entry{NumHashes: binary.LittleEndian.Uint64(header[0:8])}
	copy(e.Hash[:], header[8:40])
	txCount := binary.LittleEndian.Uint64(header[40:48])
	e.Transactions = make([]types.Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		var lenBuf [8]byte
		if _, err := io.ReadFull(er.r, lenBuf[:]); err != nil {
			return Entry{}, fmt.Errorf("ledger: read transaction %d length: %w", i, err)
		}
		n := binary.LittleEndian.Uint64(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(er.r, buf); err != nil {
			return Entry{}, fmt.Errorf("ledger: read transaction %d body: %w", i, err)
		}
		tx, err := DecodeTransaction(buf)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: decode transaction %d: %w", i, err)
		}
		e.Transactions = append(e.Transactions, tx)
	}
	return e, nil
}

// EncodeTransaction is a minimal flat serialization sufficient to round
// trip a Transaction through the ledger: it is not a consensus wire format
// (that is explicitly out of scope, spec.md §1 "ledger shred encoding").
func EncodeTransaction(tx types.Transaction) ([]byte, error) {
	var buf []byte
	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}

	putU32(uint32(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, tx.Message.Header.NumRequiredSignatures, tx.Message.Header.NumReadonlySignedAccounts, tx.Message.Header.NumReadonlyUnsignedAccounts)
	putU32(uint32(len(tx.Message.AccountKeys)))
	for _, k := range tx.Message.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, tx.Message.RecentBlockhash[:]...)
	putU32(uint32(len(tx.Message.Instructions)))
	for _, ix := range tx.Message.Instructions {
		putU32(uint32(ix.ProgramIDIndex))
		putU32(uint32(len(ix.AccountIndices)))
		for _, idx := range ix.AccountIndices {
			putU32(uint32(idx))
		}
		putU64(uint64(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// DecodeTransaction reverses EncodeTransaction.
func DecodeTransaction(buf []byte) (types.Transaction, error) {
	var off int
	need := func(n int) error {
		if off+n > len(buf) {
			return fmt.Errorf("ledger: truncated transaction encoding at offset %d", off)
		}
		return nil
	}
	readU32 := func() (uint32, error) {
		if err := need(4); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if err := need(8); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		return v, nil
	}

	var tx types.Transaction
	nSigs, err := readU32()
	if err != nil {
		return tx, err
	}
	tx.Signatures = make([]types.Signature, nSigs)
	for i := range tx.Signatures {
		if err := need(64); err != nil {
			return tx, err
		}
		copy(tx.Signatures[i][:], buf[off:off+64])
		off += 64
	}
	if err := need(3); err != nil {
		return tx, err
	}
	tx.Message.Header = types.MessageHeader{
		NumRequiredSignatures:       buf[off],
		NumReadonlySignedAccounts:   buf[off+1],
		NumReadonlyUnsignedAccounts: buf[off+2],
	}
	off += 3

	nKeys, err := readU32()
	if err != nil {
		return tx, err
	}
	tx.Message.AccountKeys = make([]types.Pubkey, nKeys)
	for i := range tx.Message.AccountKeys {
		if err := need(types.PubkeyLength); err != nil {
			return tx, err
		}
		tx.Message.AccountKeys[i].SetBytes(buf[off : off+types.PubkeyLength])
		off += types.PubkeyLength
	}
	if err := need(32); err != nil {
		return tx, err
	}
	copy(tx.Message.RecentBlockhash[:], buf[off:off+32])
	off += 32

	nIx, err := readU32()
	if err != nil {
		return tx, err
	}
	tx.Message.Instructions = make([]types.Instruction, nIx)
	for i := range tx.Message.Instructions {
		progIdx, err := readU32()
		if err != nil {
			return tx, err
		}
		nAcc, err := readU32()
		if err != nil {
			return tx, err
		}
		accIdx := make([]int, nAcc)
		for j := range accIdx {
			v, err := readU32()
			if err != nil {
				return tx, err
			}
			accIdx[j] = int(v)
		}
		dataLen, err := readU64()
		if err != nil {
			return tx, err
		}
		if err := need(int(dataLen)); err != nil {
			return tx, err
		}
		data := make([]byte, dataLen)
		copy(data, buf[off:off+int(dataLen)])
		off += int(dataLen)
		tx.Message.Instructions[i] = types.Instruction{ProgramIDIndex: int(progIdx), AccountIndices: accIdx, Data: data}
	}
	return tx, nil
}
