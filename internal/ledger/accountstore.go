// Package ledger implements the durable persistence layer: the pebble-backed
// per-slot account store flush/cold-read path, the length-prefixed PoH
// entry log, and the snapshot tuple (spec.md §6 "Persisted state layout").
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cockroachdb/pebble"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/types"
)

// accountRecordHeaderLen is the fixed-size prefix of a persisted account record:
// write_version(8B) + data_len(8B) + pubkey(32B) + lamports(8B) +
// rent_epoch(8B) + owner(32B) + executable(1B), not counting the
// variable-length data and the trailing 32B hash (spec.md §6).
const accountRecordHeaderLen = 8 + 8 + 32 + 8 + 8 + 32 + 1

// AccountStore is the pebble-backed implementation of accounts.Persister.
// It keys records by slot||pubkey, so one slot's records sit contiguously
// in the keyspace, and fronts reads
// with a fastcache byte-cache keyed by pubkey alone, mirroring how the
// teacher's core/rawdb.ChainDB layers an LRU in front of its disk reads.
type AccountStore struct {
	db    *pebble.DB
	cache *fastcache.Cache
	log   *log.Logger
}

// OpenAccountStore opens (or creates) a pebble database at dir backing the
// account store's durable tier, with a cacheSizeBytes fastcache in front.
func OpenAccountStore(dir string, cacheSizeBytes int, logger *log.Logger) (*AccountStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("ledger: open pebble account store: %w", err)
	}
	if cacheSizeBytes <= 0 {
		cacheSizeBytes = 32 << 20
	}
	return &AccountStore{
		db:    db,
		cache: fastcache.New(cacheSizeBytes),
		log:   logger.Module("ledger"),
	}, nil
}

// Close releases the underlying pebble handle.
func (a *AccountStore) Close() error {
	return a.db.Close()
}

func accountKey(slot types.Slot, key types.Pubkey) []byte {
	b := make([]byte, 8+types.PubkeyLength)
	binary.BigEndian.PutUint64(b[:8], uint64(slot))
	copy(b[8:], key[:])
	return b
}

// encodeAccountRecord lays out {meta: {write_version(8B), data_len(8B),
// pubkey(32B)}, account: {lamports(8B), rent_epoch(8B), owner(32B),
// executable(1B), data(var)}} per spec.md §6.
func encodeAccountRecord(key types.Pubkey, e types.VersionedEntry) []byte {
	buf := make([]byte, accountRecordHeaderLen+len(e.Account.Data))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], e.WriteVersion)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(len(e.Account.Data)))
	off += 8
	copy(buf[off:], key[:])
	off += types.PubkeyLength
	binary.LittleEndian.PutUint64(buf[off:], e.Account.Lamports)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.Account.RentEpoch))
	off += 8
	copy(buf[off:], e.Account.Owner[:])
	off += types.PubkeyLength
	if e.Account.Executable {
		buf[off] = 1
	}
	off++
	copy(buf[off:], e.Account.Data)
	return buf
}

func decodeAccountRecord(buf []byte) (types.Pubkey, types.VersionedEntry, error) {
	if len(buf) < accountRecordHeaderLen {
		return types.Pubkey{}, types.VersionedEntry{}, fmt.Errorf("ledger: truncated account record (%d bytes)", len(buf))
	}
	off := 0
	wv := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	dataLen := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	var pk types.Pubkey
	copy(pk[:], buf[off:off+types.PubkeyLength])
	off += types.PubkeyLength
	lamports := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	rentEpoch := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	var owner types.Pubkey
	copy(owner[:], buf[off:off+types.PubkeyLength])
	off += types.PubkeyLength
	executable := buf[off] != 0
	off++
	if uint64(len(buf)-off) < dataLen {
		return types.Pubkey{}, types.VersionedEntry{}, fmt.Errorf("ledger: account record data_len mismatch")
	}
	data := make([]byte, dataLen)
	copy(data, buf[off:off+int(dataLen)])
	return pk, types.VersionedEntry{
		WriteVersion: wv,
		Account: types.Account{
			Lamports:   lamports,
			RentEpoch:  types.Epoch(rentEpoch),
			Owner:      owner,
			Executable: executable,
			Data:       data,
		},
	}, nil
}

// Flush persists the post-write accounts of a rooted slot, implementing
// accounts.Persister.
func (a *AccountStore) Flush(slot types.Slot, writes []types.Pubkey, entries map[types.Pubkey]types.VersionedEntry) error {
	batch := a.db.NewBatch()
	defer batch.Close()
	for _, k := range writes {
		e, ok := entries[k]
		if !ok {
			continue
		}
		rec := encodeAccountRecord(k, e)
		if err := batch.Set(accountKey(slot, k), rec, nil); err != nil {
			return fmt.Errorf("ledger: flush slot %d key %s: %w", slot, k, err)
		}
		a.cache.Set(k[:], cacheValue(slot, rec))
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("ledger: commit flush batch for slot %d: %w", slot, err)
	}
	a.log.Debug("flushed rooted slot to pebble", "slot", slot, "keys", len(writes))
	return nil
}

// ColdLoad finds the newest persisted record for key across all slots. The
// fastcache front holds one record per key (the one most recently flushed
// or loaded) and answers a hit directly; a miss scans the whole pebble
// keyspace from the first key forward, keeping the highest-slot record
// whose pubkey suffix matches key.
func (a *AccountStore) ColdLoad(key types.Pubkey) (types.Account, types.Slot, bool, error) {
	if cached := a.cache.Get(nil, key[:]); cached != nil {
		slot, rec, err := splitCacheValue(cached)
		if err != nil {
			return types.Account{}, 0, false, err
		}
		_, entry, err := decodeAccountRecord(rec)
		if err != nil {
			return types.Account{}, 0, false, err
		}
		return entry.Account, slot, true, nil
	}

	iter, err := a.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return types.Account{}, 0, false, err
	}
	defer iter.Close()

	var (
		bestSlot  types.Slot
		bestEntry types.VersionedEntry
		found     bool
	)
	for valid := iter.First(); valid; valid = iter.Next() {
		k := iter.Key()
		if len(k) != 8+types.PubkeyLength {
			continue
		}
		var pk types.Pubkey
		copy(pk[:], k[8:])
		if pk != key {
			continue
		}
		slot := types.Slot(binary.BigEndian.Uint64(k[:8]))
		_, entry, err := decodeAccountRecord(iter.Value())
		if err != nil {
			return types.Account{}, 0, false, err
		}
		if !found || slot > bestSlot {
			bestSlot, bestEntry, found = slot, entry, true
		}
	}
	if !found {
		return types.Account{}, 0, false, nil
	}
	a.cache.Set(key[:], cacheValue(bestSlot, encodeAccountRecord(key, bestEntry)))
	return bestEntry.Account, bestSlot, true, nil
}

// cacheValue/splitCacheValue prepend the slot to the on-disk record shape
// so that the fastcache front (keyed by pubkey alone) can answer a Load's
// (account, slot) pair without a pebble round trip.
func cacheValue(slot types.Slot, rec []byte) []byte {
	out := make([]byte, 8+len(rec))
	binary.BigEndian.PutUint64(out[:8], uint64(slot))
	copy(out[8:], rec)
	return out
}

func splitCacheValue(v []byte) (types.Slot, []byte, error) {
	if len(v) < 8 {
		return 0, nil, fmt.Errorf("ledger: truncated cache value")
	}
	return types.Slot(binary.BigEndian.Uint64(v[:8])), v[8:], nil
}
