// Package rent implements the rent-exemption minimum-balance table the
// loader's step 3 consults when collecting rent from a writable account
// touch (spec.md §4.5, supplemented from
// original_source/runtime/src/accounts.rs's RentCollector /
// load_accounts_with_fee_and_rent "rent_due" path).
package rent

import (
	"github.com/stakenet/validatorcore/internal/types"
)

// Parameters mirror the original's Rent{lamports_per_byte_year,
// exemption_threshold, burn_percent} struct: cost to store one byte for one
// year, and the number of years of rent an account must prepay to be
// considered permanently exempt.
const (
	accountStorageOverheadBytes = 128
	lamportsPerByteYear         = 3_480
	exemptionThresholdYears     = 2
	defaultRentIncrementPerTouch = 1
)

// Collector computes the rent-exempt minimum balance for an account and
// charges the configured per-touch increment toward exemption when an
// account is below it, implementing loader.RentCollector.
type Collector struct {
	// minimumBalanceTable caches minimum_balance(size) per 128-byte bucket,
	// the same bucketing the account storage overhead itself uses, so a
	// handful of common account sizes (system account, stake account, vote
	// account) never recompute the multiplication.
	minimumBalanceTable map[int]uint64
}

// New constructs a Collector with an empty minimum-balance cache.
func New() *Collector {
	return &Collector{minimumBalanceTable: make(map[int]uint64)}
}

// MinimumBalance returns the lamport balance at which an account of
// dataLen bytes is exempt from rent, mirroring Rent::minimum_balance.
func (c *Collector) MinimumBalance(dataLen int) uint64 {
	bucket := bucketOf(dataLen)
	if v, ok := c.minimumBalanceTable[bucket]; ok {
		return v
	}
	v := uint64(bucket+accountStorageOverheadBytes) * lamportsPerByteYear * exemptionThresholdYears
	c.minimumBalanceTable[bucket] = v
	return v
}

func bucketOf(dataLen int) int {
	const bucketSize = accountStorageOverheadBytes
	return ((dataLen + bucketSize - 1) / bucketSize) * bucketSize
}

// CollectRent implements loader.RentCollector: an account at or above its
// exemption minimum owes nothing and has its rent_epoch stamped current; an
// account below the minimum is charged a fixed per-touch lamport increment
// (capped at its own balance) and the amount charged is returned as
// rent_collected (spec.md §4.5 step 3).
func (c *Collector) CollectRent(slot types.Slot, _ types.Pubkey, acct *types.Account) uint64 {
	min := c.MinimumBalance(len(acct.Data))
	if acct.Lamports >= min {
		acct.RentEpoch = types.InfiniteEpoch
		return 0
	}

	due := uint64(defaultRentIncrementPerTouch)
	if due > acct.Lamports {
		due = acct.Lamports
	}
	acct.Lamports -= due
	acct.RentEpoch = types.EpochOf(slot, types.DefaultSlotsPerEpoch)
	return due
}
