// Package loader implements the transaction loader (C5): resolves a
// sanitized transaction's blockhash, fee, and per-account state into a
// LoadedTransaction ready for the message processor (spec.md §4.5).
package loader

import (
	"github.com/pkg/errors"

	"github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/types"
)

// maxOwnerChainDepth bounds the program-owner walk (spec.md §4.5 step 5).
const maxOwnerChainDepth = 5

// nonceStateDataLen is the encoded size of a durable-nonce account's data
// (32-byte blockhash || 8-byte lamports_per_signature, matching
// processor.encodeNonceState's layout), used to recognize a nonce account
// at fee-payer validation time without depending on the processor package.
const nonceStateDataLen = 32 + 8

// AccountReader is the read side of the account store (C2) the loader
// depends on; narrowed to Load so the loader can be tested against a fake
// without pulling in the full accounts package.
type AccountReader interface {
	Load(ancestors types.AncestorSet, key types.Pubkey) (types.Account, types.Slot, bool)
}

// BlockhashQueue resolves a recent blockhash to its fee calculator
// (spec.md §4.5 step 1).
type BlockhashQueue interface {
	LamportsPerSignature(blockhash [32]byte) (uint64, bool)
}

// RentCollector computes rent due on a writable account touched in a slot
// (spec.md §4.5 step 3, supplemented from original_source/ rent-collection
// behavior per SPEC_FULL.md §4). MinimumBalance is also consulted at fee-
// payer validation time when the payer is a durable-nonce account
// (spec.md §4.5 step 4, §8 boundary case).
type RentCollector interface {
	CollectRent(slot types.Slot, key types.Pubkey, acct *types.Account) uint64
	MinimumBalance(dataLen int) uint64
}

// LoadedAccount is one resolved account slot for the message processor.
type LoadedAccount struct {
	Key      types.Pubkey
	Account  types.Account
	Writable bool
}

// LoadedTransaction is the C5 contract's successful result (spec.md §4.5).
type LoadedTransaction struct {
	Accounts      []LoadedAccount
	LoaderChain   map[types.Pubkey][]types.Pubkey // program id -> owner chain, nearest first
	RentCollected uint64
	Fee           uint64
}

// Loader is the C5 component.
type Loader struct {
	store             AccountReader
	queue             BlockhashQueue
	rent              RentCollector
	instructionsSysvarKey types.Pubkey
	instructionsSysvarOn  bool
	log               *log.Logger
}

// New constructs a Loader. instructionsSysvarKey/On wire the optional
// feature-gated instructions-sysvar synthesis of spec.md §4.5 step 3.
func New(store AccountReader, queue BlockhashQueue, rent RentCollector, instructionsSysvarKey types.Pubkey, instructionsSysvarOn bool, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		store:                 store,
		queue:                 queue,
		rent:                  rent,
		instructionsSysvarKey: instructionsSysvarKey,
		instructionsSysvarOn:  instructionsSysvarOn,
		log:                   logger.Module("loader"),
	}
}

// Load implements the six-step procedure of spec.md §4.5.
func (l *Loader) Load(tx types.Transaction, ancestors types.AncestorSet, slot types.Slot) (*LoadedTransaction, error) {
	// Step 1: resolve recent_blockhash.
	lamportsPerSig, ok := l.queue.LamportsPerSignature(tx.Message.RecentBlockhash)
	if !ok {
		return nil, errors.Wrap(types.ErrBlockhashNotFound, "loader: resolving recent blockhash")
	}

	// Step 2: compute fee.
	fee := lamportsPerSig * uint64(len(tx.Signatures))

	// Step 3: load each account, synthesizing the instructions sysvar and
	// collecting rent on writable touches.
	accounts := make([]LoadedAccount, 0, len(tx.Message.AccountKeys))
	var rentCollected uint64
	for i, key := range tx.Message.AccountKeys {
		writable := tx.Message.IsWritable(i)

		if l.instructionsSysvarOn && key == l.instructionsSysvarKey {
			accounts = append(accounts, LoadedAccount{
				Key:      key,
				Account:  synthesizeInstructionsSysvar(tx),
				Writable: writable,
			})
			continue
		}

		acct, _, found := l.store.Load(ancestors, key)
		if !found {
			if i == 0 {
				return nil, errors.Wrap(types.ErrAccountNotFound, "loader: fee payer")
			}
			acct = types.Account{}
		}

		if writable && found {
			due := l.rent.CollectRent(slot, key, &acct)
			rentCollected += due
		}

		accounts = append(accounts, LoadedAccount{Key: key, Account: acct, Writable: writable})
	}

	// Step 4: fee payer validation and deduction. A durable-nonce fee payer
	// must additionally retain its rent-exemption minimum balance after the
	// fee is deducted (spec.md §4.5 step 4, §8 boundary case); a plain
	// system account only needs to cover the fee itself.
	payer := &accounts[0]
	requiredMinimum := uint64(0)
	if isNonceAccount(payer.Account) {
		requiredMinimum = l.rent.MinimumBalance(len(payer.Account.Data))
	}
	if payer.Account.Owner != types.SystemProgramPubkey {
		return nil, errors.Wrap(types.ErrInvalidAccountForFee, "loader: fee payer owner is not the system program")
	}
	if payer.Account.Lamports < fee+requiredMinimum {
		return nil, errors.Wrap(types.ErrInsufficientFundsForFee, "loader: fee payer balance below fee")
	}
	payer.Account.Lamports -= fee

	// Step 5: resolve each instruction's program id and walk its owner
	// chain to a native-loader sentinel.
	loaderChain := make(map[types.Pubkey][]types.Pubkey, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		programID, err := tx.Message.ProgramID(&ix)
		if err != nil {
			return nil, errors.Wrap(types.ErrInvalidAccountIndex, err.Error())
		}
		if _, done := loaderChain[programID]; done {
			continue
		}
		chain, err := l.walkOwnerChain(ancestors, programID)
		if err != nil {
			return nil, err
		}
		loaderChain[programID] = chain
	}

	return &LoadedTransaction{
		Accounts:      accounts,
		LoaderChain:   loaderChain,
		RentCollected: rentCollected,
		Fee:           fee,
	}, nil
}

// walkOwnerChain follows program.owner, program.owner.owner, ... up to
// maxOwnerChainDepth hops looking for the native-loader sentinel
// (spec.md §4.5 step 5). It also resolves the upgradeable-loader's derived
// ProgramData account when the chain bottoms out there.
func (l *Loader) walkOwnerChain(ancestors types.AncestorSet, programID types.Pubkey) ([]types.Pubkey, error) {
	chain := make([]types.Pubkey, 0, maxOwnerChainDepth)
	current := programID

	for depth := 0; depth < maxOwnerChainDepth; depth++ {
		acct, _, found := l.store.Load(ancestors, current)
		if !found {
			return nil, errors.Wrap(types.ErrProgramAccountNotFound, "loader: owner chain")
		}

		if current == programID && !acct.Executable {
			return nil, errors.Wrap(types.ErrInvalidProgramForExecution, "loader: program account not executable")
		}

		if acct.Owner == types.NativeLoaderPubkey {
			chain = append(chain, current)
			return chain, nil
		}

		if acct.Owner == types.UpgradeableLoaderPubkey {
			programData := deriveProgramDataAddress(current)
			if _, _, found := l.store.Load(ancestors, programData); !found {
				return nil, errors.Wrap(types.ErrProgramAccountNotFound, "loader: upgradeable ProgramData account")
			}
			chain = append(chain, current, programData)
			return chain, nil
		}

		if depth > 0 && !acct.Executable {
			return nil, errors.Wrap(types.ErrInvalidProgramForExecution, "loader: intermediate owner not executable")
		}

		chain = append(chain, current)
		current = acct.Owner
	}
	return nil, errors.Wrap(types.ErrCallChainTooDeep, "loader: owner chain exceeds depth 5")
}

// isNonceAccount recognizes a durable-nonce account by its owner and
// encoded data length. This repo does not implement the full nonce-account
// instruction set (create/advance/withdraw), only the rollback side effect
// spec.md §4.6 names and this fee-payer reserve check (spec.md §4.5 step 4).
func isNonceAccount(acct types.Account) bool {
	return acct.Owner == types.SystemProgramPubkey && len(acct.Data) == nonceStateDataLen
}

// deriveProgramDataAddress is a stand-in PDA derivation: the real upgradeable
// loader derives this with a program-specific seed and bump search. This
// repo does not implement PDA derivation (out of scope, spec.md §1); it
// deterministically maps a program id to a distinguishable companion key so
// the owner-chain walk can be exercised end to end.
func deriveProgramDataAddress(programID types.Pubkey) types.Pubkey {
	var pd types.Pubkey
	copy(pd[:], programID[:])
	pd[31] ^= 0xff
	return pd
}

// synthesizeInstructionsSysvar builds the instructions-sysvar account
// contents from the message itself rather than reading it from the account
// store (spec.md §4.5 step 3).
func synthesizeInstructionsSysvar(tx types.Transaction) types.Account {
	var data []byte
	for _, ix := range tx.Message.Instructions {
		data = append(data, byte(ix.ProgramIDIndex))
		data = append(data, ix.Data...)
	}
	return types.Account{
		Lamports: 1,
		Data:     data,
		Owner:    types.NativeLoaderPubkey,
	}
}
