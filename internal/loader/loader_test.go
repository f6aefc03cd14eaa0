package loader

import (
	"errors"
	"testing"

	"github.com/stakenet/validatorcore/internal/types"
)

type fakeStore struct {
	accounts map[types.Pubkey]types.Account
}

func (f *fakeStore) Load(_ types.AncestorSet, key types.Pubkey) (types.Account, types.Slot, bool) {
	a, ok := f.accounts[key]
	if !ok {
		return types.Account{}, 0, false
	}
	return a, 1, true
}

type fakeQueue struct {
	rate   uint64
	hashes map[[32]byte]bool
}

func (f *fakeQueue) LamportsPerSignature(h [32]byte) (uint64, bool) {
	if f.hashes != nil && !f.hashes[h] {
		return 0, false
	}
	return f.rate, true
}

type fakeRent struct{ due, minBalance uint64 }

func (f *fakeRent) CollectRent(_ types.Slot, _ types.Pubkey, _ *types.Account) uint64 {
	return f.due
}

func (f *fakeRent) MinimumBalance(int) uint64 {
	return f.minBalance
}

func pk(b byte) types.Pubkey {
	var k types.Pubkey
	k[0] = b
	return k
}

func basicTx(payer, program, target types.Pubkey) types.Transaction {
	return types.Transaction{
		Signatures: []types.Signature{{0x1}},
		Message: types.Message{
			Header: types.MessageHeader{
				NumRequiredSignatures:      1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: []types.Pubkey{payer, target, program},
			Instructions: []types.Instruction{
				{ProgramIDIndex: 2, AccountIndices: []int{0, 1}, Data: []byte{9}},
			},
		},
	}
}

func TestLoadHappyPath(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 1000, Owner: types.SystemProgramPubkey},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{due: 2}, types.Pubkey{}, false, nil)

	lt, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lt.Fee != 5 {
		t.Fatalf("expected fee 5, got %d", lt.Fee)
	}
	if lt.Accounts[0].Account.Lamports != 995 {
		t.Fatalf("expected payer debited to 995, got %d", lt.Accounts[0].Account.Lamports)
	}
	chain, ok := lt.LoaderChain[program]
	if !ok || len(chain) != 1 || chain[0] != program {
		t.Fatalf("expected single-hop owner chain ending at native loader, got %+v", chain)
	}
}

func TestLoadBlockhashNotFound(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer: {Lamports: 1000, Owner: types.SystemProgramPubkey},
	}}
	l := New(store, &fakeQueue{rate: 5, hashes: map[[32]byte]bool{}}, &fakeRent{}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrBlockhashNotFound) {
		t.Fatalf("expected ErrBlockhashNotFound, got %v", err)
	}
}

func TestLoadInsufficientFundsForFee(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 2, Owner: types.SystemProgramPubkey},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrInsufficientFundsForFee) {
		t.Fatalf("expected ErrInsufficientFundsForFee, got %v", err)
	}
}

func TestLoadNonceFeePayerBelowReserveFails(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		// 40-byte nonce-state data, fee (5) + minBalance (100) > balance (104).
		payer:   {Lamports: 104, Owner: types.SystemProgramPubkey, Data: make([]byte, 40)},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{minBalance: 100}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrInsufficientFundsForFee) {
		t.Fatalf("expected ErrInsufficientFundsForFee, got %v", err)
	}
}

func TestLoadNonceFeePayerAtReserveSucceeds(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		// fee (5) + minBalance (100) == balance (105).
		payer:   {Lamports: 105, Owner: types.SystemProgramPubkey, Data: make([]byte, 40)},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{minBalance: 100}, types.Pubkey{}, false, nil)

	lt, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lt.Accounts[0].Account.Lamports != 100 {
		t.Fatalf("expected payer left with exactly the reserve (100), got %d", lt.Accounts[0].Account.Lamports)
	}
}

func TestLoadInvalidAccountForFeeWrongOwner(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 1000, Owner: pk(99)},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrInvalidAccountForFee) {
		t.Fatalf("expected ErrInvalidAccountForFee, got %v", err)
	}
}

func TestLoadOwnerChainTooDeep(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(10)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:  {Lamports: 1000, Owner: types.SystemProgramPubkey},
		target: {Lamports: 500, Owner: types.SystemProgramPubkey},
	}}
	// Build a cycle longer than maxOwnerChainDepth: 10 -> 11 -> 12 -> 13 -> 14 -> 10
	store.accounts[pk(10)] = types.Account{Executable: true, Owner: pk(11)}
	store.accounts[pk(11)] = types.Account{Executable: true, Owner: pk(12)}
	store.accounts[pk(12)] = types.Account{Executable: true, Owner: pk(13)}
	store.accounts[pk(13)] = types.Account{Executable: true, Owner: pk(14)}
	store.accounts[pk(14)] = types.Account{Executable: true, Owner: pk(10)}

	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrCallChainTooDeep) {
		t.Fatalf("expected ErrCallChainTooDeep, got %v", err)
	}
}

func TestLoadUpgradeableLoaderResolvesProgramData(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(20)
	pd := deriveProgramDataAddress(program)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 1000, Owner: types.SystemProgramPubkey},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Executable: true, Owner: types.UpgradeableLoaderPubkey},
		pd:      {Owner: types.UpgradeableLoaderPubkey},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, types.Pubkey{}, false, nil)

	lt, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain := lt.LoaderChain[program]
	if len(chain) != 2 || chain[1] != pd {
		t.Fatalf("expected owner chain to include the derived ProgramData account, got %+v", chain)
	}
}

func TestLoadMissingProgramDataAccount(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(30)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 1000, Owner: types.SystemProgramPubkey},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Executable: true, Owner: types.UpgradeableLoaderPubkey},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, types.Pubkey{}, false, nil)

	_, err := l.Load(basicTx(payer, program, target), types.NewAncestorSet(1), 1)
	if !errors.Is(err, types.ErrProgramAccountNotFound) {
		t.Fatalf("expected ErrProgramAccountNotFound, got %v", err)
	}
}

func TestLoadInstructionsSysvarSynthesized(t *testing.T) {
	payer, target, program := pk(1), pk(2), pk(3)
	sysvarKey := pk(250)
	store := &fakeStore{accounts: map[types.Pubkey]types.Account{
		payer:   {Lamports: 1000, Owner: types.SystemProgramPubkey},
		target:  {Lamports: 500, Owner: types.SystemProgramPubkey},
		program: {Lamports: 1, Owner: types.NativeLoaderPubkey, Executable: true},
	}}
	l := New(store, &fakeQueue{rate: 5}, &fakeRent{}, sysvarKey, true, nil)

	tx := types.Transaction{
		Signatures: []types.Signature{{0x1}},
		Message: types.Message{
			Header:      types.MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 3},
			AccountKeys: []types.Pubkey{payer, target, sysvarKey, program},
			Instructions: []types.Instruction{
				{ProgramIDIndex: 3, AccountIndices: []int{0}, Data: []byte{1}},
			},
		},
	}

	lt, err := l.Load(tx, types.NewAncestorSet(1), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, a := range lt.Accounts {
		if a.Key == sysvarKey {
			found = true
			if a.Account.Owner != types.NativeLoaderPubkey {
				t.Fatalf("expected synthesized sysvar owner to be native loader, got %v", a.Account.Owner)
			}
		}
	}
	if !found {
		t.Fatal("expected instructions sysvar account present in loaded accounts")
	}
}
