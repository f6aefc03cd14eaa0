package banking

import (
	"testing"
	"time"

	"github.com/stakenet/validatorcore/internal/types"
)

func pk(b byte) types.Pubkey {
	var k types.Pubkey
	k[0] = b
	return k
}

func voteTx() types.Transaction {
	voter := pk(1)
	return types.Transaction{
		Signatures: []types.Signature{{0x1}},
		Message: types.Message{
			Header:      types.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []types.Pubkey{voter, types.VoteProgramPubkey},
			Instructions: []types.Instruction{
				{ProgramIDIndex: 1, AccountIndices: []int{0}},
			},
		},
	}
}

func plainTx(firstKey byte) types.Transaction {
	return types.Transaction{
		Signatures: []types.Signature{{0x1}},
		Message: types.Message{
			Header:      types.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []types.Pubkey{pk(firstKey), types.SystemProgramPubkey},
			Instructions: []types.Instruction{
				{ProgramIDIndex: 1, AccountIndices: []int{0}},
			},
		},
	}
}

func TestIsVoteDetectsVoteProgramInstruction(t *testing.T) {
	if !IsVote(voteTx()) {
		t.Fatal("expected vote transaction to be classified as a vote")
	}
	if IsVote(plainTx(9)) {
		t.Fatal("expected non-vote transaction not classified as a vote")
	}
}

func TestRouterSendsVoteTrafficToVoteChannel(t *testing.T) {
	vote := make(chan types.Transaction, 1)
	nonVote := make(chan types.Transaction, 1)
	r := NewRouter(vote, []chan<- types.Transaction{nonVote})

	r.Route(voteTx())

	select {
	case <-vote:
	case <-time.After(time.Second):
		t.Fatal("expected vote transaction delivered to vote channel")
	}
	select {
	case <-nonVote:
		t.Fatal("did not expect vote transaction on non-vote channel")
	default:
	}
}

func TestRouterDeliversAllNonVoteTrafficToNonVoteChannels(t *testing.T) {
	vote := make(chan types.Transaction, 1)
	a := make(chan types.Transaction, 4)
	b := make(chan types.Transaction, 4)
	r := NewRouter(vote, []chan<- types.Transaction{a, b})

	for i := byte(1); i <= 4; i++ {
		r.Route(plainTx(i))
	}

	total := len(a) + len(b)
	if total != 4 {
		t.Fatalf("expected all 4 non-vote transactions routed, got %d", total)
	}
}
