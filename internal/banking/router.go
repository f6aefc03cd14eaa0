package banking

import (
	"hash/fnv"

	"github.com/stakenet/validatorcore/internal/types"
)

// IsVote classifies a transaction by whether any of its instructions
// target the vote program (SPEC_FULL.md §4 "Vote vs. non-vote worker
// split"), grounded on original_source/core/banking_stage.rs's
// TransactionKind classifier.
func IsVote(tx types.Transaction) bool {
	for _, ix := range tx.Message.Instructions {
		programID, err := tx.Message.ProgramID(&ix)
		if err != nil {
			continue
		}
		if programID == types.VoteProgramPubkey {
			return true
		}
	}
	return false
}

// Router fans incoming transactions out to the vote worker's channel or
// spreads non-vote traffic across the remaining N-1 channels by a hash of
// the transaction's first writable key, so that related transactions land
// on the same worker (SPEC_FULL.md §4).
type Router struct {
	vote    chan<- types.Transaction
	nonVote []chan<- types.Transaction
}

// NewRouter constructs a Router. nonVote must have at least one channel.
func NewRouter(vote chan<- types.Transaction, nonVote []chan<- types.Transaction) *Router {
	return &Router{vote: vote, nonVote: nonVote}
}

// Route sends tx to the vote channel if it is a vote transaction,
// otherwise to one of the non-vote channels selected by a hash of its
// first writable key.
func (r *Router) Route(tx types.Transaction) {
	if IsVote(tx) {
		r.vote <- tx
		return
	}
	if len(r.nonVote) == 0 {
		return
	}
	idx := routingIndex(tx, len(r.nonVote))
	r.nonVote[idx] <- tx
}

func routingIndex(tx types.Transaction, n int) int {
	writable := tx.WritableKeys()
	h := fnv.New32a()
	if len(writable) > 0 {
		h.Write(writable[0].Bytes())
	} else if len(tx.Message.AccountKeys) > 0 {
		h.Write(tx.Message.AccountKeys[0].Bytes())
	}
	return int(h.Sum32()) % n
}
