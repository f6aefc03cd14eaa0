package stake

import "github.com/stakenet/validatorcore/internal/types"

// MaxHistoryEpochs bounds the StakeHistory ring buffer to the last 512
// epochs, the retention policy named in the original implementation's
// StakeHistory (SPEC_FULL.md §4 "Stake history ring buffer"); spec.md §4.1
// describes the per-epoch entry shape but not its own retention policy.
const MaxHistoryEpochs = 512

// History is the append-only (bounded) per-epoch record of cluster-wide
// stake totals (spec.md §3 "StakeHistoryEntry").
type History struct {
	entries map[types.Epoch]HistoryEntry
	order   []types.Epoch // insertion order, oldest first, for eviction
}

// NewHistory returns an empty stake history.
func NewHistory() *History {
	return &History{entries: make(map[types.Epoch]HistoryEntry)}
}

// Get returns the entry for epoch e, if present.
func (h *History) Get(e types.Epoch) (HistoryEntry, bool) {
	if h == nil {
		return HistoryEntry{}, false
	}
	entry, ok := h.entries[e]
	return entry, ok
}

// Add inserts (or overwrites) the entry for epoch e, evicting the oldest
// entry if this insert would exceed MaxHistoryEpochs.
func (h *History) Add(e types.Epoch, entry HistoryEntry) {
	if _, exists := h.entries[e]; !exists {
		h.order = append(h.order, e)
		if len(h.order) > MaxHistoryEpochs {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.entries, oldest)
		}
	}
	h.entries[e] = entry
}

// Len returns the number of epochs currently retained.
func (h *History) Len() int {
	return len(h.entries)
}
