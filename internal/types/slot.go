package types

// Slot is an unsigned 64-bit sequence number. Parent->child edges between
// slots form the fork graph (spec.md §3).
type Slot uint64

// Epoch is a fixed-size grouping of contiguous slots.
type Epoch uint64

// InfiniteEpoch represents "no deactivation scheduled" / "bootstrap
// activation" (spec.md §4.1's activation_epoch == ∞ case).
const InfiniteEpoch Epoch = ^Epoch(0)

// DefaultSlotsPerEpoch is the typical epoch length named in spec.md §3.
const DefaultSlotsPerEpoch = 432_000

// EpochOf returns the epoch containing slot s under a fixed slots-per-epoch.
func EpochOf(s Slot, slotsPerEpoch uint64) Epoch {
	if slotsPerEpoch == 0 {
		slotsPerEpoch = DefaultSlotsPerEpoch
	}
	return Epoch(uint64(s) / slotsPerEpoch)
}

// AncestorSet is the set of slot numbers an account-store read is allowed to
// see: the caller's current slot plus every ancestor of it (spec.md §4.2).
type AncestorSet map[Slot]struct{}

// NewAncestorSet builds an AncestorSet from a list of slots.
func NewAncestorSet(slots ...Slot) AncestorSet {
	a := make(AncestorSet, len(slots))
	for _, s := range slots {
		a[s] = struct{}{}
	}
	return a
}

// Contains reports whether slot s is a member of the ancestor set.
func (a AncestorSet) Contains(s Slot) bool {
	_, ok := a[s]
	return ok
}

// Relationship describes how two slots relate in the fork graph
// (spec.md §6 "Fork graph (borrowed)").
type Relationship int

const (
	RelationshipUnknown Relationship = iota
	RelationshipAncestor
	RelationshipEqual
	RelationshipDescendant
	RelationshipUnrelated
)

// ForkGraph is the consensus-layer-supplied collaborator spec.md §6 borrows:
// it answers ancestry questions without this module owning the fork tree.
type ForkGraph interface {
	Relationship(a, b Slot) Relationship
	SlotEpoch(s Slot) Epoch
}

// LeaderSchedule is the consensus-layer-supplied collaborator answering
// "who leads this slot" (spec.md §6).
type LeaderSchedule interface {
	LeaderAtSlot(s Slot) (Pubkey, bool)
}
