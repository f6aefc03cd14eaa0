package banking

import "testing"

func TestDecideConsumeWhenHasBank(t *testing.T) {
	if decide(true, false, true, false, false) != DecisionConsume {
		t.Fatal("expected Consume when has_bank")
	}
}

func TestDecideHoldWhenWouldBeLeaderSoon(t *testing.T) {
	if decide(false, true, true, false, false) != DecisionHold {
		t.Fatal("expected Hold when would-be-leader within offset")
	}
}

func TestDecideHoldWhenNoLeaderKnown(t *testing.T) {
	if decide(false, false, false, false, false) != DecisionHold {
		t.Fatal("expected Hold when no leader known")
	}
}

func TestDecideVoteWorkerAlwaysHolds(t *testing.T) {
	if decide(false, false, true, false, true) != DecisionHold {
		t.Fatal("expected vote worker to Hold instead of Forward")
	}
}

func TestDecideForwardWhenNotSelfAndLeaderKnown(t *testing.T) {
	if decide(false, false, true, false, false) != DecisionForward {
		t.Fatal("expected Forward when next leader known and not self")
	}
}

func TestDecideHoldWhenLeaderIsSelf(t *testing.T) {
	if decide(false, false, true, true, false) != DecisionHold {
		t.Fatal("expected Hold (implicit become-leader path) when leader is self but not yet within offset")
	}
}
