package blockhash

import "testing"

func hashOf(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func TestRegisterHashIsRetrievable(t *testing.T) {
	q := New(DefaultMaxAge)
	h := hashOf(1)
	q.RegisterHash(h, 5000)

	fee, ok := q.LamportsPerSignature(h)
	if !ok {
		t.Fatal("expected a registered hash to resolve")
	}
	if fee != 5000 {
		t.Fatalf("expected fee 5000, got %d", fee)
	}
}

func TestUnregisteredHashNotFound(t *testing.T) {
	q := New(DefaultMaxAge)
	if _, ok := q.LamportsPerSignature(hashOf(9)); ok {
		t.Fatal("expected an unregistered hash not to resolve")
	}
}

func TestQueueEvictsOldestBeyondMaxAge(t *testing.T) {
	q := New(2)
	q.RegisterHash(hashOf(1), 100)
	q.RegisterHash(hashOf(2), 200)
	q.RegisterHash(hashOf(3), 300)

	if _, ok := q.LamportsPerSignature(hashOf(1)); ok {
		t.Fatal("expected the oldest hash to have been evicted")
	}
	if _, ok := q.LamportsPerSignature(hashOf(2)); !ok {
		t.Fatal("expected the second hash to still be present")
	}
	if _, ok := q.LamportsPerSignature(hashOf(3)); !ok {
		t.Fatal("expected the newest hash to be present")
	}
}

func TestRegisterHashIsIdempotent(t *testing.T) {
	q := New(2)
	h := hashOf(1)
	q.RegisterHash(h, 100)
	q.RegisterHash(h, 999) // re-registering must not bump its position or fee

	fee, ok := q.LamportsPerSignature(h)
	if !ok || fee != 100 {
		t.Fatalf("expected the original fee 100 preserved, got %d, ok=%v", fee, ok)
	}
}
