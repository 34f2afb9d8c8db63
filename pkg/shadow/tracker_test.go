package shadow

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func hashOf(n byte) common.Hash {
	var h common.Hash
	h[31] = n
	return h
}

func TestTracker_MarkAndQuery(t *testing.T) {
	tr := NewTracker()
	h := hashOf(1)

	if tr.IsShadowed(h) {
		t.Fatal("fresh tracker reports hash shadowed")
	}

	tr.MarkInvalid(h, 1000)
	if !tr.IsShadowed(h) {
		t.Error("hash not shadowed after MarkInvalid")
	}
	if tr.Len() != 1 {
		t.Errorf("len = %d, want 1", tr.Len())
	}

	tr.MarkValid(h)
	if tr.IsShadowed(h) {
		t.Error("hash still shadowed after MarkValid")
	}
	if tr.Len() != 0 {
		t.Errorf("len = %d, want 0", tr.Len())
	}
}

func TestTracker_MarkValidUnknownHash(t *testing.T) {
	tr := NewTracker()
	tr.MarkValid(hashOf(7)) // must not panic or add anything
	if tr.Len() != 0 {
		t.Errorf("len = %d, want 0", tr.Len())
	}
}

func TestTracker_RepeatedInvalidKeepsFirstTimestamp(t *testing.T) {
	tr := NewTracker()
	h := hashOf(2)

	tr.MarkInvalid(h, 1000)
	tr.MarkInvalid(h, 5000) // later notification must not reset the clock

	if got := tr.Expired(1000+100, 100); len(got) != 1 {
		t.Errorf("expired at first-timestamp margin = %d hashes, want 1", len(got))
	}
}

func TestTracker_ExpiredBoundary(t *testing.T) {
	tr := NewTracker()
	h := hashOf(3)
	tr.MarkInvalid(h, 0)

	const margin = 100_000

	if got := tr.Expired(margin-1, margin); len(got) != 0 {
		t.Errorf("expired one ms early = %d hashes, want 0", len(got))
	}
	// Exactly at the margin counts as expired.
	if got := tr.Expired(margin, margin); len(got) != 1 {
		t.Errorf("expired at exact margin = %d hashes, want 1", len(got))
	}

	// Expired must not remove entries by itself.
	if !tr.IsShadowed(h) {
		t.Error("Expired removed the entry")
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker()
	tr.MarkInvalid(hashOf(1), 10)
	tr.MarkInvalid(hashOf(2), 20)

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	if _, ok := snap[hashOf(1)]; !ok {
		t.Error("snapshot missing hash 1")
	}

	// Snapshot is a copy, detached from the tracker.
	tr.MarkValid(hashOf(1))
	if _, ok := snap[hashOf(1)]; !ok {
		t.Error("snapshot mutated by later MarkValid")
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			h := hashOf(n)
			for j := 0; j < 100; j++ {
				tr.MarkInvalid(h, int64(j))
				tr.IsShadowed(h)
				tr.Expired(int64(j), 50)
				tr.MarkValid(h)
			}
		}(byte(i))
	}
	wg.Wait()

	if tr.Len() != 0 {
		t.Errorf("len after concurrent churn = %d, want 0", tr.Len())
	}
}
