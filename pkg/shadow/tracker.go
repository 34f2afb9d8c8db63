// Package shadow tracks orders that have gone invalid but are not yet
// permanently removed. An order sits in the shadow for a configurable margin
// before cleanup; if it turns valid again in the meantime it simply leaves.
package shadow

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Tracker is the in-memory shadow set: order hash -> time the order was first
// seen invalid, in unix milliseconds. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	shadows map[common.Hash]int64
}

func NewTracker() *Tracker {
	return &Tracker{shadows: make(map[common.Hash]int64)}
}

// MarkInvalid puts hash in the shadow at time now (unix ms). If the hash is
// already shadowed the original timestamp is kept, so repeated invalidation
// notifications never extend an order's grace period.
func (t *Tracker) MarkInvalid(hash common.Hash, now int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.shadows[hash]; ok {
		return
	}
	t.shadows[hash] = now
}

// MarkValid removes hash from the shadow. Unknown hashes are a no-op.
func (t *Tracker) MarkValid(hash common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.shadows, hash)
}

// IsShadowed reports whether hash is currently in the shadow.
func (t *Tracker) IsShadowed(hash common.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.shadows[hash]
	return ok
}

// Expired returns the hashes whose shadow age at time now (unix ms) has
// reached margin. The boundary is inclusive: an order shadowed exactly margin
// ago is expired. The tracker itself is not modified; callers remove entries
// with MarkValid once cleanup has actually succeeded.
func (t *Tracker) Expired(now, margin int64) []common.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var expired []common.Hash
	for hash, shadowedAt := range t.shadows {
		if now-shadowedAt >= margin {
			expired = append(expired, hash)
		}
	}
	return expired
}

// Snapshot returns the current shadow set as a lookup map.
func (t *Tracker) Snapshot() map[common.Hash]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(map[common.Hash]struct{}, len(t.shadows))
	for hash := range t.shadows {
		snap[hash] = struct{}{}
	}
	return snap
}

// Len returns the number of shadowed orders.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.shadows)
}
