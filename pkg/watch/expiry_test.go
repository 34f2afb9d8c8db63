package watch

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/niodex/relayer/pkg/crypto"
	"github.com/niodex/relayer/pkg/order"
)

func newTestExpiryWatcher(clock *fakeClock) *ExpiryWatcher {
	return NewExpiryWatcher(zap.NewNop(), clock, time.Second)
}

func TestExpiryWatcher_ValidateOrder(t *testing.T) {
	clock := newFakeClock(1000 * 1000) // unix second 1000
	w := newTestExpiryWatcher(clock)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(o *order.SignedOrder)
		wantErr bool
		expired bool
	}{
		{name: "valid", mutate: func(o *order.SignedOrder) {}},
		{
			name:    "expired in the past",
			mutate:  func(o *order.SignedOrder) { o.ExpirationTimeSeconds = big.NewInt(999) },
			wantErr: true,
			expired: true,
		},
		{
			name:    "expiring this second",
			mutate:  func(o *order.SignedOrder) { o.ExpirationTimeSeconds = big.NewInt(1000) },
			wantErr: true,
			expired: true,
		},
		{
			name:    "zero maker amount",
			mutate:  func(o *order.SignedOrder) { o.MakerAssetAmount = big.NewInt(0) },
			wantErr: true,
		},
		{
			name:    "zero taker amount",
			mutate:  func(o *order.SignedOrder) { o.TakerAssetAmount = big.NewInt(0) },
			wantErr: true,
		},
		{
			name:    "missing maker asset data",
			mutate:  func(o *order.SignedOrder) { o.MakerAssetData = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(1)
			tt.mutate(o)
			err := w.ValidateOrder(ctx, o)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateOrder error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.expired && !errors.Is(err, ErrOrderExpired) {
				t.Errorf("error = %v, want ErrOrderExpired", err)
			}
		})
	}
}

func TestExpiryWatcher_PollNotifiesOnce(t *testing.T) {
	clock := newFakeClock(0)
	w := newTestExpiryWatcher(clock)

	var got []*Notification
	w.Subscribe(func(err error, n *Notification) {
		if err != nil {
			t.Errorf("unexpected error event: %v", err)
			return
		}
		got = append(got, n)
	})

	o := testOrder(1)
	o.ExpirationTimeSeconds = big.NewInt(500)
	if err := w.AddOrder(context.Background(), o); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	wantHash, err := crypto.HashOrder(o)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}

	w.poll(499)
	if len(got) != 0 {
		t.Fatalf("notified before deadline: %v", got)
	}

	w.poll(500)
	if len(got) != 1 {
		t.Fatalf("notifications at deadline = %d, want 1", len(got))
	}
	n := got[0]
	if n.OrderHash != wantHash {
		t.Errorf("hash = %s, want %s", n.OrderHash.Hex(), wantHash.Hex())
	}
	if n.Kind != KindInvalidated || n.Reason != ReasonExpired {
		t.Errorf("notification = %+v, want Invalidated/ORDER_EXPIRED", n)
	}

	// Repeated polls must not re-notify.
	w.poll(600)
	w.poll(700)
	if len(got) != 1 {
		t.Errorf("notifications after repeat polls = %d, want 1", len(got))
	}
}

func TestExpiryWatcher_RemoveOrderSilences(t *testing.T) {
	clock := newFakeClock(0)
	w := newTestExpiryWatcher(clock)

	var got []*Notification
	w.Subscribe(func(err error, n *Notification) { got = append(got, n) })

	o := testOrder(1)
	o.ExpirationTimeSeconds = big.NewInt(100)
	if err := w.AddOrder(context.Background(), o); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	hash, err := crypto.HashOrder(o)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}

	w.RemoveOrder(hash)
	w.poll(200)
	if len(got) != 0 {
		t.Errorf("removed order still notified: %v", got)
	}
}
