package watch

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/niodex/relayer/pkg/crypto"
	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/util"
)

// ExpiryWatcher is the built-in Watcher. It tracks nothing but deadlines:
// every poll it scans the watched set and emits one Invalidated notification
// per order whose expiration has passed. Expiry never reverses, so it never
// emits Revalidated.
type ExpiryWatcher struct {
	log      *zap.Logger
	clock    util.Clock
	interval time.Duration

	mu       sync.Mutex
	subs     []func(err error, n *Notification)
	watched  map[common.Hash]*order.SignedOrder
	notified map[common.Hash]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewExpiryWatcher(log *zap.Logger, clock util.Clock, pollInterval time.Duration) *ExpiryWatcher {
	return &ExpiryWatcher{
		log:      log,
		clock:    clock,
		interval: pollInterval,
		watched:  make(map[common.Hash]*order.SignedOrder),
		notified: make(map[common.Hash]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop.
func (w *ExpiryWatcher) Start() {
	go w.loop()
}

// Stop terminates the poll loop.
func (w *ExpiryWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *ExpiryWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.clock.After(w.interval):
			w.poll(w.clock.Now().Unix())
		}
	}
}

// Subscribe registers fn for future notifications.
func (w *ExpiryWatcher) Subscribe(fn func(err error, n *Notification)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// AddOrder puts o under watch, keyed by its identity hash.
func (w *ExpiryWatcher) AddOrder(ctx context.Context, o *order.SignedOrder) error {
	hash, err := crypto.HashOrder(o)
	if err != nil {
		return fmt.Errorf("hash order: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[hash] = o
	delete(w.notified, hash)
	return nil
}

// RemoveOrder drops hash from the watched set.
func (w *ExpiryWatcher) RemoveOrder(hash common.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, hash)
	delete(w.notified, hash)
}

// ValidateOrder checks structural soundness, positive amounts and the
// expiration deadline against the watcher's clock. Signature verification is
// the caller's concern.
func (w *ExpiryWatcher) ValidateOrder(ctx context.Context, o *order.SignedOrder) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.MakerAssetAmount.Sign() <= 0 {
		return fmt.Errorf("watch: maker asset amount must be positive, got %s", o.MakerAssetAmount)
	}
	if o.TakerAssetAmount.Sign() <= 0 {
		return fmt.Errorf("watch: taker asset amount must be positive, got %s", o.TakerAssetAmount)
	}
	if o.ExpirationTimeSeconds.Cmp(big.NewInt(w.clock.Now().Unix())) <= 0 {
		return ErrOrderExpired
	}
	return nil
}

// poll emits notifications for watched orders whose deadline has passed at
// time now (unix seconds). Each order is notified at most once while watched.
func (w *ExpiryWatcher) poll(now int64) {
	nowBig := big.NewInt(now)

	w.mu.Lock()
	var expired []common.Hash
	for hash, o := range w.watched {
		if _, seen := w.notified[hash]; seen {
			continue
		}
		if o.ExpirationTimeSeconds.Cmp(nowBig) <= 0 {
			expired = append(expired, hash)
			w.notified[hash] = struct{}{}
		}
	}
	subs := make([]func(error, *Notification), len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, hash := range expired {
		n := &Notification{OrderHash: hash, Kind: KindInvalidated, Reason: ReasonExpired}
		for _, fn := range subs {
			fn(nil, n)
		}
	}
	if len(expired) > 0 {
		w.log.Info("orders expired", zap.Int("count", len(expired)))
	}
}
