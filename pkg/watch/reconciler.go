package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/niodex/relayer/params"
	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/shadow"
	"github.com/niodex/relayer/pkg/storage"
	"github.com/niodex/relayer/pkg/util"
)

// Reconciler turns watcher notifications into shadow-set state and runs the
// permanent-cleanup sweep. An invalidated order is shadowed, not removed;
// only once its shadow age reaches the margin does the sweep delete it from
// the live set.
//
// History is written twice per order lifetime, both writes first-write-wins:
// a provisional record when the order is first shadowed (Canceled for
// explicit cancellations, Executed for everything else), and a final
// Executed record at sweep time that is a no-op when the provisional one
// exists. A revalidated order leaves the shadow but keeps its provisional
// history record.
type Reconciler struct {
	log     *zap.Logger
	store   Store
	tracker *shadow.Tracker
	watcher Watcher
	clock   util.Clock

	margin   time.Duration
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReconciler(log *zap.Logger, store Store, tracker *shadow.Tracker, watcher Watcher, clock util.Clock, cfg params.Watch) *Reconciler {
	return &Reconciler{
		log:      log,
		store:    store,
		tracker:  tracker,
		watcher:  watcher,
		clock:    clock,
		margin:   cfg.ShadowMargin,
		interval: cfg.SweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the watcher and launches the sweep loop.
func (r *Reconciler) Start() {
	r.watcher.Subscribe(r.OnNotification)
	go r.loop()
}

// Stop terminates the sweep loop and waits for the in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Sweep passes run back to back on the loop goroutine, so a slow pass delays
// the next tick rather than overlapping it.
func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-r.clock.After(r.interval):
			r.Sweep(r.clock.Now().UnixMilli())
		}
	}
}

// OnNotification applies one watcher event. An error event is logged and
// changes nothing. Invalidation shadows the order and writes the provisional
// history record; revalidation only lifts the shadow.
func (r *Reconciler) OnNotification(err error, n *Notification) {
	if err != nil {
		r.log.Warn("order watcher error", zap.Error(err))
		return
	}
	if n == nil {
		return
	}

	switch n.Kind {
	case KindInvalidated:
		r.tracker.MarkInvalid(n.OrderHash, r.clock.Now().UnixMilli())
		r.recordHistory(n.OrderHash, statusFor(n.Reason))
		r.log.Info("order shadowed",
			zap.String("hash", n.OrderHash.Hex()),
			zap.String("reason", n.Reason))
	case KindRevalidated:
		r.tracker.MarkValid(n.OrderHash)
		r.log.Info("order revalidated", zap.String("hash", n.OrderHash.Hex()))
	default:
		r.log.Warn("unknown notification kind", zap.String("kind", string(n.Kind)))
	}
}

// Sweep permanently removes every order whose shadow age at time now (unix
// ms) has reached the margin. For each such order the final Executed history
// record is written first (a no-op where a provisional record exists), then
// the live records are deleted in one batch, and only then is the shadow
// entry dropped and the watcher told to forget the order. If the batch delete
// fails everything stays shadowed and the next pass retries.
func (r *Reconciler) Sweep(now int64) {
	expired := r.tracker.Expired(now, r.margin.Milliseconds())
	if len(expired) == 0 {
		return
	}

	var deletable []common.Hash
	for _, h := range expired {
		if err := r.recordHistory(h, order.StatusExecuted); err != nil {
			r.log.Error("record order history", zap.String("hash", h.Hex()), zap.Error(err))
			continue
		}
		deletable = append(deletable, h)
	}

	if err := r.store.DeleteOrders(deletable); err != nil {
		r.log.Error("delete expired orders", zap.Int("count", len(deletable)), zap.Error(err))
		return
	}

	for _, h := range deletable {
		r.tracker.MarkValid(h)
		r.watcher.RemoveOrder(h)
	}
	r.log.Info("swept expired shadows", zap.Int("count", len(deletable)))
}

// recordHistory writes the terminal record for h if its live order still
// exists. A hash with no live record (already swept, or never persisted) is
// silently skipped.
func (r *Reconciler) recordHistory(h common.Hash, status order.Status) error {
	o, err := r.store.GetOrder(h)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", h.Hex(), err)
	}
	return r.store.RecordHistory(h, o, status)
}

// statusFor maps an invalidation reason to the terminal status recorded in
// history. Only explicit cancellations count as Canceled; fills, expiries and
// unknown reasons all land as Executed.
func statusFor(reason string) order.Status {
	if reason == ReasonCanceled {
		return order.StatusCanceled
	}
	return order.StatusExecuted
}

// ReSubmitPersisted replays the persisted live set through the watcher on
// startup. An order that no longer validates went stale while the relayer was
// down, so it skips the shadow margin entirely: it gets a Canceled history
// record and is dropped from the live set in one batch. The rest go back
// under watch.
func (r *Reconciler) ReSubmitPersisted(ctx context.Context) error {
	recs, err := r.store.ListOrders(nil)
	if err != nil {
		return fmt.Errorf("list persisted orders: %w", err)
	}

	var stale []common.Hash
	for _, rec := range recs {
		if err := r.watcher.ValidateOrder(ctx, rec.Order); err != nil {
			if herr := r.store.RecordHistory(rec.Hash, rec.Order, order.StatusCanceled); herr != nil {
				r.log.Error("record stale order history",
					zap.String("hash", rec.Hash.Hex()), zap.Error(herr))
				continue
			}
			stale = append(stale, rec.Hash)
			r.log.Info("stale order dropped on startup",
				zap.String("hash", rec.Hash.Hex()), zap.Error(err))
			continue
		}
		if err := r.watcher.AddOrder(ctx, rec.Order); err != nil {
			r.log.Warn("re-watch persisted order",
				zap.String("hash", rec.Hash.Hex()), zap.Error(err))
		}
	}

	if err := r.store.DeleteOrders(stale); err != nil {
		return fmt.Errorf("delete stale orders: %w", err)
	}
	r.log.Info("re-submitted persisted orders",
		zap.Int("count", len(recs)), zap.Int("dropped", len(stale)))
	return nil
}
