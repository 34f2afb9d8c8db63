// Package watch decides when orders live and die. A Watcher observes order
// validity and emits change notifications; the Reconciler folds those
// notifications into the shadow set and permanently removes orders whose
// invalidity has outlasted the configured margin.
package watch

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/storage"
)

// ChangeKind classifies a validity transition.
type ChangeKind string

const (
	KindInvalidated ChangeKind = "INVALIDATED"
	KindRevalidated ChangeKind = "REVALIDATED"
)

// Well-known invalidation reasons. Any other reason string is treated as a
// fill for history purposes.
const (
	ReasonCanceled = "ORDER_CANCELLED"
	ReasonExpired  = "ORDER_EXPIRED"
)

// ErrOrderExpired is returned by ValidateOrder for orders past their deadline.
var ErrOrderExpired = errors.New("watch: order expired")

// Notification reports one validity transition for one order.
type Notification struct {
	OrderHash common.Hash `json:"orderHash"`
	Kind      ChangeKind  `json:"kind"`
	Reason    string      `json:"reason,omitempty"`
}

// Watcher observes the validity of a set of orders. Implementations may poll
// chain state, consume contract events, or, like ExpiryWatcher, only track
// deadlines. Subscribers receive either an error (oracle trouble, no state
// change implied) or a Notification, never both.
type Watcher interface {
	Subscribe(fn func(err error, n *Notification))
	AddOrder(ctx context.Context, o *order.SignedOrder) error
	RemoveOrder(hash common.Hash)
	ValidateOrder(ctx context.Context, o *order.SignedOrder) error
}

// Store is the slice of the persistence layer the reconciler needs.
// *storage.Store satisfies it.
type Store interface {
	ListOrders(f *storage.OrderFilter) ([]storage.OrderRecord, error)
	GetOrder(hash common.Hash) (*order.SignedOrder, error)
	DeleteOrders(hashes []common.Hash) error
	RecordHistory(hash common.Hash, o *order.SignedOrder, status order.Status) error
}
