package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/niodex/relayer/pkg/storage"
)

// Source is the slice of the persistence layer the view builder reads from.
// *storage.Store satisfies it.
type Source interface {
	ListOrders(f *storage.OrderFilter) ([]storage.OrderRecord, error)
}

// ShadowSet is a point-in-time view of currently shadowed order hashes.
// *shadow.Tracker satisfies it. Views take one snapshot per query; they do
// not chase shadow mutations that land mid-query.
type ShadowSet interface {
	Snapshot() map[common.Hash]struct{}
}

// Builder derives order book, query and asset-pair views.
type Builder struct {
	store   Source
	shadows ShadowSet
	// erc20Precision is the decimal precision synthesized for ERC-20 assets
	// in pair listings.
	erc20Precision int
}

func NewBuilder(store Source, shadows ShadowSet, erc20Precision int) *Builder {
	return &Builder{store: store, shadows: shadows, erc20Precision: erc20Precision}
}

// Book is the two-sided view for one trading pair.
type Book struct {
	Bids Page[storage.OrderRecord] `json:"bids"`
	Asks Page[storage.OrderRecord] `json:"asks"`
}

// BuildBook assembles the order book for the pair (base, quote). Bids offer
// the quote asset for the base asset; asks offer the base for the quote.
// Shadowed orders are excluded from both sides, then each side is sorted
// best-first and paginated independently.
func (b *Builder) BuildBook(baseAssetData, quoteAssetData hexutil.Bytes, page, perPage int) (*Book, error) {
	shadowed := b.shadows.Snapshot()

	bids, err := b.sideOrders(quoteAssetData, baseAssetData, shadowed)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	asks, err := b.sideOrders(baseAssetData, quoteAssetData, shadowed)
	if err != nil {
		return nil, fmt.Errorf("load asks: %w", err)
	}

	SortBids(bids)
	SortAsks(asks)

	return &Book{
		Bids: Paginate(bids, page, perPage),
		Asks: Paginate(asks, page, perPage),
	}, nil
}

// sideOrders loads the unshadowed orders selling makerData for takerData.
func (b *Builder) sideOrders(makerData, takerData hexutil.Bytes, shadowed map[common.Hash]struct{}) ([]storage.OrderRecord, error) {
	recs, err := b.store.ListOrders(&storage.OrderFilter{
		MakerAssetData: makerData,
		TakerAssetData: takerData,
	})
	if err != nil {
		return nil, err
	}

	out := recs[:0]
	for _, rec := range recs {
		if _, ok := shadowed[rec.Hash]; ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
