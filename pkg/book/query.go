package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/storage"
)

// Filters is the full filter surface of the order query. The exact-match
// fields are pushed down to the store scan; the remaining fields need decoded
// asset data or the shadow set and are applied after the fetch. Nil fields
// impose no constraint.
type Filters struct {
	ExchangeAddress     *common.Address
	SenderAddress       *common.Address
	MakerAddress        *common.Address
	TakerAddress        *common.Address
	FeeRecipientAddress *common.Address
	MakerAssetData      hexutil.Bytes
	TakerAssetData      hexutil.Bytes

	// Trader matches orders where the address is maker or taker.
	Trader *common.Address
	// MakerAssetAddress/TakerAssetAddress match any leaf token address of
	// the (possibly nested multi-asset) encoding on that side.
	MakerAssetAddress *common.Address
	TakerAssetAddress *common.Address
	// MakerAssetKind/TakerAssetKind match the decoded proxy kind exactly.
	MakerAssetKind *order.ProxyKind
	TakerAssetKind *order.ProxyKind
}

func (f *Filters) preFilter() *storage.OrderFilter {
	if f == nil {
		return nil
	}
	return &storage.OrderFilter{
		ExchangeAddress:     f.ExchangeAddress,
		SenderAddress:       f.SenderAddress,
		MakerAddress:        f.MakerAddress,
		TakerAddress:        f.TakerAddress,
		FeeRecipientAddress: f.FeeRecipientAddress,
		MakerAssetData:      f.MakerAssetData,
		TakerAssetData:      f.TakerAssetData,
	}
}

// QueryOrders returns the page of unshadowed live orders matching every set
// filter. A malformed asset encoding hit by an asset filter fails the whole
// query rather than silently dropping the order.
func (b *Builder) QueryOrders(f *Filters, page, perPage int) (Page[storage.OrderRecord], error) {
	recs, err := b.store.ListOrders(f.preFilter())
	if err != nil {
		return Page[storage.OrderRecord]{}, fmt.Errorf("list orders: %w", err)
	}

	shadowed := b.shadows.Snapshot()
	matched := recs[:0]
	for _, rec := range recs {
		if _, ok := shadowed[rec.Hash]; ok {
			continue
		}
		ok, err := matchPostFilters(f, rec.Order)
		if err != nil {
			return Page[storage.OrderRecord]{}, fmt.Errorf("filter order %s: %w", rec.Hash.Hex(), err)
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return Paginate(matched, page, perPage), nil
}

func matchPostFilters(f *Filters, o *order.SignedOrder) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.Trader != nil && o.MakerAddress != *f.Trader && o.TakerAddress != *f.Trader {
		return false, nil
	}
	if f.MakerAssetAddress != nil {
		ok, err := order.IncludesToken(o.MakerAssetData, *f.MakerAssetAddress)
		if err != nil || !ok {
			return false, err
		}
	}
	if f.TakerAssetAddress != nil {
		ok, err := order.IncludesToken(o.TakerAssetData, *f.TakerAssetAddress)
		if err != nil || !ok {
			return false, err
		}
	}
	if f.MakerAssetKind != nil {
		decoded, err := order.DecodeAssetData(o.MakerAssetData)
		if err != nil {
			return false, err
		}
		if decoded.Kind != *f.MakerAssetKind {
			return false, nil
		}
	}
	if f.TakerAssetKind != nil {
		decoded, err := order.DecodeAssetData(o.TakerAssetData)
		if err != nil {
			return false, err
		}
		if decoded.Kind != *f.TakerAssetKind {
			return false, nil
		}
	}
	return true, nil
}
