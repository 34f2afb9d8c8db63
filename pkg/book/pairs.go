package book

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/niodex/relayer/pkg/order"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Asset describes one side of a tradable pair. Amounts are decimal strings so
// uint256 bounds survive JSON.
type Asset struct {
	AssetData hexutil.Bytes `json:"assetData"`
	MinAmount string        `json:"minAmount"`
	MaxAmount string        `json:"maxAmount"`
	Precision int           `json:"precision"`
}

// AssetPair is one tradable pair synthesized from the live order set.
type AssetPair struct {
	AssetDataA Asset `json:"assetDataA"`
	AssetDataB Asset `json:"assetDataB"`
}

// AssetPairs synthesizes the tradable pairs from the unshadowed live orders.
// Each order contributes its (maker, taker) asset pair; orientation is
// canonicalized so the two directions of a market dedupe to one pair. The
// optional assetDataA/assetDataB arguments restrict the listing to pairs
// containing those encodings.
func (b *Builder) AssetPairs(assetDataA, assetDataB hexutil.Bytes, page, perPage int) (Page[AssetPair], error) {
	recs, err := b.store.ListOrders(nil)
	if err != nil {
		return Page[AssetPair]{}, fmt.Errorf("list orders: %w", err)
	}
	shadowed := b.shadows.Snapshot()

	seen := make(map[string]AssetPair)
	for _, rec := range recs {
		if _, ok := shadowed[rec.Hash]; ok {
			continue
		}
		a, bb := rec.Order.MakerAssetData, rec.Order.TakerAssetData
		if bytes.Compare(a, bb) > 0 {
			a, bb = bb, a
		}
		key := string(a) + "\x00" + string(bb)
		if _, ok := seen[key]; ok {
			continue
		}
		pa, err := b.describeAsset(a)
		if err != nil {
			return Page[AssetPair]{}, err
		}
		pb, err := b.describeAsset(bb)
		if err != nil {
			return Page[AssetPair]{}, err
		}
		seen[key] = AssetPair{AssetDataA: pa, AssetDataB: pb}
	}

	var pairs []AssetPair
	for _, p := range seen {
		if !pairContains(p, assetDataA) || !pairContains(p, assetDataB) {
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if c := bytes.Compare(pairs[i].AssetDataA.AssetData, pairs[j].AssetDataA.AssetData); c != 0 {
			return c < 0
		}
		return bytes.Compare(pairs[i].AssetDataB.AssetData, pairs[j].AssetDataB.AssetData) < 0
	})
	return Paginate(pairs, page, perPage), nil
}

func pairContains(p AssetPair, data hexutil.Bytes) bool {
	if len(data) == 0 {
		return true
	}
	return bytes.Equal(p.AssetDataA.AssetData, data) || bytes.Equal(p.AssetDataB.AssetData, data)
}

// describeAsset synthesizes the tradable bounds for one asset encoding.
// Fungible ERC-20 assets trade in any amount at the configured precision;
// everything else is treated as a single indivisible unit.
func (b *Builder) describeAsset(data hexutil.Bytes) (Asset, error) {
	decoded, err := order.DecodeAssetData(data)
	if err != nil {
		return Asset{}, fmt.Errorf("decode asset data %s: %w", data, err)
	}

	asset := Asset{AssetData: data, MinAmount: "0"}
	if decoded.Kind == order.KindERC20 {
		asset.MaxAmount = maxUint256.String()
		asset.Precision = b.erc20Precision
	} else {
		asset.MaxAmount = "1"
		asset.Precision = 0
	}
	return asset, nil
}
