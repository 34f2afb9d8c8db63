// Package book derives the query-facing views over the persisted order set:
// the sorted bid/ask order book, the filtered order listing, and the
// synthesized asset-pair listing. Everything here is read-only.
package book

import (
	"math/big"
	"sort"

	"github.com/niodex/relayer/pkg/order"
	"github.com/niodex/relayer/pkg/storage"
)

// ratioCmp compares aNum/aDen against bNum/bDen by cross-multiplication.
// Dividing first would round and could misorder prices that only differ past
// the division precision; cross-multiplying keeps the comparison exact.
func ratioCmp(aNum, aDen, bNum, bDen *big.Int) int {
	left := new(big.Int).Mul(aNum, bDen)
	right := new(big.Int).Mul(bNum, aDen)
	return left.Cmp(right)
}

// CompareAsk orders asks best-first: lowest price (takerAmount/makerAmount)
// first, price ties broken by lower fee ratio (takerFee/takerAssetAmount),
// fee ties by sooner expiration.
func CompareAsk(a, b *order.SignedOrder) int {
	if c := ratioCmp(a.TakerAssetAmount, a.MakerAssetAmount, b.TakerAssetAmount, b.MakerAssetAmount); c != 0 {
		return c
	}
	return compareTies(a, b)
}

// CompareBid orders bids best-first: highest price (makerAmount/takerAmount)
// first, with the same fee and expiration tie-breaks as asks.
func CompareBid(a, b *order.SignedOrder) int {
	if c := ratioCmp(a.MakerAssetAmount, a.TakerAssetAmount, b.MakerAssetAmount, b.TakerAssetAmount); c != 0 {
		return -c
	}
	return compareTies(a, b)
}

func compareTies(a, b *order.SignedOrder) int {
	if c := ratioCmp(a.TakerFee, a.TakerAssetAmount, b.TakerFee, b.TakerAssetAmount); c != 0 {
		return c
	}
	return a.ExpirationTimeSeconds.Cmp(b.ExpirationTimeSeconds)
}

// SortAsks sorts records into ask priority order, in place.
func SortAsks(recs []storage.OrderRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return CompareAsk(recs[i].Order, recs[j].Order) < 0
	})
}

// SortBids sorts records into bid priority order, in place.
func SortBids(recs []storage.OrderRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return CompareBid(recs[i].Order, recs[j].Order) < 0
	})
}
