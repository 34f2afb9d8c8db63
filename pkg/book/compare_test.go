package book

import (
	"math/big"
	"testing"

	"github.com/niodex/relayer/pkg/order"
)

func ord(makerAmount, takerAmount, takerFee, expiry int64) *order.SignedOrder {
	return &order.SignedOrder{
		MakerAssetAmount:      big.NewInt(makerAmount),
		TakerAssetAmount:      big.NewInt(takerAmount),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(takerFee),
		ExpirationTimeSeconds: big.NewInt(expiry),
		Salt:                  big.NewInt(1),
	}
}

func TestCompareAsk_PriceAscending(t *testing.T) {
	cheap := ord(100, 50, 0, 1000)      // price 0.5
	expensive := ord(100, 200, 0, 1000) // price 2

	if CompareAsk(cheap, expensive) >= 0 {
		t.Error("lower-priced ask must rank first")
	}
	if CompareAsk(expensive, cheap) <= 0 {
		t.Error("higher-priced ask must rank last")
	}
}

func TestCompareBid_PriceDescending(t *testing.T) {
	generous := ord(200, 100, 0, 1000) // pays 2 per unit
	stingy := ord(100, 100, 0, 1000)   // pays 1 per unit

	if CompareBid(generous, stingy) >= 0 {
		t.Error("higher-paying bid must rank first")
	}
}

func TestCompare_ExactRatios(t *testing.T) {
	// 1/3 vs 333333333333333333/1000000000000000000 differ only past the
	// 16th digit; a rounded division would call them equal.
	a := ord(3, 1, 0, 1000)
	b := ord(1_000_000_000_000_000_000, 333_333_333_333_333_333, 0, 1000)

	if CompareAsk(a, b) <= 0 {
		t.Error("1/3 must rank after 0.333...3 for asks")
	}
	// Exactly equal ratios scale-invariantly compare as ties.
	c := ord(6, 2, 0, 1000)
	if got := CompareAsk(a, c) != 0; got {
		t.Error("1/3 and 2/6 must compare equal on price")
	}
}

func TestCompare_FeeTieBreak(t *testing.T) {
	// Same price; lowFee pays 1/100 relative fee, highFee pays 5/100.
	lowFee := ord(100, 100, 1, 2000)
	highFee := ord(100, 100, 5, 1000)

	if CompareAsk(lowFee, highFee) >= 0 {
		t.Error("lower fee ratio must break a price tie for asks")
	}
	if CompareBid(lowFee, highFee) >= 0 {
		t.Error("lower fee ratio must break a price tie for bids")
	}
}

func TestCompare_ExpirationTieBreak(t *testing.T) {
	soon := ord(100, 100, 1, 1000)
	late := ord(100, 100, 1, 2000)

	if CompareAsk(soon, late) >= 0 {
		t.Error("sooner expiration must break a full tie")
	}
	if CompareAsk(soon, soon) != 0 {
		t.Error("identical orders must compare equal")
	}
}
