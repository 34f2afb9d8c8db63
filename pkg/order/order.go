package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SignedOrder is an immutable signed trade intent. Amounts are
// arbitrary-precision non-negative integers in the tokens' base units.
// Asset data blobs are opaque here; pkg/order's asset-data codec decodes
// them on demand.
type SignedOrder struct {
	ExchangeAddress       common.Address
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        hexutil.Bytes
	TakerAssetData        hexutil.Bytes
	Signature             hexutil.Bytes
}

// Validate checks structural well-formedness: all big.Int fields present and
// non-negative, both asset data blobs non-empty.
func (o *SignedOrder) Validate() error {
	for name, v := range map[string]*big.Int{
		"makerAssetAmount":      o.MakerAssetAmount,
		"takerAssetAmount":      o.TakerAssetAmount,
		"makerFee":              o.MakerFee,
		"takerFee":              o.TakerFee,
		"expirationTimeSeconds": o.ExpirationTimeSeconds,
		"salt":                  o.Salt,
	} {
		if v == nil {
			return fmt.Errorf("order field %s is missing", name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("order field %s is negative", name)
		}
	}
	if len(o.MakerAssetData) == 0 {
		return fmt.Errorf("order makerAssetData is empty")
	}
	if len(o.TakerAssetData) == 0 {
		return fmt.Errorf("order takerAssetData is empty")
	}
	return nil
}

// Status is the terminal lifecycle status recorded in the history store.
// Open is implicit: a live order has no status row at all.
type Status string

const (
	StatusCanceled Status = "Canceled"
	StatusExecuted Status = "Executed"
)
