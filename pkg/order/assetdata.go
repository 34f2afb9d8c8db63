package order

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ProxyKind identifies the asset proxy an asset data blob targets.
type ProxyKind string

const (
	KindERC20      ProxyKind = "ERC20"
	KindERC721     ProxyKind = "ERC721"
	KindMultiAsset ProxyKind = "MultiAsset"
	KindStaticCall ProxyKind = "StaticCall"
)

// 4-byte proxy selectors, per the 0x v2 asset proxy registry.
var (
	erc20Selector      = []byte{0xf4, 0x72, 0x61, 0xb0}
	erc721Selector     = []byte{0x02, 0x57, 0x17, 0x92}
	multiAssetSelector = []byte{0x94, 0xcf, 0xcd, 0xd7}
	staticCallSelector = []byte{0xc3, 0x39, 0xd1, 0x0a}
)

var (
	addressT  = mustType("address")
	uint256T  = mustType("uint256")
	uintArrT  = mustType("uint256[]")
	bytesArrT = mustType("bytes[]")

	erc20Args      = abi.Arguments{{Type: addressT}}
	erc721Args     = abi.Arguments{{Type: addressT}, {Type: uint256T}}
	multiAssetArgs = abi.Arguments{{Type: uintArrT}, {Type: bytesArrT}}
)

func mustType(s string) abi.Type {
	t, err := abi.NewType(s, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// AssetData is the decoded form of an asset data blob: either a leaf token
// reference (ERC20/ERC721) or a composite of nested blobs (MultiAsset).
type AssetData struct {
	Kind         ProxyKind
	TokenAddress common.Address // ERC20, ERC721
	TokenID      *big.Int       // ERC721 only
	Amounts      []*big.Int     // MultiAsset only
	Nested       []hexutil.Bytes // MultiAsset only, each itself asset data
}

// DecodeAssetData decodes an asset data blob into its typed form.
// Malformed blobs are an error, never silently skipped.
func DecodeAssetData(data hexutil.Bytes) (*AssetData, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("asset data too short: %d bytes", len(data))
	}
	selector, payload := data[:4], []byte(data[4:])
	switch {
	case bytes.Equal(selector, erc20Selector):
		vals, err := erc20Args.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("decode ERC20 asset data: %w", err)
		}
		return &AssetData{Kind: KindERC20, TokenAddress: vals[0].(common.Address)}, nil
	case bytes.Equal(selector, erc721Selector):
		vals, err := erc721Args.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("decode ERC721 asset data: %w", err)
		}
		return &AssetData{
			Kind:         KindERC721,
			TokenAddress: vals[0].(common.Address),
			TokenID:      vals[1].(*big.Int),
		}, nil
	case bytes.Equal(selector, multiAssetSelector):
		vals, err := multiAssetArgs.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("decode MultiAsset asset data: %w", err)
		}
		amounts := vals[0].([]*big.Int)
		raw := vals[1].([][]byte)
		nested := make([]hexutil.Bytes, len(raw))
		for i, b := range raw {
			nested[i] = hexutil.Bytes(b)
		}
		return &AssetData{Kind: KindMultiAsset, Amounts: amounts, Nested: nested}, nil
	case bytes.Equal(selector, staticCallSelector):
		return &AssetData{Kind: KindStaticCall}, nil
	default:
		return nil, fmt.Errorf("unknown asset proxy selector %s", hexutil.Encode(selector))
	}
}

// IncludesToken reports whether the asset data references tokenAddress at any
// leaf, descending recursively through MultiAsset composites. StaticCall
// blobs reference no token.
func IncludesToken(data hexutil.Bytes, tokenAddress common.Address) (bool, error) {
	decoded, err := DecodeAssetData(data)
	if err != nil {
		return false, err
	}
	switch decoded.Kind {
	case KindMultiAsset:
		for _, nested := range decoded.Nested {
			ok, err := IncludesToken(nested, tokenAddress)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case KindStaticCall:
		return false, nil
	default:
		return decoded.TokenAddress == tokenAddress, nil
	}
}

// EncodeERC20AssetData builds the canonical ERC-20 asset data blob for a token.
func EncodeERC20AssetData(tokenAddress common.Address) hexutil.Bytes {
	packed, err := erc20Args.Pack(tokenAddress)
	if err != nil {
		panic(err)
	}
	return withSelector(erc20Selector, packed)
}

// EncodeERC721AssetData builds the canonical ERC-721 asset data blob.
func EncodeERC721AssetData(tokenAddress common.Address, tokenID *big.Int) hexutil.Bytes {
	packed, err := erc721Args.Pack(tokenAddress, tokenID)
	if err != nil {
		panic(err)
	}
	return withSelector(erc721Selector, packed)
}

// EncodeMultiAssetData builds a composite asset data blob from nested blobs.
func EncodeMultiAssetData(amounts []*big.Int, nested []hexutil.Bytes) hexutil.Bytes {
	raw := make([][]byte, len(nested))
	for i, n := range nested {
		raw[i] = n
	}
	packed, err := multiAssetArgs.Pack(amounts, raw)
	if err != nil {
		panic(err)
	}
	return withSelector(multiAssetSelector, packed)
}

func withSelector(selector, packed []byte) hexutil.Bytes {
	out := make(hexutil.Bytes, 0, len(selector)+len(packed))
	out = append(out, selector...)
	return append(out, packed...)
}
