package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/niodex/relayer/pkg/order"
)

// Order identity is the EIP-712 digest of the order's canonical fields under
// the exchange-v2 domain. The verifying contract is the order's own
// exchangeAddress, so identical fields on different exchanges hash differently.
const (
	domainName    = "0x Protocol"
	domainVersion = "2"
)

var orderType = []apitypes.Type{
	{Name: "makerAddress", Type: "address"},
	{Name: "takerAddress", Type: "address"},
	{Name: "feeRecipientAddress", Type: "address"},
	{Name: "senderAddress", Type: "address"},
	{Name: "makerAssetAmount", Type: "uint256"},
	{Name: "takerAssetAmount", Type: "uint256"},
	{Name: "makerFee", Type: "uint256"},
	{Name: "takerFee", Type: "uint256"},
	{Name: "expirationTimeSeconds", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
	{Name: "makerAssetData", Type: "bytes"},
	{Name: "takerAssetData", Type: "bytes"},
}

// HashOrder computes the order's identity hash.
func HashOrder(o *order.SignedOrder) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": orderType,
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			VerifyingContract: o.ExchangeAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"makerAddress":          o.MakerAddress.Hex(),
			"takerAddress":          o.TakerAddress.Hex(),
			"feeRecipientAddress":   o.FeeRecipientAddress.Hex(),
			"senderAddress":         o.SenderAddress.Hex(),
			"makerAssetAmount":      bigOrZero(o.MakerAssetAmount),
			"takerAssetAmount":      bigOrZero(o.TakerAssetAmount),
			"makerFee":              bigOrZero(o.MakerFee),
			"takerFee":              bigOrZero(o.TakerFee),
			"expirationTimeSeconds": bigOrZero(o.ExpirationTimeSeconds),
			"salt":                  bigOrZero(o.Salt),
			"makerAssetData":        hexutil.Encode(o.MakerAssetData),
			"takerAssetData":        hexutil.Encode(o.TakerAssetData),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash order struct: %w", err)
	}

	// digest = keccak256("\x19\x01" || domainSeparator || structHash)
	raw := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256Hash(raw), nil
}

// SignOrder signs the order's identity hash with the signer's key and returns
// the 65-byte [R || S || V] signature.
func SignOrder(s *Signer, o *order.SignedOrder) ([]byte, error) {
	hash, err := HashOrder(o)
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	return sig, nil
}

// VerifyOrderSignature reports whether the order's signature recovers to its
// maker address.
func VerifyOrderSignature(o *order.SignedOrder) (bool, error) {
	hash, err := HashOrder(o)
	if err != nil {
		return false, err
	}
	recovered, err := RecoverAddress(hash.Bytes(), o.Signature)
	if err != nil {
		return false, fmt.Errorf("recover order signer: %w", err)
	}
	return recovered == o.MakerAddress, nil
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
