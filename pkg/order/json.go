package order

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Wire format: amounts travel as decimal strings so JSON numbers never lose
// precision on 256-bit values. Matches the standard relayer API.
type signedOrderJSON struct {
	ExchangeAddress       common.Address `json:"exchangeAddress"`
	MakerAddress          common.Address `json:"makerAddress"`
	TakerAddress          common.Address `json:"takerAddress"`
	FeeRecipientAddress   common.Address `json:"feeRecipientAddress"`
	SenderAddress         common.Address `json:"senderAddress"`
	MakerAssetAmount      string         `json:"makerAssetAmount"`
	TakerAssetAmount      string         `json:"takerAssetAmount"`
	MakerFee              string         `json:"makerFee"`
	TakerFee              string         `json:"takerFee"`
	ExpirationTimeSeconds string         `json:"expirationTimeSeconds"`
	Salt                  string         `json:"salt"`
	MakerAssetData        hexutil.Bytes  `json:"makerAssetData"`
	TakerAssetData        hexutil.Bytes  `json:"takerAssetData"`
	Signature             hexutil.Bytes  `json:"signature"`
}

func (o SignedOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedOrderJSON{
		ExchangeAddress:       o.ExchangeAddress,
		MakerAddress:          o.MakerAddress,
		TakerAddress:          o.TakerAddress,
		FeeRecipientAddress:   o.FeeRecipientAddress,
		SenderAddress:         o.SenderAddress,
		MakerAssetAmount:      bigString(o.MakerAssetAmount),
		TakerAssetAmount:      bigString(o.TakerAssetAmount),
		MakerFee:              bigString(o.MakerFee),
		TakerFee:              bigString(o.TakerFee),
		ExpirationTimeSeconds: bigString(o.ExpirationTimeSeconds),
		Salt:                  bigString(o.Salt),
		MakerAssetData:        o.MakerAssetData,
		TakerAssetData:        o.TakerAssetData,
		Signature:             o.Signature,
	})
}

func (o *SignedOrder) UnmarshalJSON(data []byte) error {
	var aux signedOrderJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	makerAmount, err := parseBig("makerAssetAmount", aux.MakerAssetAmount)
	if err != nil {
		return err
	}
	takerAmount, err := parseBig("takerAssetAmount", aux.TakerAssetAmount)
	if err != nil {
		return err
	}
	makerFee, err := parseBig("makerFee", aux.MakerFee)
	if err != nil {
		return err
	}
	takerFee, err := parseBig("takerFee", aux.TakerFee)
	if err != nil {
		return err
	}
	expiration, err := parseBig("expirationTimeSeconds", aux.ExpirationTimeSeconds)
	if err != nil {
		return err
	}
	salt, err := parseBig("salt", aux.Salt)
	if err != nil {
		return err
	}
	*o = SignedOrder{
		ExchangeAddress:       aux.ExchangeAddress,
		MakerAddress:          aux.MakerAddress,
		TakerAddress:          aux.TakerAddress,
		FeeRecipientAddress:   aux.FeeRecipientAddress,
		SenderAddress:         aux.SenderAddress,
		MakerAssetAmount:      makerAmount,
		TakerAssetAmount:      takerAmount,
		MakerFee:              makerFee,
		TakerFee:              takerFee,
		ExpirationTimeSeconds: expiration,
		Salt:                  salt,
		MakerAssetData:        aux.MakerAssetData,
		TakerAssetData:        aux.TakerAssetData,
		Signature:             aux.Signature,
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal string for %s: %q", field, s)
	}
	return v, nil
}
