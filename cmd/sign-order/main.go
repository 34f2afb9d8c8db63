// Command sign-order generates a keypair (or loads one from PRIVATE_KEY),
// builds a sample order, signs it and prints the JSON ready to POST to
// /api/v1/orders.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/niodex/relayer/pkg/crypto"
	"github.com/niodex/relayer/pkg/order"
)

func main() {
	var signer *crypto.Signer
	var err error

	if hexKey := os.Getenv("PRIVATE_KEY"); hexKey != "" {
		signer, err = crypto.FromPrivateKeyHex(hexKey)
	} else {
		fmt.Fprintln(os.Stderr, "Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())
	fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	salt, err := crypto.GenerateSalt()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	makerToken := common.HexToAddress("0x0b1ba0af832d7c05fd64161e0db78e85978e8082") // sample WETH
	takerToken := common.HexToAddress("0x1dad4783cf3fe3085c1426157ab175a6119a04ba") // sample ZRX

	o := &order.SignedOrder{
		ExchangeAddress:       common.HexToAddress(os.Getenv("EXCHANGE_ADDRESS")),
		MakerAddress:          signer.Address(),
		MakerAssetAmount:      big.NewInt(1_000_000_000_000_000_000),
		TakerAssetAmount:      big.NewInt(500_000_000_000_000_000),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(0),
		ExpirationTimeSeconds: big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		Salt:                  new(big.Int).SetUint64(salt),
		MakerAssetData:        order.EncodeERC20AssetData(makerToken),
		TakerAssetData:        order.EncodeERC20AssetData(takerToken),
	}

	sig, err := crypto.SignOrder(signer, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing: %v\n", err)
		os.Exit(1)
	}
	o.Signature = sig

	hash, err := crypto.HashOrder(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Order Hash: %s\n\n", hash.Hex())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding: %v\n", err)
		os.Exit(1)
	}
}
