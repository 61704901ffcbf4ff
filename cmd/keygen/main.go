package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Generates a secp256k1 keypair for the mint voucher signer. The private key
// goes into FCARD_MINT_SIGNER_KEY_HEX; the public key is what the supply
// ledger trusts.
func main() {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("private:", hex.EncodeToString(priv.Serialize()))
	fmt.Println("public: ", hex.EncodeToString(priv.PubKey().SerializeCompressed()))
}
