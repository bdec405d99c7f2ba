package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	var outputPath string
	var displayOnly bool

	flag.StringVar(&outputPath, "output", "", "Output path for the signer key (hex)")
	flag.BoolVar(&displayOnly, "display-only", false, "Only display the key address, don't save")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
		os.Exit(1)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	if displayOnly {
		fmt.Printf("Signer Address: %s\n", address.Hex())
		return
	}

	if outputPath == "" {
		fmt.Fprintln(os.Stderr, "Output path is required")
		os.Exit(1)
	}
	if _, err := os.Stat(outputPath); err == nil {
		fmt.Fprintf(os.Stderr, "Refusing to overwrite existing key at %s\n", outputPath)
		os.Exit(1)
	}

	// SaveECDSA writes the hex key with 0600 permissions.
	if err := crypto.SaveECDSA(outputPath, key); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated Signer Address: %s\n", address.Hex())
	fmt.Printf("Key saved to: %s\n", outputPath)
}
