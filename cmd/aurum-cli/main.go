package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"aurum/crypto"
	"aurum/native/sale"
)

const passphraseEnv = "AURUM_KEYSTORE_PASS"

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		generateKey(args[1])
	case "address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		showAddress(args[1])
	case "sign-order":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an order file and a keystore path.")
			printUsage()
			return
		}
		signOrder(args[1], args[2], false)
	case "countersign-order":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an order file and a keystore path.")
			printUsage()
			return
		}
		signOrder(args[1], args[2], true)
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: aurum-cli <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key <keystore>                Create a new key and store it encrypted")
	fmt.Println("  address <keystore>                     Print the bech32 address for a keystore")
	fmt.Println("  sign-order <order.json> <keystore>     Produce the buyer signature for an order")
	fmt.Println("  countersign-order <order.json> <keystore>")
	fmt.Println("                                         Produce the relayer signature for a buyer-signed order")
	fmt.Println()
	fmt.Printf("The keystore passphrase is read from %s.\n", passphraseEnv)
}

func passphrase() string {
	return os.Getenv(passphraseEnv)
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		os.Exit(1)
	}
	if err := crypto.SaveToKeystore(path, key, passphrase()); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func showAddress(path string) {
	key, err := crypto.LoadFromKeystore(path, passphrase())
	if err != nil {
		fmt.Printf("Error loading keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key.PubKey().Address().String())
}

// orderFile mirrors the JSON order payload accepted by the purchase RPCs.
type orderFile struct {
	ChainID           uint64 `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
	RoundID           uint64 `json:"roundId"`
	Buyer             string `json:"buyer"`
	GPTAmount         string `json:"gptAmount"`
	Nonce             uint64 `json:"nonce"`
	Expiry            int64  `json:"expiry"`
	PaymentToken      string `json:"paymentToken"`
	UserSignature     string `json:"userSignature,omitempty"`
}

func signOrder(orderPath, keystorePath string, relayer bool) {
	raw, err := os.ReadFile(orderPath)
	if err != nil {
		fmt.Printf("Error reading order file: %v\n", err)
		os.Exit(1)
	}
	var file orderFile
	if err := json.Unmarshal(raw, &file); err != nil {
		fmt.Printf("Error parsing order file: %v\n", err)
		os.Exit(1)
	}

	buyer, err := decodeAddress(file.Buyer)
	if err != nil {
		fmt.Printf("Error parsing buyer address: %v\n", err)
		os.Exit(1)
	}
	token, err := decodeAddress(file.PaymentToken)
	if err != nil {
		fmt.Printf("Error parsing payment token address: %v\n", err)
		os.Exit(1)
	}
	contract, err := decodeAddress(file.VerifyingContract)
	if err != nil {
		fmt.Printf("Error parsing verifying contract address: %v\n", err)
		os.Exit(1)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(file.GPTAmount), 10)
	if !ok {
		fmt.Printf("Error: invalid gptAmount %q\n", file.GPTAmount)
		os.Exit(1)
	}

	order := &sale.Order{
		RoundID:      file.RoundID,
		Buyer:        buyer,
		GPTAmount:    amount,
		Nonce:        file.Nonce,
		Expiry:       file.Expiry,
		PaymentToken: token,
	}
	auth := sale.NewAuthorizer(file.ChainID, contract)

	var digest [32]byte
	if relayer {
		userSig, err := decodeHex(file.UserSignature)
		if err != nil {
			fmt.Printf("Error parsing userSignature: %v\n", err)
			os.Exit(1)
		}
		order.UserSignature = userSig
		digest, err = auth.RelayerDigest(order)
		if err != nil {
			fmt.Printf("Error computing relayer digest: %v\n", err)
			os.Exit(1)
		}
	} else {
		digest, err = auth.OrderDigest(order)
		if err != nil {
			fmt.Printf("Error computing order digest: %v\n", err)
			os.Exit(1)
		}
	}

	key, err := crypto.LoadFromKeystore(keystorePath, passphrase())
	if err != nil {
		fmt.Printf("Error loading keystore: %v\n", err)
		os.Exit(1)
	}
	signature, err := key.Sign(digest[:])
	if err != nil {
		fmt.Printf("Error signing digest: %v\n", err)
		os.Exit(1)
	}

	label := "userSignature"
	if relayer {
		label = "relayerSignature"
	}
	fmt.Printf("%s: 0x%s\n", label, hex.EncodeToString(signature))
}

func decodeAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func decodeHex(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("hex payload required")
	}
	return hex.DecodeString(trimmed)
}
