package sale

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Typed-data constants. Any signer (buyer or relayer) must reproduce these
// bit-for-bit; a deviation invalidates the signature.
const (
	SigningDomainName    = "AurumSale"
	SigningDomainVersion = "1"
)

var (
	domainTypeHash = ethcrypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	orderTypeHash = ethcrypto.Keccak256([]byte(
		"Order(uint256 roundId,address buyer,uint256 gptAmount,uint256 nonce,uint256 expiry,address paymentToken,uint256 chainId)"))
	relayerOrderTypeHash = ethcrypto.Keccak256([]byte(
		"RelayerOrder(uint256 roundId,address buyer,uint256 gptAmount,uint256 nonce,uint256 expiry,address paymentToken,bytes userSignature,uint256 chainId)"))
)

// Authorizer builds domain-separated order digests and verifies the two
// independent signatures over them. All methods are pure; nonce and expiry
// checks are composed by the caller before committing state.
type Authorizer struct {
	chainID         uint64
	domainSeparator [32]byte
}

// NewAuthorizer computes the domain separator once, binding all digests to
// the service identity and chain.
func NewAuthorizer(chainID uint64, verifyingContract [20]byte) *Authorizer {
	separator, _ := hashWords(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(SigningDomainName)),
		ethcrypto.Keccak256([]byte(SigningDomainVersion)),
		uint64Word(chainID),
		addressWord(verifyingContract),
	)
	a := &Authorizer{chainID: chainID}
	copy(a.domainSeparator[:], separator)
	return a
}

// DomainSeparator exposes the precomputed separator for signers and tests.
func (a *Authorizer) DomainSeparator() [32]byte {
	if a == nil {
		return [32]byte{}
	}
	return a.domainSeparator
}

// OrderDigest derives the buyer-facing digest for the order.
func (a *Authorizer) OrderDigest(order *Order) ([32]byte, error) {
	if a == nil || order == nil {
		return [32]byte{}, fmt.Errorf("sale: order required")
	}
	if err := checkAmountWord(order.GPTAmount); err != nil {
		return [32]byte{}, err
	}
	structHash, err := hashWords(
		orderTypeHash,
		uint64Word(order.RoundID),
		addressWord(order.Buyer),
		amountWord(order.GPTAmount),
		uint64Word(order.Nonce),
		uint64Word(uint64(order.Expiry)),
		addressWord(order.PaymentToken),
		uint64Word(a.chainID),
	)
	if err != nil {
		return [32]byte{}, err
	}
	return a.finalDigest(structHash), nil
}

// RelayerDigest derives the co-signer digest. It additionally commits to the
// bytes of the user signature, binding the countersignature to one specific
// already-signed order so a relayer approval cannot be replayed under a
// different buyer signature.
func (a *Authorizer) RelayerDigest(order *Order) ([32]byte, error) {
	if a == nil || order == nil {
		return [32]byte{}, fmt.Errorf("sale: order required")
	}
	if len(order.UserSignature) != ethcrypto.SignatureLength {
		return [32]byte{}, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(order.UserSignature))
	}
	if err := checkAmountWord(order.GPTAmount); err != nil {
		return [32]byte{}, err
	}
	structHash, err := hashWords(
		relayerOrderTypeHash,
		uint64Word(order.RoundID),
		addressWord(order.Buyer),
		amountWord(order.GPTAmount),
		uint64Word(order.Nonce),
		uint64Word(uint64(order.Expiry)),
		addressWord(order.PaymentToken),
		ethcrypto.Keccak256(order.UserSignature),
		uint64Word(a.chainID),
	)
	if err != nil {
		return [32]byte{}, err
	}
	return a.finalDigest(structHash), nil
}

func (a *Authorizer) finalDigest(structHash []byte) [32]byte {
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, a.domainSeparator[:], structHash)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// VerifyUserSignature checks that the buyer signature over the order digest
// recovers to order.Buyer.
func (a *Authorizer) VerifyUserSignature(order *Order) error {
	if order == nil {
		return fmt.Errorf("sale: order required")
	}
	digest, err := a.OrderDigest(order)
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(digest, order.UserSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUserSignature, err)
	}
	if signer == ([20]byte{}) || signer != order.Buyer {
		return ErrInvalidUserSignature
	}
	return nil
}

// VerifyRelayerSignature checks that the countersignature over the relayer
// digest recovers to the configured trusted co-signer.
func (a *Authorizer) VerifyRelayerSignature(order *Order, relayer [20]byte) error {
	if order == nil {
		return fmt.Errorf("sale: order required")
	}
	if len(order.RelayerSignature) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(order.RelayerSignature))
	}
	digest, err := a.RelayerDigest(order)
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(digest, order.RelayerSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRelayerSignature, err)
	}
	if signer == ([20]byte{}) || signer != relayer {
		return ErrInvalidRelayerSignature
	}
	return nil
}

// RecoverSigner recovers the 20-byte address that produced the 65-byte
// [R || S || V] signature over the digest. V may carry either the raw
// recovery id (0/1) or the legacy 27/28 offset.
func RecoverSigner(digest [32]byte, signature []byte) ([20]byte, error) {
	if len(signature) != ethcrypto.SignatureLength {
		return [20]byte{}, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(signature))
	}
	normalized := append([]byte(nil), signature...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return [20]byte{}, fmt.Errorf("invalid recovery id %d", signature[64])
	}
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return [20]byte{}, err
	}
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}

func hashWords(words ...[]byte) ([]byte, error) {
	buf := make([]byte, 0, len(words)*32)
	for _, word := range words {
		if len(word) > 32 {
			return nil, fmt.Errorf("sale: word exceeds 32 bytes")
		}
		padded := make([]byte, 32)
		copy(padded[32-len(word):], word)
		buf = append(buf, padded...)
	}
	return ethcrypto.Keccak256(buf), nil
}

func uint64Word(v uint64) []byte {
	return new(big.Int).SetUint64(v).Bytes()
}

// checkAmountWord rejects amounts that cannot be encoded as a uint256 word.
func checkAmountWord(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("%w: exceeds uint256", ErrInvalidAmount)
	}
	return nil
}

func amountWord(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

func addressWord(addr [20]byte) []byte {
	return addr[:]
}
