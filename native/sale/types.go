package sale

import (
	"math/big"
)

// Stage enumerates the lifecycle states of a sale round. SaleEnded is
// terminal; no further transitions are accepted once reached.
type Stage uint8

const (
	StagePreMarketing Stage = iota
	StagePreSale
	StagePublicSale
	StageSaleEnded
)

// String renders the canonical stage name used in events and RPC payloads.
func (s Stage) String() string {
	switch s {
	case StagePreMarketing:
		return "pre_marketing"
	case StagePreSale:
		return "presale"
	case StagePublicSale:
		return "public_sale"
	case StageSaleEnded:
		return "sale_ended"
	default:
		return "unknown"
	}
}

// ParseStage maps a canonical stage name back to its enum value.
func ParseStage(name string) (Stage, bool) {
	switch name {
	case "pre_marketing":
		return StagePreMarketing, true
	case "presale":
		return StagePreSale, true
	case "public_sale":
		return StagePublicSale, true
	case "sale_ended":
		return StageSaleEnded, true
	default:
		return 0, false
	}
}

// Valid reports whether the stage value is within the supported range.
func (s Stage) Valid() bool {
	return s <= StageSaleEnded
}

// Active reports whether purchases are admitted in this stage.
func (s Stage) Active() bool {
	return s == StagePreSale || s == StagePublicSale
}

// Round captures the allocation and time window of a single sale round.
// Rounds are never deleted; they remain as a historical record after their
// window elapses.
type Round struct {
	ID         uint64
	MaxTokens  *big.Int
	TokensSold *big.Int
	StartTime  int64
	EndTime    int64
	Stage      Stage
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	clone := *r
	if r.MaxTokens != nil {
		clone.MaxTokens = new(big.Int).Set(r.MaxTokens)
	} else {
		clone.MaxTokens = big.NewInt(0)
	}
	if r.TokensSold != nil {
		clone.TokensSold = new(big.Int).Set(r.TokensSold)
	} else {
		clone.TokensSold = big.NewInt(0)
	}
	return &clone
}

// Remaining returns the unsold allocation of the round.
func (r *Round) Remaining() *big.Int {
	if r == nil || r.MaxTokens == nil {
		return big.NewInt(0)
	}
	sold := r.TokensSold
	if sold == nil {
		sold = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(r.MaxTokens, sold)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// TokenConfig describes an accepted payment token. Absent entries are
// treated as not accepted.
type TokenConfig struct {
	Accepted bool
	FeedRef  string
	Decimals uint8
}

// Order is the ephemeral purchase authorization submitted by a caller. It is
// never persisted; only its digest is derived during verification.
type Order struct {
	RoundID          uint64
	Buyer            [20]byte
	GPTAmount        *big.Int
	Nonce            uint64
	Expiry           int64
	PaymentToken     [20]byte
	UserSignature    []byte
	RelayerSignature []byte
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.GPTAmount != nil {
		clone.GPTAmount = new(big.Int).Set(o.GPTAmount)
	}
	clone.UserSignature = append([]byte(nil), o.UserSignature...)
	clone.RelayerSignature = append([]byte(nil), o.RelayerSignature...)
	return &clone
}
