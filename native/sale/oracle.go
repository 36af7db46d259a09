package sale

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultMaxPriceAge bounds how old a feed answer may be before it is
// rejected as stale.
const DefaultMaxPriceAge = time.Hour

// RoundData mirrors the answer shape reported by Chainlink-style price feeds.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	StartedAt       int64
	UpdatedAt       int64
	AnsweredInRound uint64
}

// PriceFeed exposes the latest observation for a single asset pair together
// with the feed's decimal precision.
type PriceFeed interface {
	LatestRoundData() (RoundData, error)
	Decimals() uint8
}

// Resolver reads price feeds, enforces freshness and converts between
// pegged-token amounts and payment-token amounts. A stale or invalid read
// fails the enclosing operation; the resolver never retries.
type Resolver struct {
	maxAge time.Duration
	nowFn  func() int64
}

// NewResolver constructs a resolver with the supplied freshness bound. A
// non-positive maxAge falls back to DefaultMaxPriceAge.
func NewResolver(maxAge time.Duration) *Resolver {
	if maxAge <= 0 {
		maxAge = DefaultMaxPriceAge
	}
	return &Resolver{
		maxAge: maxAge,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (r *Resolver) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// GetLatestPrice reads the feed and validates sign and freshness of the
// answer. The returned price carries the feed's native decimal precision.
func (r *Resolver) GetLatestPrice(feed PriceFeed) (*big.Int, int64, error) {
	if r == nil {
		return nil, 0, fmt.Errorf("sale: resolver not configured")
	}
	if feed == nil {
		return nil, 0, fmt.Errorf("sale: price feed not configured")
	}
	data, err := feed.LatestRoundData()
	if err != nil {
		return nil, 0, err
	}
	if data.Answer == nil || data.Answer.Sign() <= 0 {
		return nil, 0, ErrInvalidPrice
	}
	now := r.nowFn()
	if now-data.UpdatedAt > int64(r.maxAge/time.Second) {
		return nil, 0, fmt.Errorf("%w: updated %ds ago", ErrStalePrice, now-data.UpdatedAt)
	}
	return new(big.Int).Set(data.Answer), data.UpdatedAt, nil
}

// PaymentAmountFor computes how much of a payment token (at its native
// decimal precision) is owed for gptAmount units of the pegged token. The
// ratio goldPrice/tokenPrice is scaled by the two feeds' decimal precisions
// and by tokensPerTroyOunce; the single division is performed last and
// truncates toward zero, which callers must accept as the canonical rounding
// policy.
func PaymentAmountFor(goldPrice *big.Int, goldFeedDecimals uint8, tokenPrice *big.Int, tokenFeedDecimals uint8, gptAmount *big.Int, tokenDecimals uint8, tokensPerTroyOunce *big.Int) (*big.Int, error) {
	if gptAmount == nil || gptAmount.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if gptAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if goldPrice == nil || goldPrice.Sign() <= 0 || tokenPrice == nil || tokenPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if tokensPerTroyOunce == nil || tokensPerTroyOunce.Sign() <= 0 {
		return nil, fmt.Errorf("sale: tokens per troy ounce must be positive")
	}
	numerator := new(big.Int).Mul(gptAmount, goldPrice)
	numerator.Mul(numerator, pow10(tokenFeedDecimals))
	numerator.Mul(numerator, pow10(tokenDecimals))
	denominator := new(big.Int).Mul(tokensPerTroyOunce, tokenPrice)
	denominator.Mul(denominator, pow10(goldFeedDecimals))
	return numerator.Quo(numerator, denominator), nil
}

// GPTAmountFor is the inverse of PaymentAmountFor: it prices a fixed payment
// amount into pegged-token units, with the same trailing truncating division.
func GPTAmountFor(goldPrice *big.Int, goldFeedDecimals uint8, tokenPrice *big.Int, tokenFeedDecimals uint8, paymentAmount *big.Int, tokenDecimals uint8, tokensPerTroyOunce *big.Int) (*big.Int, error) {
	if paymentAmount == nil || paymentAmount.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if paymentAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if goldPrice == nil || goldPrice.Sign() <= 0 || tokenPrice == nil || tokenPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if tokensPerTroyOunce == nil || tokensPerTroyOunce.Sign() <= 0 {
		return nil, fmt.Errorf("sale: tokens per troy ounce must be positive")
	}
	numerator := new(big.Int).Mul(paymentAmount, tokenPrice)
	numerator.Mul(numerator, pow10(goldFeedDecimals))
	numerator.Mul(numerator, tokensPerTroyOunce)
	denominator := new(big.Int).Mul(goldPrice, pow10(tokenFeedDecimals))
	denominator.Mul(denominator, pow10(tokenDecimals))
	return numerator.Quo(numerator, denominator), nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// ManualFeed is an in-memory feed implementation used for tests and manual
// overrides during incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	decimals uint8
	data     RoundData
}

// NewManualFeed constructs a manual feed with the supplied decimal precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Set records the answer and observation timestamp, bumping the feed round.
func (f *ManualFeed) Set(answer *big.Int, updatedAt int64) {
	if f == nil || answer == nil {
		return
	}
	f.mu.Lock()
	f.data.RoundID++
	f.data.Answer = new(big.Int).Set(answer)
	f.data.StartedAt = updatedAt
	f.data.UpdatedAt = updatedAt
	f.data.AnsweredInRound = f.data.RoundID
	f.mu.Unlock()
}

// LatestRoundData returns the stored observation.
func (f *ManualFeed) LatestRoundData() (RoundData, error) {
	if f == nil {
		return RoundData{}, fmt.Errorf("sale: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data.Answer == nil {
		return RoundData{}, fmt.Errorf("sale: manual feed has no observation")
	}
	out := f.data
	out.Answer = new(big.Int).Set(f.data.Answer)
	return out, nil
}

// Decimals returns the feed precision.
func (f *ManualFeed) Decimals() uint8 {
	if f == nil {
		return 0
	}
	return f.decimals
}
