package sale

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func scaled(units int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), pow10(decimals))
}

func TestPaymentAmountForGoldPeg(t *testing.T) {
	// Gold at $2000/oz (8 feed decimals), USDC at $1 (8 feed decimals),
	// 5000 GPT at 6 decimals, 10,000 GPT per troy ounce: the buyer owes
	// exactly 1000 USDC at 6 decimals.
	amount, err := PaymentAmountFor(
		scaled(2000, 8), 8,
		scaled(1, 8), 8,
		scaled(5000, 6), 6,
		scaled(10_000, 6),
	)
	if err != nil {
		t.Fatalf("payment amount: %v", err)
	}
	if want := scaled(1000, 6); amount.Cmp(want) != 0 {
		t.Fatalf("unexpected payment amount: got %s want %s", amount, want)
	}
}

func TestPaymentAmountForMixedFeedDecimals(t *testing.T) {
	// Same quote with the token feed at 18 decimals still yields 1000 USDC.
	amount, err := PaymentAmountFor(
		scaled(2000, 8), 8,
		scaled(1, 18), 18,
		scaled(5000, 6), 6,
		scaled(10_000, 6),
	)
	if err != nil {
		t.Fatalf("payment amount: %v", err)
	}
	if want := scaled(1000, 6); amount.Cmp(want) != 0 {
		t.Fatalf("unexpected payment amount: got %s want %s", amount, want)
	}
}

func TestPaymentAmountTruncatesTowardZero(t *testing.T) {
	// 1 base unit of GPT at $2000/oz is 0.2 micro-USDC; the canonical
	// rounding policy floors it to zero.
	amount, err := PaymentAmountFor(
		scaled(2000, 8), 8,
		scaled(1, 8), 8,
		big.NewInt(1), 6,
		scaled(10_000, 6),
	)
	if err != nil {
		t.Fatalf("payment amount: %v", err)
	}
	if amount.Sign() != 0 {
		t.Fatalf("expected floored zero, got %s", amount)
	}
}

func TestPaymentAmountForZeroAmount(t *testing.T) {
	_, err := PaymentAmountFor(scaled(2000, 8), 8, scaled(1, 8), 8, big.NewInt(0), 6, scaled(10_000, 6))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGPTAmountForInverse(t *testing.T) {
	// 1000 USDC buys 5000 GPT at the same quote.
	amount, err := GPTAmountFor(
		scaled(2000, 8), 8,
		scaled(1, 8), 8,
		scaled(1000, 6), 6,
		scaled(10_000, 6),
	)
	if err != nil {
		t.Fatalf("gpt amount: %v", err)
	}
	if want := scaled(5000, 6); amount.Cmp(want) != 0 {
		t.Fatalf("unexpected gpt amount: got %s want %s", amount, want)
	}
}

func TestResolverRejectsStalePrice(t *testing.T) {
	feed := NewManualFeed(8)
	now := time.Now().Unix()
	feed.Set(scaled(2000, 8), now-2*3600)

	resolver := NewResolver(time.Hour)
	if _, _, err := resolver.GetLatestPrice(feed); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	feed.Set(scaled(2000, 8), now-60)
	price, updatedAt, err := resolver.GetLatestPrice(feed)
	if err != nil {
		t.Fatalf("get latest price: %v", err)
	}
	if price.Cmp(scaled(2000, 8)) != 0 {
		t.Fatalf("unexpected price: %s", price)
	}
	if updatedAt != now-60 {
		t.Fatalf("unexpected updatedAt: %d", updatedAt)
	}
}

func TestResolverRejectsInvalidPrice(t *testing.T) {
	feed := NewManualFeed(8)
	feed.Set(big.NewInt(1), time.Now().Unix())
	feed.mu.Lock()
	feed.data.Answer = big.NewInt(-1)
	feed.mu.Unlock()

	resolver := NewResolver(time.Hour)
	if _, _, err := resolver.GetLatestPrice(feed); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestManualFeedBumpsRound(t *testing.T) {
	feed := NewManualFeed(8)
	feed.Set(scaled(2000, 8), 100)
	feed.Set(scaled(2010, 8), 200)
	data, err := feed.LatestRoundData()
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if data.RoundID != 2 || data.AnsweredInRound != 2 {
		t.Fatalf("unexpected round ids: %+v", data)
	}
	if data.UpdatedAt != 200 {
		t.Fatalf("unexpected timestamp: %d", data.UpdatedAt)
	}
}
