package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10, EpochSeconds: 60}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("counters not reset on rollover: %+v", rollover)
	}
}

func TestCheckQuotaGPTCap(t *testing.T) {
	q := Quota{MaxGPTPerEpoch: 1_000_000, EpochSeconds: 60}

	next, err := CheckQuota(q, 7, QuotaNow{EpochID: 7}, 1, 600_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.GPTUsed != 600_000 {
		t.Fatalf("unexpected gpt usage: %d", next.GPTUsed)
	}

	if _, err := CheckQuota(q, 7, next, 1, 500_000); !errors.Is(err, ErrQuotaGPTCapExceeded) {
		t.Fatalf("expected ErrQuotaGPTCapExceeded, got %v", err)
	}

	exact, err := CheckQuota(q, 7, next, 1, 400_000)
	if err != nil {
		t.Fatalf("filling the cap exactly should pass: %v", err)
	}
	if exact.GPTUsed != 1_000_000 {
		t.Fatalf("unexpected gpt usage at cap: %d", exact.GPTUsed)
	}
}

func TestCheckQuotaCounterOverflow(t *testing.T) {
	q := Quota{MaxGPTPerEpoch: 0, EpochSeconds: 60}
	prev := QuotaNow{EpochID: 3, GPTUsed: math.MaxUint64}

	if _, err := CheckQuota(q, 3, prev, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestQuotaEpochFor(t *testing.T) {
	q := Quota{EpochSeconds: 60}
	if got := q.EpochFor(119); got != 1 {
		t.Fatalf("unexpected epoch: %d", got)
	}
	if got := q.EpochFor(120); got != 2 {
		t.Fatalf("unexpected epoch: %d", got)
	}
	if got := (Quota{}).EpochFor(120); got != 0 {
		t.Fatalf("expected zero epoch when disabled, got %d", got)
	}
}
