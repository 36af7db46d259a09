package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaGPTCapExceeded   = errors.New("quota gpt cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	GPTUsed  uint64
	EpochID  uint64
}

// Quota defines the per-address limits enforced on purchase submissions.
// A zero limit disables the corresponding check.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxGPTPerEpoch      uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxGPTPerEpoch > 0
}

// EpochFor maps a unix timestamp onto the quota epoch it falls in.
func (q Quota) EpochFor(now int64) uint64 {
	if q.EpochSeconds == 0 || now < 0 {
		return 0
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and GPT usage fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on denial the previous counters are returned
// unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addGPT uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addGPT > 0 {
		if next.GPTUsed > math.MaxUint64-addGPT {
			return prev, ErrQuotaCounterOverflow
		}
		next.GPTUsed += addGPT
	}
	if q.MaxGPTPerEpoch > 0 && next.GPTUsed > q.MaxGPTPerEpoch {
		return prev, ErrQuotaGPTCapExceeded
	}

	return next, nil
}
