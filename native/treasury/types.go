package treasury

import "math/big"

// WithdrawalRequest tracks a timelocked treasury withdrawal. The lifecycle is
// Queued, then exactly one of Executed or Cancelled; a terminal request is
// never reopened.
type WithdrawalRequest struct {
	ID          [32]byte
	Token       [20]byte
	Amount      *big.Int
	TransferTo  [20]byte
	RequestTime int64
	Expiry      int64
	Executed    bool
	Cancelled   bool
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (w *WithdrawalRequest) Clone() *WithdrawalRequest {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Amount != nil {
		clone.Amount = new(big.Int).Set(w.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Pending reports whether the request is still awaiting execution or
// cancellation.
func (w *WithdrawalRequest) Pending() bool {
	if w == nil {
		return false
	}
	return !w.Executed && !w.Cancelled
}
