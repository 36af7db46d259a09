package events

import (
	"math/big"
	"strconv"

	"aurum/core/types"
)

const (
	// TypeWithdrawalQueued is emitted when a timelocked withdrawal request is
	// created.
	TypeWithdrawalQueued = "treasury.withdrawal.queued"
	// TypeWithdrawalExecuted is emitted when a matured request pays out.
	TypeWithdrawalExecuted = "treasury.withdrawal.executed"
	// TypeWithdrawalCancelled is emitted when a pending request is invalidated.
	TypeWithdrawalCancelled = "treasury.withdrawal.cancelled"
	// TypeWithdrawalImmediate is emitted for below-threshold transfers that
	// bypass the queue.
	TypeWithdrawalImmediate = "treasury.withdrawal.immediate"
)

// WithdrawalQueued carries the parameters of a newly queued withdrawal.
type WithdrawalQueued struct {
	ID          [32]byte
	Token       [20]byte
	Amount      *big.Int
	TransferTo  [20]byte
	RequestTime int64
	Expiry      int64
}

func (WithdrawalQueued) EventType() string { return TypeWithdrawalQueued }

func (e WithdrawalQueued) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalQueued,
		Attributes: map[string]string{
			"id":          RenderID(e.ID),
			"token":       renderAddress(e.Token),
			"amount":      renderAmount(e.Amount),
			"transferTo":  renderAddress(e.TransferTo),
			"requestTime": strconv.FormatInt(e.RequestTime, 10),
			"expiry":      strconv.FormatInt(e.Expiry, 10),
		},
	}
}

// WithdrawalExecuted records a matured request paying out to its recipient.
type WithdrawalExecuted struct {
	ID         [32]byte
	Token      [20]byte
	Amount     *big.Int
	TransferTo [20]byte
}

func (WithdrawalExecuted) EventType() string { return TypeWithdrawalExecuted }

func (e WithdrawalExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalExecuted,
		Attributes: map[string]string{
			"id":         RenderID(e.ID),
			"token":      renderAddress(e.Token),
			"amount":     renderAmount(e.Amount),
			"transferTo": renderAddress(e.TransferTo),
		},
	}
}

// WithdrawalCancelled records the invalidation of a pending request.
type WithdrawalCancelled struct {
	ID [32]byte
}

func (WithdrawalCancelled) EventType() string { return TypeWithdrawalCancelled }

func (e WithdrawalCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalCancelled,
		Attributes: map[string]string{
			"id": RenderID(e.ID),
		},
	}
}

// WithdrawalImmediate records a below-threshold transfer that settled in one
// step without entering the queue.
type WithdrawalImmediate struct {
	Token      [20]byte
	Amount     *big.Int
	TransferTo [20]byte
}

func (WithdrawalImmediate) EventType() string { return TypeWithdrawalImmediate }

func (e WithdrawalImmediate) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalImmediate,
		Attributes: map[string]string{
			"token":      renderAddress(e.Token),
			"amount":     renderAmount(e.Amount),
			"transferTo": renderAddress(e.TransferTo),
		},
	}
}
