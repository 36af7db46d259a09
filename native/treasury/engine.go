package treasury

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"aurum/core/events"
	nativecommon "aurum/native/common"
)

// ModuleName keys the treasury module's pause flag.
const ModuleName = "treasury"

// RoleAdmin gates every treasury operation.
const RoleAdmin = "ROLE_ADMIN"

// DefaultWithdrawalDelay is the mandatory waiting period for queued
// withdrawals.
const DefaultWithdrawalDelay = 24 * time.Hour

var (
	// ErrWithdrawalNotFound is returned for unknown request identifiers.
	ErrWithdrawalNotFound = errors.New("treasury: withdrawal request not found")
	// ErrWithdrawalAlreadyExecuted rejects a second execution attempt.
	ErrWithdrawalAlreadyExecuted = errors.New("treasury: withdrawal already executed")
	// ErrWithdrawalAlreadyCancelled rejects operations on cancelled requests.
	ErrWithdrawalAlreadyCancelled = errors.New("treasury: withdrawal already cancelled")
	// ErrWithdrawalDelayNotMet is returned when execution is attempted before
	// the timelock expiry.
	ErrWithdrawalDelayNotMet = errors.New("treasury: withdrawal delay not met")
	// ErrInvalidAmount rejects zero or negative withdrawal amounts.
	ErrInvalidAmount = errors.New("treasury: amount must be positive")
	// ErrTokenNotAccepted is returned for tokens without an accepted sale
	// configuration.
	ErrTokenNotAccepted = errors.New("treasury: token not accepted")
	// ErrInsufficientTreasury is returned when the treasury balance cannot
	// cover the amount.
	ErrInsufficientTreasury = errors.New("treasury: insufficient balance")
	// ErrUnauthorized is returned when the caller lacks the admin role.
	ErrUnauthorized = errors.New("treasury: caller missing required role")

	errNilState = errors.New("treasury engine: state not configured")
)

type engineState interface {
	WithdrawalPut(*WithdrawalRequest) error
	WithdrawalGet(id [32]byte) (*WithdrawalRequest, bool, error)
	TokenAccepted(token [20]byte) (bool, error)
	BalanceOf(token [20]byte, addr [20]byte) (*big.Int, error)
	Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
	RunAtomic(fn func() error) error
}

// Engine owns the timelocked withdrawal queue. Proceeds only leave the
// treasury account through this engine: small amounts transfer to the safe
// wallet immediately, larger ones wait out the configured delay.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	guard   nativecommon.ReentrancyGuard

	treasury   [20]byte
	safeWallet [20]byte
	threshold  *big.Int
	delay      time.Duration

	nowFn func() int64
}

// NewEngine creates a treasury engine with a no-op emitter and the default
// withdrawal delay. Callers wire state, addresses and threshold before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		delay:   DefaultWithdrawalDelay,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the pause view consulted by every mutating entry
// point.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetTreasury configures the source account holding settled proceeds.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetSafeWallet configures the recipient of executed and immediate
// withdrawals.
func (e *Engine) SetSafeWallet(addr [20]byte) { e.safeWallet = addr }

// SetThreshold configures the amount at or above which withdrawals must wait
// out the timelock.
func (e *Engine) SetThreshold(v *big.Int) {
	if v != nil && v.Sign() > 0 {
		e.threshold = new(big.Int).Set(v)
	}
}

// SetDelay overrides the withdrawal timelock duration.
func (e *Engine) SetDelay(d time.Duration) {
	if d > 0 {
		e.delay = d
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, RoleAdmin)
	}
	return nil
}

// RequestID derives the deterministic identifier for a withdrawal request.
// Binding the caller prevents id collisions across distinct requests queued
// in the same instant by different admins.
func RequestID(token [20]byte, amount *big.Int, requestTime int64, caller [20]byte) [32]byte {
	amt := amount
	if amt == nil {
		amt = big.NewInt(0)
	}
	ts := new(big.Int).SetInt64(requestTime)
	digest := ethcrypto.Keccak256(token[:], amt.Bytes(), ts.Bytes(), caller[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}

// QueueWithdrawal moves treasury funds toward the safe wallet. Amounts below
// the threshold transfer immediately; anything else becomes a timelocked
// request executable once the delay has elapsed. Requires the admin role.
func (e *Engine) QueueWithdrawal(caller, token [20]byte, amount *big.Int) (*WithdrawalRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	accepted, err := e.state.TokenAccepted(token)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, ErrTokenNotAccepted
	}
	balance, err := e.state.BalanceOf(token, e.treasury)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s want %s", ErrInsufficientTreasury, balance, amount)
	}

	if e.threshold != nil && amount.Cmp(e.threshold) < 0 {
		if err := e.state.Transfer(token, e.treasury, e.safeWallet, amount); err != nil {
			return nil, err
		}
		e.emit(events.WithdrawalImmediate{Token: token, Amount: amount, TransferTo: e.safeWallet})
		return nil, nil
	}

	now := e.now()
	request := &WithdrawalRequest{
		ID:          RequestID(token, amount, now, caller),
		Token:       token,
		Amount:      new(big.Int).Set(amount),
		TransferTo:  e.safeWallet,
		RequestTime: now,
		Expiry:      now + int64(e.delay/time.Second),
	}
	if err := e.state.WithdrawalPut(request); err != nil {
		return nil, err
	}
	e.emit(events.WithdrawalQueued{
		ID:          request.ID,
		Token:       request.Token,
		Amount:      request.Amount,
		TransferTo:  request.TransferTo,
		RequestTime: request.RequestTime,
		Expiry:      request.Expiry,
	})
	return request.Clone(), nil
}

// ExecuteWithdrawal pays out a matured request to its stored recipient.
// Requires the admin role.
func (e *Engine) ExecuteWithdrawal(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	request, ok, err := e.state.WithdrawalGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWithdrawalNotFound
	}
	if request.Executed {
		return ErrWithdrawalAlreadyExecuted
	}
	if request.Cancelled {
		return ErrWithdrawalAlreadyCancelled
	}
	now := e.now()
	if now < request.Expiry {
		return fmt.Errorf("%w: executable at %d", ErrWithdrawalDelayNotMet, request.Expiry)
	}
	balance, err := e.state.BalanceOf(request.Token, e.treasury)
	if err != nil {
		return err
	}
	if balance.Cmp(request.Amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientTreasury, balance, request.Amount)
	}
	// The executed flag and the payout stand or fall together.
	request.Executed = true
	err = e.state.RunAtomic(func() error {
		if err := e.state.WithdrawalPut(request); err != nil {
			return err
		}
		return e.state.Transfer(request.Token, e.treasury, request.TransferTo, request.Amount)
	})
	if err != nil {
		return err
	}
	e.emit(events.WithdrawalExecuted{
		ID:         request.ID,
		Token:      request.Token,
		Amount:     request.Amount,
		TransferTo: request.TransferTo,
	})
	return nil
}

// CancelWithdrawal invalidates a still-pending request. Cancellation is
// accepted both before and after the timelock expiry; only execution closes
// that window. Requires the admin role.
func (e *Engine) CancelWithdrawal(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	request, ok, err := e.state.WithdrawalGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWithdrawalNotFound
	}
	if request.Executed {
		return ErrWithdrawalAlreadyExecuted
	}
	if request.Cancelled {
		return ErrWithdrawalAlreadyCancelled
	}
	request.Cancelled = true
	if err := e.state.WithdrawalPut(request); err != nil {
		return err
	}
	e.emit(events.WithdrawalCancelled{ID: request.ID})
	return nil
}

// Withdrawal returns a copy of the stored request.
func (e *Engine) Withdrawal(id [32]byte) (*WithdrawalRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	request, ok, err := e.state.WithdrawalGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	return request.Clone(), nil
}

// TreasuryBalance reports the treasury holdings in the given token.
func (e *Engine) TreasuryBalance(token [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BalanceOf(token, e.treasury)
}
