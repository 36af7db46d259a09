package sale

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"aurum/core/events"
	nativecommon "aurum/native/common"
)

// ModuleName keys the sale module's pause flag.
const ModuleName = "sale"

// Role identifiers gating the mutating operations.
const (
	RoleAdmin        = "ROLE_ADMIN"
	RoleSalesManager = "ROLE_SALES_MANAGER"
)

// DefaultTokensPerTroyOunce fixes the gold peg at 10,000 pegged-token units
// (at six decimals) per troy ounce.
var DefaultTokensPerTroyOunce = big.NewInt(10_000_000_000)

var (
	errNilState   = errors.New("sale engine: state not configured")
	errNilAuth    = errors.New("sale engine: authorizer not configured")
	errNoRelayer  = errors.New("sale engine: relayer signer not configured")
	errNoGoldFeed = errors.New("sale engine: gold price feed not configured")
)

type engineState interface {
	RoundPut(*Round) error
	RoundGet(id uint64) (*Round, bool, error)
	RoundCount() (uint64, error)
	SetRoundCount(count uint64) error
	NonceGet(addr [20]byte) (uint64, error)
	NoncePut(addr [20]byte, value uint64) error
	WhitelistSet(addr [20]byte, allowed bool) error
	IsWhitelisted(addr [20]byte) (bool, error)
	TokenConfigPut(token [20]byte, cfg *TokenConfig) error
	TokenConfigGet(token [20]byte) (*TokenConfig, bool, error)
	TokenConfigRemove(token [20]byte) error
	RelayerGet() ([20]byte, bool, error)
	RelayerPut(addr [20]byte) error
	BalanceOf(token [20]byte, addr [20]byte) (*big.Int, error)
	Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error
	Mint(token [20]byte, to [20]byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
	SetPaused(module string, paused bool) error
	RunAtomic(fn func() error) error
}

// Engine wires the sale business logic (round lifecycle, order authorization
// and purchase settlement) with external state, price feeds and event
// emitters.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	guard    nativecommon.ReentrancyGuard
	auth     *Authorizer
	resolver *Resolver

	feeds       map[string]PriceFeed
	goldFeedRef string

	gptToken    [20]byte
	treasury    [20]byte
	perTroyOz   *big.Int
	gptDecimals uint8

	nowFn func() int64
}

// NewEngine creates a sale engine with a no-op emitter. Callers wire state,
// authorizer and feeds before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		resolver:    NewResolver(DefaultMaxPriceAge),
		feeds:       make(map[string]PriceFeed),
		perTroyOz:   new(big.Int).Set(DefaultTokensPerTroyOunce),
		gptDecimals: 6,
		nowFn:       func() int64 { return time.Now().Unix() },
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

// SetAuthorizer configures the typed-data authorizer used for signature
// verification.
func (e *Engine) SetAuthorizer(auth *Authorizer) { e.auth = auth }

// SetResolver overrides the price resolver (freshness bound lives there).
func (e *Engine) SetResolver(resolver *Resolver) {
	if resolver != nil {
		e.resolver = resolver
	}
}

// SetTreasury configures the address that receives settled payments.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetGPTToken configures the pegged-token identity minted on settlement.
func (e *Engine) SetGPTToken(addr [20]byte) { e.gptToken = addr }

// SetTokensPerTroyOunce overrides the fixed peg conversion constant.
func (e *Engine) SetTokensPerTroyOunce(v *big.Int) {
	if v != nil && v.Sign() > 0 {
		e.perTroyOz = new(big.Int).Set(v)
	}
}

// RegisterFeed adds or replaces a price feed under the supplied reference.
// Token configurations point at feeds by this reference.
func (e *Engine) RegisterFeed(ref string, feed PriceFeed) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || feed == nil {
		return
	}
	e.feeds[trimmed] = feed
}

// SetGoldFeedRef names the feed consulted for the gold price.
func (e *Engine) SetGoldFeedRef(ref string) { e.goldFeedRef = strings.TrimSpace(ref) }

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
	if e.resolver != nil {
		e.resolver.SetNowFunc(now)
	}
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

func (e *Engine) requireRole(role string, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	if !e.state.HasRole(role, caller[:]) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, role)
	}
	return nil
}

// --- Round lifecycle ---

// CreateRound registers a new round in the inactive pre-marketing stage and
// assigns the next round id. Requires the sales-manager role.
func (e *Engine) CreateRound(caller [20]byte, maxTokens *big.Int, startTime, endTime int64) (*Round, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if err := e.requireRole(RoleSalesManager, caller); err != nil {
		return nil, err
	}
	if maxTokens == nil || maxTokens.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if startTime >= endTime {
		return nil, ErrInvalidTimeRange
	}
	count, err := e.state.RoundCount()
	if err != nil {
		return nil, err
	}
	round := &Round{
		ID:         count + 1,
		MaxTokens:  new(big.Int).Set(maxTokens),
		TokensSold: big.NewInt(0),
		StartTime:  startTime,
		EndTime:    endTime,
		Stage:      StagePreMarketing,
	}
	if err := e.state.RoundPut(round); err != nil {
		return nil, err
	}
	if err := e.state.SetRoundCount(round.ID); err != nil {
		return nil, err
	}
	e.emit(events.RoundCreated{
		RoundID:   round.ID,
		MaxTokens: round.MaxTokens,
		StartTime: round.StartTime,
		EndTime:   round.EndTime,
	})
	return round.Clone(), nil
}

// SetStage transitions a round to the requested stage. Active stages require
// the current time to fall inside the round window; the window is checked
// again at purchase time. Requires the sales-manager role.
func (e *Engine) SetStage(caller [20]byte, roundID uint64, stage Stage) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := e.requireRole(RoleSalesManager, caller); err != nil {
		return err
	}
	if !stage.Valid() {
		return fmt.Errorf("sale: invalid stage %d", stage)
	}
	round, ok, err := e.state.RoundGet(roundID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
	}
	if round.Stage == StageSaleEnded {
		return ErrSaleEnded
	}
	if round.Stage == stage {
		return ErrStageUnchanged
	}
	now := e.now()
	if stage != StageSaleEnded {
		if now < round.StartTime {
			return ErrRoundNotStarted
		}
		if now > round.EndTime {
			return ErrRoundAlreadyEnded
		}
	}
	previous := round.Stage
	round.Stage = stage
	if err := e.state.RoundPut(round); err != nil {
		return err
	}
	e.emit(events.StageChanged{RoundID: round.ID, From: previous.String(), To: stage.String()})
	if stage.Active() && !previous.Active() {
		e.emit(events.RoundActivated{RoundID: round.ID, Stage: stage.String()})
	}
	if !stage.Active() && previous.Active() {
		e.emit(events.RoundDeactivated{RoundID: round.ID})
	}
	return nil
}

// ActivateRound advances the round one step along the canonical stage order:
// pre-marketing to presale, presale to public sale. Requires the
// sales-manager role.
func (e *Engine) ActivateRound(caller [20]byte, roundID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	round, ok, err := e.state.RoundGet(roundID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
	}
	var next Stage
	switch round.Stage {
	case StagePreMarketing:
		next = StagePreSale
	case StagePreSale:
		next = StagePublicSale
	case StageSaleEnded:
		return ErrSaleEnded
	default:
		return fmt.Errorf("sale: round %d already in its final active stage", roundID)
	}
	return e.SetStage(caller, roundID, next)
}

// DeactivateRound reverts an active round to the inactive pre-marketing
// stage. Requires the sales-manager role.
func (e *Engine) DeactivateRound(caller [20]byte, roundID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if err := e.requireRole(RoleSalesManager, caller); err != nil {
		return err
	}
	round, ok, err := e.state.RoundGet(roundID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
	}
	if !round.Stage.Active() {
		return ErrRoundNotActive
	}
	previous := round.Stage
	round.Stage = StagePreMarketing
	if err := e.state.RoundPut(round); err != nil {
		return err
	}
	e.emit(events.StageChanged{RoundID: round.ID, From: previous.String(), To: StagePreMarketing.String()})
	e.emit(events.RoundDeactivated{RoundID: round.ID})
	return nil
}

// Round returns a copy of the stored round.
func (e *Engine) Round(roundID uint64) (*Round, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	round, ok, err := e.state.RoundGet(roundID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
	}
	return round.Clone(), nil
}

// RoundCount returns the number of rounds created so far.
func (e *Engine) RoundCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RoundCount()
}

// --- Admin operations ---

// SetWhitelisted grants or revokes presale access for the address. Requires
// the sales-manager role.
func (e *Engine) SetWhitelisted(caller, account [20]byte, allowed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(RoleSalesManager, caller); err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.state.WhitelistSet(account, allowed); err != nil {
		return err
	}
	e.emit(events.WhitelistUpdated{Account: account, Allowed: allowed})
	return nil
}

// SetPaymentToken registers or updates an accepted payment token. The config
// decimals must match the token's actual precision. Requires the admin role.
func (e *Engine) SetPaymentToken(caller, token [20]byte, cfg TokenConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if token == ([20]byte{}) {
		return ErrZeroAddress
	}
	feedRef := strings.TrimSpace(cfg.FeedRef)
	if feedRef == "" {
		return fmt.Errorf("sale: feed reference required")
	}
	stored := TokenConfig{Accepted: cfg.Accepted, FeedRef: feedRef, Decimals: cfg.Decimals}
	if err := e.state.TokenConfigPut(token, &stored); err != nil {
		return err
	}
	e.emit(events.PaymentTokenUpdated{Token: token, Accepted: stored.Accepted, FeedRef: stored.FeedRef, Decimals: stored.Decimals})
	return nil
}

// RemovePaymentToken deletes the token configuration; the token reads as not
// accepted afterwards. Requires the admin role.
func (e *Engine) RemovePaymentToken(caller, token [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if err := e.state.TokenConfigRemove(token); err != nil {
		return err
	}
	e.emit(events.PaymentTokenUpdated{Token: token, Accepted: false})
	return nil
}

// SetRelayer rotates the trusted co-signer. Requires the admin role.
func (e *Engine) SetRelayer(caller, relayer [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if relayer == ([20]byte{}) {
		return ErrZeroAddress
	}
	previous, _, err := e.state.RelayerGet()
	if err != nil {
		return err
	}
	if err := e.state.RelayerPut(relayer); err != nil {
		return err
	}
	e.emit(events.RelayerUpdated{Previous: previous, Current: relayer})
	return nil
}

// Pause sets the module pause flag; every mutating entry point rejects while
// it is set. Requires the admin role.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause clears the module pause flag. Requires the admin role.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if err := e.state.SetPaused(ModuleName, paused); err != nil {
		return err
	}
	e.emit(events.SalePaused{Module: ModuleName, Paused: paused})
	return nil
}

// Nonce returns the buyer's current replay counter.
func (e *Engine) Nonce(addr [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.NonceGet(addr)
}

// IsWhitelisted reports presale eligibility for the address.
func (e *Engine) IsWhitelisted(addr [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.IsWhitelisted(addr)
}

// Relayer returns the configured trusted co-signer.
func (e *Engine) Relayer() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	relayer, ok, err := e.state.RelayerGet()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, errNoRelayer
	}
	return relayer, nil
}

// --- Purchase settlement ---

// Receipt reports the amounts moved by a settled purchase.
type Receipt struct {
	RoundID       uint64
	Buyer         [20]byte
	GPTAmount     *big.Int
	PaymentToken  [20]byte
	PaymentAmount *big.Int
	Nonce         uint64
}

// PurchasePresale settles a whitelisted self-service purchase. The caller
// must be the order's buyer and the round must be in the presale stage.
func (e *Engine) PurchasePresale(caller [20]byte, order *Order) (*Receipt, error) {
	return e.purchase(caller, order, StagePreSale)
}

// PurchasePublic settles a relayer-submitted public-sale purchase. The order
// must not be expired and the round must be in the public stage.
func (e *Engine) PurchasePublic(caller [20]byte, order *Order) (*Receipt, error) {
	return e.purchase(caller, order, StagePublicSale)
}

// purchase runs the shared settlement core. Preconditions are evaluated in a
// fixed order; the first failure wins and leaves all state untouched.
func (e *Engine) purchase(caller [20]byte, order *Order, path Stage) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.auth == nil {
		return nil, errNilAuth
	}
	if order == nil {
		return nil, fmt.Errorf("sale: order required")
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}

	round, ok, err := e.state.RoundGet(order.RoundID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, order.RoundID)
	}

	now := e.now()
	nonce, err := e.state.NonceGet(order.Buyer)
	if err != nil {
		return nil, err
	}
	switch path {
	case StagePreSale:
		if caller != order.Buyer {
			return nil, ErrCallerNotBuyer
		}
		listed, err := e.state.IsWhitelisted(order.Buyer)
		if err != nil {
			return nil, err
		}
		if !listed {
			return nil, ErrNotWhitelisted
		}
	case StagePublicSale:
		if now > order.Expiry {
			return nil, fmt.Errorf("%w: expired at %d", ErrOrderExpired, order.Expiry)
		}
	default:
		return nil, fmt.Errorf("sale: unsupported purchase path %s", path)
	}
	if order.Nonce != nonce {
		return nil, fmt.Errorf("%w: have %d want %d", ErrNonceMismatch, order.Nonce, nonce)
	}
	if round.Stage != path {
		return nil, fmt.Errorf("%w: round in stage %s", ErrWrongStage, round.Stage)
	}

	// Bound the amount before any digest is derived: every signed word must
	// fit uint256.
	if order.GPTAmount == nil || order.GPTAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if order.GPTAmount.BitLen() > 256 {
		return nil, fmt.Errorf("%w: exceeds uint256", ErrInvalidAmount)
	}

	if err := e.auth.VerifyUserSignature(order); err != nil {
		return nil, err
	}
	relayer, err := e.Relayer()
	if err != nil {
		return nil, err
	}
	if err := e.auth.VerifyRelayerSignature(order, relayer); err != nil {
		return nil, err
	}

	cfg, ok, err := e.state.TokenConfigGet(order.PaymentToken)
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Accepted {
		return nil, ErrTokenNotAccepted
	}

	if !round.Stage.Active() {
		return nil, ErrRoundNotActive
	}
	if now > round.EndTime {
		return nil, ErrRoundAlreadyEnded
	}

	sold := round.TokensSold
	if sold == nil {
		sold = big.NewInt(0)
	}
	newSold := new(big.Int).Add(sold, order.GPTAmount)
	if newSold.Cmp(round.MaxTokens) > 0 {
		return nil, fmt.Errorf("%w: sold %s of %s", ErrExceedMaxAllocation, sold, round.MaxTokens)
	}

	paymentAmount, err := e.quotePayment(cfg, order.GPTAmount)
	if err != nil {
		return nil, err
	}

	balance, err := e.state.BalanceOf(order.PaymentToken, order.Buyer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(paymentAmount) < 0 {
		return nil, fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, balance, paymentAmount)
	}

	// Effects. Staged and committed as one unit; any failure discards every
	// write before observers see a purchase event.
	round.TokensSold = newSold
	err = e.state.RunAtomic(func() error {
		if err := e.state.RoundPut(round); err != nil {
			return err
		}
		if err := e.state.Transfer(order.PaymentToken, order.Buyer, e.treasury, paymentAmount); err != nil {
			return err
		}
		if err := e.state.Mint(e.gptToken, order.Buyer, order.GPTAmount); err != nil {
			return err
		}
		return e.state.NoncePut(order.Buyer, nonce+1)
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		RoundID:       round.ID,
		Buyer:         order.Buyer,
		GPTAmount:     new(big.Int).Set(order.GPTAmount),
		PaymentToken:  order.PaymentToken,
		PaymentAmount: paymentAmount,
		Nonce:         nonce + 1,
	}
	e.emit(events.PurchaseCompleted{
		RoundID:       receipt.RoundID,
		Buyer:         receipt.Buyer,
		GPTAmount:     receipt.GPTAmount,
		PaymentToken:  receipt.PaymentToken,
		PaymentAmount: receipt.PaymentAmount,
		Nonce:         receipt.Nonce,
	})
	return receipt, nil
}

// quotePayment resolves both feeds and converts the pegged amount into the
// payment token's native precision.
func (e *Engine) quotePayment(cfg *TokenConfig, gptAmount *big.Int) (*big.Int, error) {
	goldFeed, ok := e.feeds[e.goldFeedRef]
	if !ok || goldFeed == nil {
		return nil, errNoGoldFeed
	}
	tokenFeed, ok := e.feeds[cfg.FeedRef]
	if !ok || tokenFeed == nil {
		return nil, fmt.Errorf("sale: price feed %q not registered", cfg.FeedRef)
	}
	goldPrice, _, err := e.resolver.GetLatestPrice(goldFeed)
	if err != nil {
		return nil, err
	}
	tokenPrice, _, err := e.resolver.GetLatestPrice(tokenFeed)
	if err != nil {
		return nil, err
	}
	return PaymentAmountFor(goldPrice, goldFeed.Decimals(), tokenPrice, tokenFeed.Decimals(), gptAmount, cfg.Decimals, e.perTroyOz)
}

// QuotePayment prices an order amount against the current feeds without
// settling anything. Used by the RPC quote endpoint.
func (e *Engine) QuotePayment(token [20]byte, gptAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.TokenConfigGet(token)
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Accepted {
		return nil, ErrTokenNotAccepted
	}
	return e.quotePayment(cfg, gptAmount)
}
