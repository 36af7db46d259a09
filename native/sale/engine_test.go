package sale

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"aurum/core/events"
)

type mockState struct {
	rounds     map[uint64]*Round
	roundCount uint64
	nonces     map[[20]byte]uint64
	whitelist  map[[20]byte]bool
	tokens     map[[20]byte]*TokenConfig
	relayer    [20]byte
	relayerSet bool
	balances   map[[20]byte]map[[20]byte]*big.Int
	supplies   map[[20]byte]*big.Int
	roles      map[string]map[[20]byte]bool
	paused     map[string]bool
	mintErr    error
}

func newMockState() *mockState {
	return &mockState{
		rounds:    make(map[uint64]*Round),
		nonces:    make(map[[20]byte]uint64),
		whitelist: make(map[[20]byte]bool),
		tokens:    make(map[[20]byte]*TokenConfig),
		balances:  make(map[[20]byte]map[[20]byte]*big.Int),
		supplies:  make(map[[20]byte]*big.Int),
		roles:     make(map[string]map[[20]byte]bool),
		paused:    make(map[string]bool),
	}
}

func (m *mockState) RoundPut(round *Round) error {
	m.rounds[round.ID] = round.Clone()
	return nil
}

func (m *mockState) RoundGet(id uint64) (*Round, bool, error) {
	round, ok := m.rounds[id]
	if !ok {
		return nil, false, nil
	}
	return round.Clone(), true, nil
}

func (m *mockState) RoundCount() (uint64, error) { return m.roundCount, nil }

func (m *mockState) SetRoundCount(count uint64) error {
	m.roundCount = count
	return nil
}

func (m *mockState) NonceGet(addr [20]byte) (uint64, error) { return m.nonces[addr], nil }

func (m *mockState) NoncePut(addr [20]byte, value uint64) error {
	m.nonces[addr] = value
	return nil
}

func (m *mockState) WhitelistSet(addr [20]byte, allowed bool) error {
	if !allowed {
		delete(m.whitelist, addr)
		return nil
	}
	m.whitelist[addr] = true
	return nil
}

func (m *mockState) IsWhitelisted(addr [20]byte) (bool, error) { return m.whitelist[addr], nil }

func (m *mockState) TokenConfigPut(token [20]byte, cfg *TokenConfig) error {
	clone := *cfg
	m.tokens[token] = &clone
	return nil
}

func (m *mockState) TokenConfigGet(token [20]byte) (*TokenConfig, bool, error) {
	cfg, ok := m.tokens[token]
	if !ok {
		return nil, false, nil
	}
	clone := *cfg
	return &clone, true, nil
}

func (m *mockState) TokenConfigRemove(token [20]byte) error {
	delete(m.tokens, token)
	return nil
}

func (m *mockState) RelayerGet() ([20]byte, bool, error) {
	return m.relayer, m.relayerSet, nil
}

func (m *mockState) RelayerPut(addr [20]byte) error {
	m.relayer = addr
	m.relayerSet = true
	return nil
}

func (m *mockState) balance(token, addr [20]byte) *big.Int {
	bucket, ok := m.balances[token]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := bucket[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (m *mockState) setBalance(token, addr [20]byte, amount *big.Int) {
	bucket, ok := m.balances[token]
	if !ok {
		bucket = make(map[[20]byte]*big.Int)
		m.balances[token] = bucket
	}
	bucket[addr] = new(big.Int).Set(amount)
}

func (m *mockState) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	return m.balance(token, addr), nil
}

func (m *mockState) Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error {
	fromBal := m.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("mock: insufficient balance")
	}
	m.setBalance(token, from, new(big.Int).Sub(fromBal, amount))
	m.setBalance(token, to, new(big.Int).Add(m.balance(token, to), amount))
	return nil
}

func (m *mockState) Mint(token [20]byte, to [20]byte, amount *big.Int) error {
	if m.mintErr != nil {
		return m.mintErr
	}
	m.setBalance(token, to, new(big.Int).Add(m.balance(token, to), amount))
	supply, ok := m.supplies[token]
	if !ok {
		supply = big.NewInt(0)
	}
	m.supplies[token] = new(big.Int).Add(supply, amount)
	return nil
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	members, ok := m.roles[role]
	if !ok {
		return false
	}
	var key [20]byte
	copy(key[:], addr)
	return members[key]
}

func (m *mockState) grantRole(role string, addr [20]byte) {
	members, ok := m.roles[role]
	if !ok {
		members = make(map[[20]byte]bool)
		m.roles[role] = members
	}
	members[addr] = true
}

func (m *mockState) SetPaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

// RunAtomic snapshots the mutable maps, runs fn, and restores the
// snapshot when fn fails so tests observe the same all-or-nothing
// behaviour the real state manager provides.
func (m *mockState) RunAtomic(fn func() error) error {
	rounds := make(map[uint64]*Round, len(m.rounds))
	for id, round := range m.rounds {
		rounds[id] = round.Clone()
	}
	nonces := make(map[[20]byte]uint64, len(m.nonces))
	for addr, nonce := range m.nonces {
		nonces[addr] = nonce
	}
	balances := make(map[[20]byte]map[[20]byte]*big.Int, len(m.balances))
	for token, bucket := range m.balances {
		copied := make(map[[20]byte]*big.Int, len(bucket))
		for addr, bal := range bucket {
			copied[addr] = new(big.Int).Set(bal)
		}
		balances[token] = copied
	}
	supplies := make(map[[20]byte]*big.Int, len(m.supplies))
	for token, supply := range m.supplies {
		supplies[token] = new(big.Int).Set(supply)
	}
	if err := fn(); err != nil {
		m.rounds = rounds
		m.nonces = nonces
		m.balances = balances
		m.supplies = supplies
		return err
	}
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) last() events.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type testEnv struct {
	engine     *Engine
	state      *mockState
	emitter    *captureEmitter
	auth       *Authorizer
	buyerKey   *ecdsa.PrivateKey
	relayerKey *ecdsa.PrivateKey
	buyer      [20]byte
	manager    [20]byte
	admin      [20]byte
	usdc       [20]byte
	gpt        [20]byte
	treasury   [20]byte
	goldFeed   *ManualFeed
	usdcFeed   *ManualFeed
	now        int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:      newMockState(),
		emitter:    &captureEmitter{},
		buyerKey:   testKey(t),
		relayerKey: testKey(t),
		manager:    [20]byte{0x10},
		admin:      [20]byte{0x11},
		usdc:       [20]byte{0x20},
		gpt:        [20]byte{0x21},
		treasury:   [20]byte{0x30},
		now:        1_700_000_000,
	}
	env.buyer = keyAddress(env.buyerKey)
	env.state.grantRole(RoleSalesManager, env.manager)
	env.state.grantRole(RoleAdmin, env.admin)
	if err := env.state.RelayerPut(keyAddress(env.relayerKey)); err != nil {
		t.Fatalf("set relayer: %v", err)
	}

	env.auth = NewAuthorizer(1, [20]byte{0x01})
	env.goldFeed = NewManualFeed(8)
	env.usdcFeed = NewManualFeed(8)
	env.goldFeed.Set(scaled(2000, 8), env.now)
	env.usdcFeed.Set(scaled(1, 8), env.now)

	engine := NewEngine()
	engine.SetState(env.state)
	engine.SetEmitter(env.emitter)
	engine.SetPauses(env.state)
	engine.SetAuthorizer(env.auth)
	engine.SetTreasury(env.treasury)
	engine.SetGPTToken(env.gpt)
	engine.RegisterFeed("XAU/USD", env.goldFeed)
	engine.RegisterFeed("USDC/USD", env.usdcFeed)
	engine.SetGoldFeedRef("XAU/USD")
	engine.SetNowFunc(func() int64 { return env.now })
	env.engine = engine

	if err := engine.SetPaymentToken(env.admin, env.usdc, TokenConfig{Accepted: true, FeedRef: "USDC/USD", Decimals: 6}); err != nil {
		t.Fatalf("set payment token: %v", err)
	}
	env.state.setBalance(env.usdc, env.buyer, scaled(1_000_000, 6))
	return env
}

func (env *testEnv) createActiveRound(t *testing.T, stage Stage) *Round {
	t.Helper()
	round, err := env.engine.CreateRound(env.manager, scaled(100_000, 6), env.now-10, env.now+86_400)
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	if err := env.engine.SetStage(env.manager, round.ID, stage); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	return round
}

func (env *testEnv) signedOrder(t *testing.T, roundID uint64, gptAmount *big.Int) *Order {
	t.Helper()
	nonce, err := env.engine.Nonce(env.buyer)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	order := &Order{
		RoundID:      roundID,
		Buyer:        env.buyer,
		GPTAmount:    new(big.Int).Set(gptAmount),
		Nonce:        nonce,
		Expiry:       env.now + 600,
		PaymentToken: env.usdc,
	}
	userDigest, err := env.auth.OrderDigest(order)
	if err != nil {
		t.Fatalf("order digest: %v", err)
	}
	order.UserSignature = signDigest(t, env.buyerKey, userDigest)
	relayerDigest, err := env.auth.RelayerDigest(order)
	if err != nil {
		t.Fatalf("relayer digest: %v", err)
	}
	order.RelayerSignature = signDigest(t, env.relayerKey, relayerDigest)
	return order
}

func TestCreateRoundValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.CreateRound(env.manager, big.NewInt(0), env.now, env.now+10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := env.engine.CreateRound(env.manager, big.NewInt(1), env.now+10, env.now+10); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
	if _, err := env.engine.CreateRound(env.buyer, big.NewInt(1), env.now, env.now+10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	round, err := env.engine.CreateRound(env.manager, big.NewInt(1), env.now, env.now+10)
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	if round.ID != 1 || round.Stage != StagePreMarketing {
		t.Fatalf("unexpected round: %+v", round)
	}
	second, err := env.engine.CreateRound(env.manager, big.NewInt(1), env.now, env.now+10)
	if err != nil {
		t.Fatalf("create second round: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("expected sequential id, got %d", second.ID)
	}
}

func TestSetStageWindow(t *testing.T) {
	env := newTestEnv(t)
	round, err := env.engine.CreateRound(env.manager, big.NewInt(1), env.now+100, env.now+200)
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	if err := env.engine.SetStage(env.manager, round.ID, StagePublicSale); !errors.Is(err, ErrRoundNotStarted) {
		t.Fatalf("expected ErrRoundNotStarted, got %v", err)
	}
	env.now += 150
	if err := env.engine.SetStage(env.manager, round.ID, StagePublicSale); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	if err := env.engine.SetStage(env.manager, round.ID, StagePublicSale); !errors.Is(err, ErrStageUnchanged) {
		t.Fatalf("expected ErrStageUnchanged, got %v", err)
	}
	env.now += 100
	if err := env.engine.SetStage(env.manager, round.ID, StagePreSale); !errors.Is(err, ErrRoundAlreadyEnded) {
		t.Fatalf("expected ErrRoundAlreadyEnded, got %v", err)
	}
	if err := env.engine.SetStage(env.manager, round.ID, StageSaleEnded); err != nil {
		t.Fatalf("end sale: %v", err)
	}
	if err := env.engine.SetStage(env.manager, round.ID, StagePreSale); !errors.Is(err, ErrSaleEnded) {
		t.Fatalf("expected ErrSaleEnded, got %v", err)
	}
}

func TestPurchasePublicSettles(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(10_000, 6))

	receipt, err := env.engine.PurchasePublic(env.buyer, order)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if want := scaled(2000, 6); receipt.PaymentAmount.Cmp(want) != 0 {
		t.Fatalf("unexpected payment amount: got %s want %s", receipt.PaymentAmount, want)
	}
	if receipt.Nonce != 1 {
		t.Fatalf("unexpected receipt nonce: %d", receipt.Nonce)
	}

	stored, _, err := env.state.RoundGet(round.ID)
	if err != nil {
		t.Fatalf("round get: %v", err)
	}
	if stored.TokensSold.Cmp(scaled(10_000, 6)) != 0 {
		t.Fatalf("unexpected tokens sold: %s", stored.TokensSold)
	}
	if got := env.state.balance(env.usdc, env.treasury); got.Cmp(scaled(2000, 6)) != 0 {
		t.Fatalf("unexpected treasury balance: %s", got)
	}
	if got := env.state.balance(env.gpt, env.buyer); got.Cmp(scaled(10_000, 6)) != 0 {
		t.Fatalf("unexpected gpt balance: %s", got)
	}
	if nonce := env.state.nonces[env.buyer]; nonce != 1 {
		t.Fatalf("unexpected nonce: %d", nonce)
	}
	evt, ok := env.emitter.last().(events.PurchaseCompleted)
	if !ok {
		t.Fatalf("expected purchase event, got %T", env.emitter.last())
	}
	if evt.RoundID != round.ID || evt.Buyer != env.buyer || evt.Nonce != 1 {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
	if evt.GPTAmount.Cmp(scaled(10_000, 6)) != 0 || evt.PaymentAmount.Cmp(scaled(2000, 6)) != 0 {
		t.Fatalf("unexpected event amounts: gpt=%s payment=%s", evt.GPTAmount, evt.PaymentAmount)
	}
}

func TestPurchaseReplayFails(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected ErrNonceMismatch, got %v", err)
	}
}

func TestPurchasePresaleEligibility(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePreSale)
	order := env.signedOrder(t, round.ID, scaled(100, 6))

	if _, err := env.engine.PurchasePresale(env.manager, order); !errors.Is(err, ErrCallerNotBuyer) {
		t.Fatalf("expected ErrCallerNotBuyer, got %v", err)
	}
	if _, err := env.engine.PurchasePresale(env.buyer, order); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("expected ErrNotWhitelisted, got %v", err)
	}
	if err := env.engine.SetWhitelisted(env.manager, env.buyer, true); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := env.engine.PurchasePresale(env.buyer, order); err != nil {
		t.Fatalf("presale purchase: %v", err)
	}
}

func TestPurchaseWrongStage(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePreSale)
	if err := env.engine.SetWhitelisted(env.manager, env.buyer, true); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
}

func TestPurchaseTokenNotAccepted(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	if err := env.engine.RemovePaymentToken(env.admin, env.usdc); err != nil {
		t.Fatalf("remove token: %v", err)
	}
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrTokenNotAccepted) {
		t.Fatalf("expected ErrTokenNotAccepted, got %v", err)
	}
}

func TestPurchaseExceedsAllocationLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(100_001, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrExceedMaxAllocation) {
		t.Fatalf("expected ErrExceedMaxAllocation, got %v", err)
	}
	stored, _, err := env.state.RoundGet(round.ID)
	if err != nil {
		t.Fatalf("round get: %v", err)
	}
	if stored.TokensSold.Sign() != 0 {
		t.Fatalf("tokens sold mutated: %s", stored.TokensSold)
	}
	if env.state.nonces[env.buyer] != 0 {
		t.Fatalf("nonce mutated: %d", env.state.nonces[env.buyer])
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	env.state.setBalance(env.usdc, env.buyer, scaled(1, 6))
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	_, err := env.engine.PurchasePublic(env.buyer, order)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPurchaseExpiredOrder(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	env.now += 601
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}
}

func TestPurchaseAfterRoundWindow(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	env.now += 90_000
	order.Expiry = env.now + 600
	// Re-sign with the fresh expiry so only the window check can fail.
	userDigest, err := env.auth.OrderDigest(order)
	if err != nil {
		t.Fatalf("order digest: %v", err)
	}
	order.UserSignature = signDigest(t, env.buyerKey, userDigest)
	relayerDigest, err := env.auth.RelayerDigest(order)
	if err != nil {
		t.Fatalf("relayer digest: %v", err)
	}
	order.RelayerSignature = signDigest(t, env.relayerKey, relayerDigest)
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrRoundAlreadyEnded) {
		t.Fatalf("expected ErrRoundAlreadyEnded, got %v", err)
	}
}

func TestPurchasePausedRejected(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	if err := env.engine.Pause(env.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); err == nil {
		t.Fatal("expected pause rejection")
	}
	if err := env.engine.Unpause(env.admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := env.engine.PurchasePublic(env.buyer, order); err != nil {
		t.Fatalf("purchase after unpause: %v", err)
	}
}

func TestPurchaseStalePriceFails(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	env.goldFeed.Set(scaled(2000, 8), env.now-2*3600)
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestSetRelayerRotation(t *testing.T) {
	env := newTestEnv(t)
	next := testKey(t)
	if err := env.engine.SetRelayer(env.buyer, keyAddress(next)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SetRelayer(env.admin, keyAddress(next)); err != nil {
		t.Fatalf("set relayer: %v", err)
	}
	relayer, err := env.engine.Relayer()
	if err != nil {
		t.Fatalf("relayer: %v", err)
	}
	if relayer != keyAddress(next) {
		t.Fatal("relayer not rotated")
	}
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(100, 6))
	// Orders countersigned by the retired key must stop settling.
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrInvalidRelayerSignature) {
		t.Fatalf("expected ErrInvalidRelayerSignature, got %v", err)
	}
}

func TestPurchaseMintFailureLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := env.signedOrder(t, round.ID, scaled(10_000, 6))
	buyerUSDC := env.state.balance(env.usdc, env.buyer)

	env.state.mintErr = errors.New("mint unavailable")
	if _, err := env.engine.PurchasePublic(env.buyer, order); err == nil {
		t.Fatal("expected mint failure to surface")
	}

	stored, _, err := env.state.RoundGet(round.ID)
	if err != nil {
		t.Fatalf("round get: %v", err)
	}
	if stored.TokensSold.Sign() != 0 {
		t.Fatalf("tokens sold persisted after failed settlement: %s", stored.TokensSold)
	}
	if got := env.state.balance(env.usdc, env.buyer); got.Cmp(buyerUSDC) != 0 {
		t.Fatalf("payment debited after failed settlement: %s", got)
	}
	if got := env.state.balance(env.usdc, env.treasury); got.Sign() != 0 {
		t.Fatalf("treasury credited after failed settlement: %s", got)
	}
	if env.state.nonces[env.buyer] != 0 {
		t.Fatalf("nonce consumed after failed settlement: %d", env.state.nonces[env.buyer])
	}

	// Clearing the fault must let the identical order settle.
	env.state.mintErr = nil
	if _, err := env.engine.PurchasePublic(env.buyer, order); err != nil {
		t.Fatalf("purchase after recovery: %v", err)
	}
}

func TestPurchaseOversizedAmountRejected(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	order := &Order{
		RoundID:      round.ID,
		Buyer:        env.buyer,
		GPTAmount:    new(big.Int).Lsh(big.NewInt(1), 300),
		Expiry:       env.now + 600,
		PaymentToken: env.usdc,
	}
	if _, err := env.engine.PurchasePublic(env.buyer, order); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestActivateRoundAdvancesStages(t *testing.T) {
	env := newTestEnv(t)
	round, err := env.engine.CreateRound(env.manager, scaled(100_000, 6), env.now-10, env.now+86_400)
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	if err := env.engine.ActivateRound(env.manager, round.ID); err != nil {
		t.Fatalf("activate to presale: %v", err)
	}
	stored, _, err := env.state.RoundGet(round.ID)
	if err != nil {
		t.Fatalf("round get: %v", err)
	}
	if stored.Stage != StagePreSale {
		t.Fatalf("unexpected stage: %s", stored.Stage)
	}
	if err := env.engine.ActivateRound(env.manager, round.ID); err != nil {
		t.Fatalf("activate to public sale: %v", err)
	}
	stored, _, _ = env.state.RoundGet(round.ID)
	if stored.Stage != StagePublicSale {
		t.Fatalf("unexpected stage: %s", stored.Stage)
	}
	if err := env.engine.ActivateRound(env.manager, round.ID); err == nil {
		t.Fatal("expected activation past public sale to fail")
	}
	if err := env.engine.SetStage(env.manager, round.ID, StageSaleEnded); err != nil {
		t.Fatalf("end sale: %v", err)
	}
	if err := env.engine.ActivateRound(env.manager, round.ID); !errors.Is(err, ErrSaleEnded) {
		t.Fatalf("expected ErrSaleEnded, got %v", err)
	}
}

func TestDeactivateRound(t *testing.T) {
	env := newTestEnv(t)
	round := env.createActiveRound(t, StagePublicSale)
	if err := env.engine.DeactivateRound(env.manager, round.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	stored, _, err := env.state.RoundGet(round.ID)
	if err != nil {
		t.Fatalf("round get: %v", err)
	}
	if stored.Stage != StagePreMarketing {
		t.Fatalf("unexpected stage: %s", stored.Stage)
	}
	if err := env.engine.DeactivateRound(env.manager, round.ID); !errors.Is(err, ErrRoundNotActive) {
		t.Fatalf("expected ErrRoundNotActive, got %v", err)
	}
}
