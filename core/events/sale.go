package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"aurum/core/types"
	"aurum/crypto"
)

const (
	// TypeRoundCreated is emitted when a new sale round is registered.
	TypeRoundCreated = "sale.round.created"
	// TypeRoundActivated is emitted when a round enters an active stage.
	TypeRoundActivated = "sale.round.activated"
	// TypeRoundDeactivated is emitted when a round returns to its inactive state.
	TypeRoundDeactivated = "sale.round.deactivated"
	// TypeStageChanged is emitted on every round stage transition.
	TypeStageChanged = "sale.round.stage_changed"
	// TypePurchaseCompleted is emitted whenever an order settles.
	TypePurchaseCompleted = "sale.purchase.completed"
	// TypeWhitelistUpdated is emitted when a presale whitelist entry changes.
	TypeWhitelistUpdated = "sale.whitelist.updated"
	// TypePaymentTokenUpdated is emitted when an accepted payment token is
	// added or removed.
	TypePaymentTokenUpdated = "sale.payment_token.updated"
	// TypeRelayerUpdated is emitted when the trusted co-signer is rotated.
	TypeRelayerUpdated = "sale.relayer.updated"
	// TypeSalePaused is emitted when the sale module pause flag flips.
	TypeSalePaused = "sale.paused"
)

func renderAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.AurPrefix, addr[:]).String()
}

func renderAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// RoundCreated carries the immutable parameters of a freshly created round.
type RoundCreated struct {
	RoundID   uint64
	MaxTokens *big.Int
	StartTime int64
	EndTime   int64
}

func (RoundCreated) EventType() string { return TypeRoundCreated }

func (e RoundCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundCreated,
		Attributes: map[string]string{
			"roundId":   strconv.FormatUint(e.RoundID, 10),
			"maxTokens": renderAmount(e.MaxTokens),
			"startTime": strconv.FormatInt(e.StartTime, 10),
			"endTime":   strconv.FormatInt(e.EndTime, 10),
		},
	}
}

// RoundActivated records a round entering the supplied active stage.
type RoundActivated struct {
	RoundID uint64
	Stage   string
}

func (RoundActivated) EventType() string { return TypeRoundActivated }

func (e RoundActivated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundActivated,
		Attributes: map[string]string{
			"roundId": strconv.FormatUint(e.RoundID, 10),
			"stage":   strings.TrimSpace(e.Stage),
		},
	}
}

// RoundDeactivated records a round leaving its active stage.
type RoundDeactivated struct {
	RoundID uint64
}

func (RoundDeactivated) EventType() string { return TypeRoundDeactivated }

func (e RoundDeactivated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundDeactivated,
		Attributes: map[string]string{
			"roundId": strconv.FormatUint(e.RoundID, 10),
		},
	}
}

// StageChanged records a stage transition on a round.
type StageChanged struct {
	RoundID uint64
	From    string
	To      string
}

func (StageChanged) EventType() string { return TypeStageChanged }

func (e StageChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeStageChanged,
		Attributes: map[string]string{
			"roundId": strconv.FormatUint(e.RoundID, 10),
			"from":    strings.TrimSpace(e.From),
			"to":      strings.TrimSpace(e.To),
		},
	}
}

// PurchaseCompleted captures a settled purchase with the literal amounts
// moved so downstream accounting can replay it.
type PurchaseCompleted struct {
	RoundID       uint64
	Buyer         [20]byte
	GPTAmount     *big.Int
	PaymentToken  [20]byte
	PaymentAmount *big.Int
	Nonce         uint64
}

func (PurchaseCompleted) EventType() string { return TypePurchaseCompleted }

func (e PurchaseCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypePurchaseCompleted,
		Attributes: map[string]string{
			"roundId":       strconv.FormatUint(e.RoundID, 10),
			"buyer":         renderAddress(e.Buyer),
			"gptAmount":     renderAmount(e.GPTAmount),
			"paymentToken":  renderAddress(e.PaymentToken),
			"paymentAmount": renderAmount(e.PaymentAmount),
			"nonce":         strconv.FormatUint(e.Nonce, 10),
		},
	}
}

// WhitelistUpdated records a presale whitelist mutation.
type WhitelistUpdated struct {
	Account [20]byte
	Allowed bool
}

func (WhitelistUpdated) EventType() string { return TypeWhitelistUpdated }

func (e WhitelistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeWhitelistUpdated,
		Attributes: map[string]string{
			"account": renderAddress(e.Account),
			"allowed": strconv.FormatBool(e.Allowed),
		},
	}
}

// PaymentTokenUpdated records an accepted-token configuration change.
type PaymentTokenUpdated struct {
	Token    [20]byte
	Accepted bool
	FeedRef  string
	Decimals uint8
}

func (PaymentTokenUpdated) EventType() string { return TypePaymentTokenUpdated }

func (e PaymentTokenUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePaymentTokenUpdated,
		Attributes: map[string]string{
			"token":    renderAddress(e.Token),
			"accepted": strconv.FormatBool(e.Accepted),
			"feedRef":  strings.TrimSpace(e.FeedRef),
			"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
		},
	}
}

// RelayerUpdated records a rotation of the trusted co-signer key.
type RelayerUpdated struct {
	Previous [20]byte
	Current  [20]byte
}

func (RelayerUpdated) EventType() string { return TypeRelayerUpdated }

func (e RelayerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRelayerUpdated,
		Attributes: map[string]string{
			"previous": renderAddress(e.Previous),
			"current":  renderAddress(e.Current),
		},
	}
}

// SalePaused records a pause flag transition for a module.
type SalePaused struct {
	Module string
	Paused bool
}

func (SalePaused) EventType() string { return TypeSalePaused }

func (e SalePaused) Event() *types.Event {
	return &types.Event{
		Type: TypeSalePaused,
		Attributes: map[string]string{
			"module": strings.TrimSpace(e.Module),
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

// RenderID renders a 32-byte identifier as lowercase hex for event payloads.
func RenderID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
