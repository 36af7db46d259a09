package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"aurum/crypto"
	"aurum/native/sale"
	"aurum/native/treasury"
)

// RoundResult summarises a sale round for RPC consumers.
type RoundResult struct {
	RoundID    uint64 `json:"roundId"`
	MaxTokens  string `json:"maxTokens"`
	TokensSold string `json:"tokensSold"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
	Stage      string `json:"stage"`
}

func roundResult(round *sale.Round) *RoundResult {
	if round == nil {
		return nil
	}
	return &RoundResult{
		RoundID:    round.ID,
		MaxTokens:  bigString(round.MaxTokens),
		TokensSold: bigString(round.TokensSold),
		StartTime:  round.StartTime,
		EndTime:    round.EndTime,
		Stage:      round.Stage.String(),
	}
}

// ReceiptResult reflects a settled purchase.
type ReceiptResult struct {
	RoundID       uint64 `json:"roundId"`
	Buyer         string `json:"buyer"`
	GPTAmount     string `json:"gptAmount"`
	PaymentToken  string `json:"paymentToken"`
	PaymentAmount string `json:"paymentAmount"`
	Nonce         uint64 `json:"nonce"`
}

func receiptResult(receipt *sale.Receipt) *ReceiptResult {
	if receipt == nil {
		return nil
	}
	return &ReceiptResult{
		RoundID:       receipt.RoundID,
		Buyer:         formatAddress(receipt.Buyer),
		GPTAmount:     bigString(receipt.GPTAmount),
		PaymentToken:  formatAddress(receipt.PaymentToken),
		PaymentAmount: bigString(receipt.PaymentAmount),
		Nonce:         receipt.Nonce,
	}
}

// WithdrawalResult reflects a queued withdrawal request.
type WithdrawalResult struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	TransferTo  string `json:"transferTo"`
	RequestTime int64  `json:"requestTime"`
	Expiry      int64  `json:"expiry"`
	Executed    bool   `json:"executed"`
	Cancelled   bool   `json:"cancelled"`
}

func withdrawalResult(request *treasury.WithdrawalRequest) *WithdrawalResult {
	if request == nil {
		return nil
	}
	return &WithdrawalResult{
		ID:          "0x" + hex.EncodeToString(request.ID[:]),
		Token:       formatAddress(request.Token),
		Amount:      bigString(request.Amount),
		TransferTo:  formatAddress(request.TransferTo),
		RequestTime: request.RequestTime,
		Expiry:      request.Expiry,
		Executed:    request.Executed,
		Cancelled:   request.Cancelled,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.AurPrefix, addr[:]).String()
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	// Amounts are signed as 256-bit words; anything wider can never be valid.
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	return amount, nil
}

func parseHexBytes(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("hex payload required")
	}
	trimmed = strings.TrimPrefix(trimmed, "0x")
	return hex.DecodeString(trimmed)
}

func parseRequestID(value string) ([32]byte, error) {
	var id [32]byte
	raw, err := parseHexBytes(value)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("expected %d-byte identifier", len(id))
	}
	copy(id[:], raw)
	return id, nil
}
