package state

import (
	"fmt"
	"math/big"

	"aurum/native/treasury"
)

var withdrawalPrefix = []byte("treasury/withdrawal/")

func withdrawalStoreKey(id [32]byte) []byte {
	buf := make([]byte, len(withdrawalPrefix)+32)
	copy(buf, withdrawalPrefix)
	copy(buf[len(withdrawalPrefix):], id[:])
	return buf
}

type storedWithdrawal struct {
	ID          [32]byte
	Token       [20]byte
	Amount      *big.Int
	TransferTo  [20]byte
	RequestTime uint64
	Expiry      uint64
	Executed    bool
	Cancelled   bool
}

// WithdrawalPut persists the request, replacing any previous version.
func (m *Manager) WithdrawalPut(request *treasury.WithdrawalRequest) error {
	if request == nil {
		return fmt.Errorf("withdrawal request must not be nil")
	}
	stored := storedWithdrawal{
		ID:          request.ID,
		Token:       request.Token,
		Amount:      request.Amount,
		TransferTo:  request.TransferTo,
		RequestTime: uint64(request.RequestTime),
		Expiry:      uint64(request.Expiry),
		Executed:    request.Executed,
		Cancelled:   request.Cancelled,
	}
	if stored.Amount == nil {
		stored.Amount = big.NewInt(0)
	}
	return m.KVPut(withdrawalStoreKey(request.ID), &stored)
}

// WithdrawalGet loads a request by id. The boolean reports existence.
func (m *Manager) WithdrawalGet(id [32]byte) (*treasury.WithdrawalRequest, bool, error) {
	var stored storedWithdrawal
	ok, err := m.KVGet(withdrawalStoreKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	request := &treasury.WithdrawalRequest{
		ID:          stored.ID,
		Token:       stored.Token,
		Amount:      stored.Amount,
		TransferTo:  stored.TransferTo,
		RequestTime: int64(stored.RequestTime),
		Expiry:      int64(stored.Expiry),
		Executed:    stored.Executed,
		Cancelled:   stored.Cancelled,
	}
	return request, true, nil
}

// TokenAccepted reports whether the token has an accepted sale configuration.
// The treasury consults the same accepted-token store the sale module writes.
func (m *Manager) TokenAccepted(token [20]byte) (bool, error) {
	cfg, ok, err := m.TokenConfigGet(token)
	if err != nil || !ok {
		return false, err
	}
	return cfg.Accepted, nil
}
