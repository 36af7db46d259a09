package state

import (
	"fmt"
	"math/big"

	"aurum/native/sale"
)

var (
	roundPrefix       = []byte("sale/round/")
	roundCountKey     = []byte("sale/round/count")
	noncePrefix       = []byte("sale/nonce/")
	whitelistPrefix   = []byte("sale/whitelist/")
	tokenConfigPrefix = []byte("sale/token/")
	relayerKey        = []byte("sale/relayer")
)

func roundStoreKey(id uint64) []byte {
	buf := make([]byte, len(roundPrefix)+8)
	copy(buf, roundPrefix)
	for i := 0; i < 8; i++ {
		buf[len(roundPrefix)+i] = byte(id >> (56 - 8*i))
	}
	return buf
}

func nonceStoreKey(addr [20]byte) []byte {
	buf := make([]byte, len(noncePrefix)+20)
	copy(buf, noncePrefix)
	copy(buf[len(noncePrefix):], addr[:])
	return buf
}

func whitelistStoreKey(addr [20]byte) []byte {
	buf := make([]byte, len(whitelistPrefix)+20)
	copy(buf, whitelistPrefix)
	copy(buf[len(whitelistPrefix):], addr[:])
	return buf
}

func tokenConfigStoreKey(token [20]byte) []byte {
	buf := make([]byte, len(tokenConfigPrefix)+20)
	copy(buf, tokenConfigPrefix)
	copy(buf[len(tokenConfigPrefix):], token[:])
	return buf
}

// storedRound is the RLP representation of a sale round. Timestamps are kept
// unsigned because RLP has no signed integer encoding.
type storedRound struct {
	ID         uint64
	MaxTokens  *big.Int
	TokensSold *big.Int
	StartTime  uint64
	EndTime    uint64
	Stage      uint8
}

// RoundPut persists the round, replacing any previous version.
func (m *Manager) RoundPut(round *sale.Round) error {
	if round == nil {
		return fmt.Errorf("round must not be nil")
	}
	stored := storedRound{
		ID:         round.ID,
		MaxTokens:  round.MaxTokens,
		TokensSold: round.TokensSold,
		StartTime:  uint64(round.StartTime),
		EndTime:    uint64(round.EndTime),
		Stage:      uint8(round.Stage),
	}
	if stored.MaxTokens == nil {
		stored.MaxTokens = big.NewInt(0)
	}
	if stored.TokensSold == nil {
		stored.TokensSold = big.NewInt(0)
	}
	return m.KVPut(roundStoreKey(round.ID), &stored)
}

// RoundGet loads a round by id. The boolean reports existence.
func (m *Manager) RoundGet(id uint64) (*sale.Round, bool, error) {
	var stored storedRound
	ok, err := m.KVGet(roundStoreKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	round := &sale.Round{
		ID:         stored.ID,
		MaxTokens:  stored.MaxTokens,
		TokensSold: stored.TokensSold,
		StartTime:  int64(stored.StartTime),
		EndTime:    int64(stored.EndTime),
		Stage:      sale.Stage(stored.Stage),
	}
	return round, true, nil
}

// RoundCount returns the number of rounds created so far.
func (m *Manager) RoundCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(roundCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetRoundCount records the highest assigned round id.
func (m *Manager) SetRoundCount(count uint64) error {
	return m.KVPut(roundCountKey, count)
}

// NonceGet returns the buyer's replay counter; absent entries read as zero.
func (m *Manager) NonceGet(addr [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(nonceStoreKey(addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// NoncePut stores the buyer's replay counter.
func (m *Manager) NoncePut(addr [20]byte, value uint64) error {
	return m.KVPut(nonceStoreKey(addr), value)
}

// WhitelistSet grants or revokes presale access for the address.
func (m *Manager) WhitelistSet(addr [20]byte, allowed bool) error {
	if !allowed {
		return m.KVDelete(whitelistStoreKey(addr))
	}
	return m.KVPut(whitelistStoreKey(addr), true)
}

// IsWhitelisted reports presale eligibility; absent entries read as false.
func (m *Manager) IsWhitelisted(addr [20]byte) (bool, error) {
	var allowed bool
	ok, err := m.KVGet(whitelistStoreKey(addr), &allowed)
	if err != nil || !ok {
		return false, err
	}
	return allowed, nil
}

type storedTokenConfig struct {
	Accepted bool
	FeedRef  string
	Decimals uint8
}

// TokenConfigPut stores the accepted-token configuration for the address.
func (m *Manager) TokenConfigPut(token [20]byte, cfg *sale.TokenConfig) error {
	if cfg == nil {
		return fmt.Errorf("token config must not be nil")
	}
	stored := storedTokenConfig{Accepted: cfg.Accepted, FeedRef: cfg.FeedRef, Decimals: cfg.Decimals}
	return m.KVPut(tokenConfigStoreKey(token), &stored)
}

// TokenConfigGet loads the configuration for the token address. Absent
// entries read as not accepted.
func (m *Manager) TokenConfigGet(token [20]byte) (*sale.TokenConfig, bool, error) {
	var stored storedTokenConfig
	ok, err := m.KVGet(tokenConfigStoreKey(token), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.TokenConfig{Accepted: stored.Accepted, FeedRef: stored.FeedRef, Decimals: stored.Decimals}, true, nil
}

// TokenConfigRemove deletes the configuration entry for the token address.
func (m *Manager) TokenConfigRemove(token [20]byte) error {
	return m.KVDelete(tokenConfigStoreKey(token))
}

// RelayerGet returns the configured trusted co-signer, if any.
func (m *Manager) RelayerGet() ([20]byte, bool, error) {
	var stored []byte
	ok, err := m.KVGet(relayerKey, &stored)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(stored) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: malformed relayer entry")
	}
	var addr [20]byte
	copy(addr[:], stored)
	return addr, true, nil
}

// RelayerPut stores the trusted co-signer address.
func (m *Manager) RelayerPut(addr [20]byte) error {
	return m.KVPut(relayerKey, addr[:])
}
