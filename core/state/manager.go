package state

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"aurum/storage"
)

// Manager provides typed access to the settlement state persisted in the
// underlying key-value store. All values are RLP encoded and keys are hashed
// so the layout stays uniform regardless of backend.
type Manager struct {
	mu       sync.RWMutex // guards db
	atomicMu sync.Mutex   // serializes RunAtomic blocks
	db       storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) database() storage.Database {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *Manager) swapDB(db storage.Database) {
	m.mu.Lock()
	m.db = db
	m.mu.Unlock()
}

var (
	rolePrefix    = []byte("role:")
	pausePrefix   = []byte("pause:")
	balancePrefix = []byte("balance:")
	supplyPrefix  = []byte("supply:")
)

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func pauseKey(module string) []byte {
	buf := make([]byte, len(pausePrefix)+len(module))
	copy(buf, pausePrefix)
	copy(buf[len(pausePrefix):], module)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(token [20]byte, addr [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+20+1+20)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], token[:])
	buf[len(balancePrefix)+20] = ':'
	copy(buf[len(balancePrefix)+21:], addr[:])
	return ethcrypto.Keccak256(buf)
}

func supplyKey(token [20]byte) []byte {
	buf := make([]byte, len(supplyPrefix)+20)
	copy(buf, supplyPrefix)
	copy(buf[len(supplyPrefix):], token[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP encodes the supplied value and stores it under the hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.database() == nil {
		return fmt.Errorf("state manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.database().Put(kvKey(key), encoded)
}

// KVGet loads and decodes the value stored under the hashed key. The boolean
// reports whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.database() == nil {
		return false, fmt.Errorf("state manager not initialised")
	}
	data, err := m.database().Get(kvKey(key))
	if err != nil {
		if err == storage.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the hashed key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.database() == nil {
		return fmt.Errorf("state manager not initialised")
	}
	return m.database().Delete(kvKey(key))
}

// --- Roles ---

// GrantRole associates the address with the named role. The membership list
// is kept sorted-free but duplicate-free.
func (m *Manager) GrantRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("role member address must not be empty")
	}
	key := roleKey(trimmed)
	members, err := m.roleMembers(key)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.database().Put(key, encoded)
}

// RevokeRole removes the address from the named role, if present.
func (m *Manager) RevokeRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	key := roleKey(trimmed)
	members, err := m.roleMembers(key)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, member := range members {
		if bytes.Equal(member, addr) {
			continue
		}
		filtered = append(filtered, member)
	}
	if len(filtered) == len(members) {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.database().Put(key, encoded)
}

func (m *Manager) roleMembers(key []byte) ([][]byte, error) {
	data, err := m.database().Get(key)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// RoleMembers returns the addresses currently associated with the role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	return m.roleMembers(roleKey(strings.TrimSpace(role)))
}

// HasRole reports whether the provided address is associated with the named
// role.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if m == nil || m.database() == nil || len(addr) == 0 {
		return false
	}
	members, err := m.roleMembers(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Pauses ---

// SetPaused flips the pause flag for the named module.
func (m *Manager) SetPaused(module string, paused bool) error {
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		return fmt.Errorf("module must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(paused)
	if err != nil {
		return err
	}
	return m.database().Put(pauseKey(trimmed), encoded)
}

// IsPaused reports whether the named module is currently paused. The method
// satisfies the native/common PauseView interface.
func (m *Manager) IsPaused(module string) bool {
	if m == nil || m.database() == nil {
		return false
	}
	data, err := m.database().Get(pauseKey(strings.TrimSpace(module)))
	if err != nil || len(data) == 0 {
		return false
	}
	var paused bool
	if err := rlp.DecodeBytes(data, &paused); err != nil {
		return false
	}
	return paused
}

// --- Token balances ---

// BalanceOf returns the balance the address holds in the given token. Absent
// entries read as zero.
func (m *Manager) BalanceOf(token [20]byte, addr [20]byte) (*big.Int, error) {
	if m == nil || m.database() == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	data, err := m.database().Get(balanceKey(token, addr))
	if err != nil {
		if err == storage.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *Manager) setBalance(token [20]byte, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("balance must be non-negative")
	}
	return m.database().Put(balanceKey(token, addr), amount.Bytes())
}

// Credit increases the address balance in the given token. Used for deposits
// and for minting the pegged token.
func (m *Manager) Credit(token [20]byte, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit amount must be non-negative")
	}
	balance, err := m.BalanceOf(token, addr)
	if err != nil {
		return err
	}
	return m.setBalance(token, addr, new(big.Int).Add(balance, amount))
}

// Transfer moves the amount between two addresses within the same token,
// failing when the source balance is insufficient.
func (m *Manager) Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: have %s want %s", fromBalance, amount)
	}
	toBalance, err := m.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := m.setBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.setBalance(token, to, new(big.Int).Add(toBalance, amount))
}

// Mint credits freshly issued units of the token to the address and bumps the
// recorded total supply.
func (m *Manager) Mint(token [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive")
	}
	if err := m.Credit(token, to, amount); err != nil {
		return err
	}
	supply, err := m.TotalSupply(token)
	if err != nil {
		return err
	}
	return m.database().Put(supplyKey(token), new(big.Int).Add(supply, amount).Bytes())
}

// TotalSupply returns the cumulative minted amount for the token.
func (m *Manager) TotalSupply(token [20]byte) (*big.Int, error) {
	if m == nil || m.database() == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	data, err := m.database().Get(supplyKey(token))
	if err != nil {
		if err == storage.ErrNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}
