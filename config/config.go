package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"aurum/crypto"

	"github.com/BurntSushi/toml"
)

// PaymentToken configures one accepted settlement currency.
type PaymentToken struct {
	Address      string `toml:"Address"`
	FeedRef      string `toml:"FeedRef"`
	Decimals     uint8  `toml:"Decimals"`
	FeedDecimals uint8  `toml:"FeedDecimals"`
}

// Roles seeds the access-control lists applied at startup.
type Roles struct {
	Admins        []string `toml:"Admins"`
	SalesManagers []string `toml:"SalesManagers"`
}

// Sale groups the order-authorization and pricing knobs.
type Sale struct {
	ChainID            uint64         `toml:"ChainID"`
	VerifyingContract  string         `toml:"VerifyingContract"`
	GPTTokenAddress    string         `toml:"GPTTokenAddress"`
	RelayerAddress     string         `toml:"RelayerAddress"`
	GoldFeedRef        string         `toml:"GoldFeedRef"`
	GoldFeedDecimals   uint8          `toml:"GoldFeedDecimals"`
	MaxPriceAgeSeconds uint64         `toml:"MaxPriceAgeSeconds"`
	TokensPerTroyOunce string         `toml:"TokensPerTroyOunce"`
	PaymentTokens      []PaymentToken `toml:"PaymentTokens"`

	// Per-buyer purchase throttling over one-minute windows. Zero disables
	// the corresponding limit.
	MaxPurchasesPerMinute uint32 `toml:"MaxPurchasesPerMinute"`
	MaxGPTPerMinute       string `toml:"MaxGPTPerMinute"`
}

// Treasury groups the withdrawal-queue knobs.
type Treasury struct {
	TreasuryAddress string `toml:"TreasuryAddress"`
	SafeWallet      string `toml:"SafeWallet"`
	Threshold       string `toml:"Threshold"`
	DelaySeconds    uint64 `toml:"DelaySeconds"`
}

type Config struct {
	RPCAddress  string   `toml:"RPCAddress"`
	DataDir     string   `toml:"DataDir"`
	NetworkName string   `toml:"NetworkName"`
	Sale        Sale     `toml:"sale"`
	Treasury    Treasury `toml:"treasury"`
	Roles       Roles    `toml:"roles"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./aurum-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "aurum-local"
	}
	if c.Sale.ChainID == 0 {
		c.Sale.ChainID = 1
	}
	if strings.TrimSpace(c.Sale.GoldFeedRef) == "" {
		c.Sale.GoldFeedRef = "XAU/USD"
	}
	if c.Sale.GoldFeedDecimals == 0 {
		c.Sale.GoldFeedDecimals = 8
	}
	for i := range c.Sale.PaymentTokens {
		if c.Sale.PaymentTokens[i].FeedDecimals == 0 {
			c.Sale.PaymentTokens[i].FeedDecimals = 8
		}
	}
	if c.Sale.MaxPriceAgeSeconds == 0 {
		c.Sale.MaxPriceAgeSeconds = 3600
	}
	if strings.TrimSpace(c.Sale.TokensPerTroyOunce) == "" {
		c.Sale.TokensPerTroyOunce = "10000000000"
	}
	if c.Treasury.DelaySeconds == 0 {
		c.Treasury.DelaySeconds = 86400
	}
	if strings.TrimSpace(c.Treasury.Threshold) == "" {
		c.Treasury.Threshold = "0"
	}
	if c.Sale.PaymentTokens == nil {
		c.Sale.PaymentTokens = []PaymentToken{}
	}
}

// Validate checks the parts of the configuration that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := ParseAmount(c.Sale.TokensPerTroyOunce); err != nil {
		return fmt.Errorf("sale.TokensPerTroyOunce: %w", err)
	}
	if _, err := ParseAmount(c.Treasury.Threshold); err != nil {
		return fmt.Errorf("treasury.Threshold: %w", err)
	}
	if strings.TrimSpace(c.Sale.MaxGPTPerMinute) != "" {
		limit, err := ParseAmount(c.Sale.MaxGPTPerMinute)
		if err != nil {
			return fmt.Errorf("sale.MaxGPTPerMinute: %w", err)
		}
		if !limit.IsUint64() {
			return fmt.Errorf("sale.MaxGPTPerMinute: %s exceeds uint64 range", limit)
		}
	}
	for i, token := range c.Sale.PaymentTokens {
		if _, err := ParseAddress(token.Address); err != nil {
			return fmt.Errorf("sale.PaymentTokens[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(token.FeedRef) == "" {
			return fmt.Errorf("sale.PaymentTokens[%d]: FeedRef required", i)
		}
	}
	for i, admin := range c.Roles.Admins {
		if _, err := ParseAddress(admin); err != nil {
			return fmt.Errorf("roles.Admins[%d]: %w", i, err)
		}
	}
	for i, manager := range c.Roles.SalesManagers {
		if _, err := ParseAddress(manager); err != nil {
			return fmt.Errorf("roles.SalesManagers[%d]: %w", i, err)
		}
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"sale.VerifyingContract", c.Sale.VerifyingContract},
		{"sale.GPTTokenAddress", c.Sale.GPTTokenAddress},
		{"sale.RelayerAddress", c.Sale.RelayerAddress},
		{"treasury.TreasuryAddress", c.Treasury.TreasuryAddress},
		{"treasury.SafeWallet", c.Treasury.SafeWallet},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := ParseAddress(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

// ParseAmount parses a non-negative base-unit amount from its decimal string
// form.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must be non-negative", value)
	}
	return amount, nil
}

// ParseAddress decodes a bech32 account address into its 20-byte form.
func ParseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
