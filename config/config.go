package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"bridgeproxy/native/proxy"
)

// AssetBounds is one per-asset transfer window entry.
type AssetBounds struct {
	Asset string `toml:"Asset"`
	Min   string `toml:"Min"`
	Max   string `toml:"Max"`
}

// Genesis seeds the proxy state on first start.
type Genesis struct {
	Admin           string        `toml:"Admin"`
	Managers        []string      `toml:"Managers"`
	PlatformFeeRate uint32        `toml:"PlatformFeeRate"`
	FixedNativeFee  string        `toml:"FixedNativeFee"`
	Providers       []string      `toml:"Providers"`
	Bounds          []AssetBounds `toml:"Bounds"`
}

// RateLimit bounds the HTTP request rate per client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	NetworkName   string    `toml:"NetworkName"`
	Custody       string    `toml:"Custody"`
	LogEnv        string    `toml:"LogEnv"`
	LogFile       string    `toml:"LogFile"`
	RateLimit     RateLimit `toml:"RateLimit"`
	Genesis       Genesis   `toml:"Genesis"`
}

// Load loads the configuration from the given path. A missing file is
// populated with defaults and written back so a first start is self-serve.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "0.0.0.0:8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./proxyd-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "bridgeproxy-local"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}
	if c.Genesis.Managers == nil {
		c.Genesis.Managers = []string{}
	}
	if c.Genesis.Providers == nil {
		c.Genesis.Providers = []string{}
	}
}

// Validate checks address formats and amount strings without touching state.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Custody) != "" {
		if _, err := parseAddress(c.Custody); err != nil {
			return fmt.Errorf("Custody: %w", err)
		}
	}
	if strings.TrimSpace(c.Genesis.Admin) != "" {
		if _, err := parseAddress(c.Genesis.Admin); err != nil {
			return fmt.Errorf("Genesis.Admin: %w", err)
		}
	}
	for i, manager := range c.Genesis.Managers {
		if _, err := parseAddress(manager); err != nil {
			return fmt.Errorf("Genesis.Managers[%d]: %w", i, err)
		}
	}
	for i, provider := range c.Genesis.Providers {
		if _, err := parseAddress(provider); err != nil {
			return fmt.Errorf("Genesis.Providers[%d]: %w", i, err)
		}
	}
	if c.Genesis.PlatformFeeRate > proxy.Denominator {
		return fmt.Errorf("Genesis.PlatformFeeRate %d exceeds %d", c.Genesis.PlatformFeeRate, proxy.Denominator)
	}
	if _, err := parseAmount(c.Genesis.FixedNativeFee); err != nil {
		return fmt.Errorf("Genesis.FixedNativeFee: %w", err)
	}
	for i, bounds := range c.Genesis.Bounds {
		if _, err := parseAddress(bounds.Asset); err != nil {
			return fmt.Errorf("Genesis.Bounds[%d].Asset: %w", i, err)
		}
		min, err := parseAmount(bounds.Min)
		if err != nil {
			return fmt.Errorf("Genesis.Bounds[%d].Min: %w", i, err)
		}
		max, err := parseAmount(bounds.Max)
		if err != nil {
			return fmt.Errorf("Genesis.Bounds[%d].Max: %w", i, err)
		}
		if min.Cmp(max) > 0 {
			return fmt.Errorf("Genesis.Bounds[%d]: min %s exceeds max %s", i, min, max)
		}
	}
	return nil
}

// CustodyAddress resolves the configured custody account.
func (c *Config) CustodyAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Custody) == "" {
		return [20]byte{}, fmt.Errorf("config: Custody address is required")
	}
	return parseAddress(c.Custody)
}

// GenesisConfig converts the TOML genesis section into the engine's seed
// structure. Returns false when no admin is configured, meaning the node
// expects already-initialised state in DataDir.
func (c *Config) GenesisConfig() (proxy.GenesisConfig, bool, error) {
	if strings.TrimSpace(c.Genesis.Admin) == "" {
		return proxy.GenesisConfig{}, false, nil
	}
	admin, err := parseAddress(c.Genesis.Admin)
	if err != nil {
		return proxy.GenesisConfig{}, false, err
	}
	managers := make([][20]byte, 0, len(c.Genesis.Managers))
	for _, raw := range c.Genesis.Managers {
		addr, err := parseAddress(raw)
		if err != nil {
			return proxy.GenesisConfig{}, false, err
		}
		managers = append(managers, addr)
	}
	providers := make([][20]byte, 0, len(c.Genesis.Providers))
	for _, raw := range c.Genesis.Providers {
		addr, err := parseAddress(raw)
		if err != nil {
			return proxy.GenesisConfig{}, false, err
		}
		providers = append(providers, addr)
	}
	fixedFee, err := parseAmount(c.Genesis.FixedNativeFee)
	if err != nil {
		return proxy.GenesisConfig{}, false, err
	}
	assets := make([][20]byte, 0, len(c.Genesis.Bounds))
	mins := make([]*big.Int, 0, len(c.Genesis.Bounds))
	maxs := make([]*big.Int, 0, len(c.Genesis.Bounds))
	for _, bounds := range c.Genesis.Bounds {
		asset, err := parseAddress(bounds.Asset)
		if err != nil {
			return proxy.GenesisConfig{}, false, err
		}
		min, err := parseAmount(bounds.Min)
		if err != nil {
			return proxy.GenesisConfig{}, false, err
		}
		max, err := parseAmount(bounds.Max)
		if err != nil {
			return proxy.GenesisConfig{}, false, err
		}
		assets = append(assets, asset)
		mins = append(mins, min)
		maxs = append(maxs, max)
	}
	return proxy.GenesisConfig{
		Admin:           admin,
		Managers:        managers,
		PlatformFeeRate: c.Genesis.PlatformFeeRate,
		FixedNativeFee:  fixedFee,
		Providers:       providers,
		Assets:          assets,
		MinAmounts:      mins,
		MaxAmounts:      maxs,
	}, true, nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}
