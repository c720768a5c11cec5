package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Lagxy/Lending-DApps/native/lending"
)

// Config is the daemon configuration. Addresses are hex-encoded; the lending
// section carries the engine parameters.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	MetricsAddress string   `toml:"MetricsAddress"`
	DataDir        string   `toml:"DataDir"`
	Environment    string   `toml:"Environment"`
	ModuleAddress  string   `toml:"ModuleAddress"`
	DebtToken      string   `toml:"DebtToken"`
	DebtTokenFeed  string   `toml:"DebtTokenFeed"`
	Admins         []string `toml:"Admins"`

	// BorrowQuotaOps caps borrow operations per address per epoch; zero
	// disables the throttle.
	BorrowQuotaOps          uint32 `toml:"BorrowQuotaOps"`
	BorrowQuotaEpochSeconds uint32 `toml:"BorrowQuotaEpochSeconds"`

	Lending lending.Params `toml:"lending"`
	Devnet  Devnet         `toml:"devnet"`
}

// Devnet seeds the in-process collaborators used when the daemon runs without
// external token and oracle infrastructure.
type Devnet struct {
	Enabled bool          `toml:"Enabled"`
	Tokens  []DevnetToken `toml:"Tokens"`
}

// DevnetToken describes one seeded token and its fixed-price feed.
type DevnetToken struct {
	Address       string `toml:"Address"`
	Feed          string `toml:"Feed"`
	Decimals      uint8  `toml:"Decimals"`
	Price         string `toml:"Price"`
	PriceDecimals uint8  `toml:"PriceDecimals"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8440",
		MetricsAddress: ":9440",
		DataDir:        "./lendingd-data",
		Environment:    "dev",
		Lending:        lending.DefaultParams(),

		BorrowQuotaOps:          16,
		BorrowQuotaEpochSeconds: 60,
	}
}

// Load reads the configuration from path, falling back to defaults when the
// file does not exist. Unknown keys are rejected so typos fail fast.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if err := c.Lending.Validate(); err != nil {
		return fmt.Errorf("config: lending params: %w", err)
	}
	return nil
}
