package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration decoded from TOML.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	LogLevel       string `toml:"LogLevel"`

	// RPCAuthTokenEnv names the environment variable holding the bearer
	// token for mutating RPC methods. The token itself never lives in the
	// config file.
	RPCAuthTokenEnv string `toml:"RPCAuthTokenEnv"`
	RPCRateLimit    int    `toml:"RPCRateLimit"`
	RPCRateBurst    int    `toml:"RPCRateBurst"`

	Sale   SaleConfig   `toml:"sale"`
	Oracle OracleConfig `toml:"oracle"`
}

// SaleConfig carries the engine deployment parameters.
type SaleConfig struct {
	Owner         string `toml:"Owner"`
	Token         string `toml:"Token"`
	TokenName     string `toml:"TokenName"`
	TokenDecimals uint8  `toml:"TokenDecimals"`
	SaleVault     string `toml:"SaleVault"`
	StakeVault    string `toml:"StakeVault"`
	ReferralVault string `toml:"ReferralVault"`
}

// OracleConfig configures the price feed aggregation.
type OracleConfig struct {
	Priority      []string          `toml:"Priority"`
	MaxAgeSeconds int64             `toml:"MaxAgeSeconds"`
	HTTPEndpoint  string            `toml:"HTTPEndpoint"`
	HTTPAssetIDs  map[string]string `toml:"HTTPAssetIDs"`
}

const defaultConfig = `RPCAddress = ":8645"
MetricsAddress = ":9090"
DataDir = "./ico-data"
Environment = "local"
LogLevel = "info"
RPCAuthTokenEnv = "ICOD_RPC_TOKEN"
RPCRateLimit = 20
RPCRateBurst = 40

[sale]
Owner = "0000000000000000000000000000000000000001"
Token = "RMX"
TokenName = "Remix Token"
TokenDecimals = 18
SaleVault = "0000000000000000000000000000000000000101"
StakeVault = "0000000000000000000000000000000000000102"
ReferralVault = "0000000000000000000000000000000000000103"

[oracle]
Priority = ["manual"]
MaxAgeSeconds = 300
HTTPEndpoint = ""
`

// Load reads the configuration from path, creating a commented default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o644)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ico-data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.RPCAuthTokenEnv) == "" {
		cfg.RPCAuthTokenEnv = "ICOD_RPC_TOKEN"
	}
	if cfg.RPCRateLimit <= 0 {
		cfg.RPCRateLimit = 20
	}
	if cfg.RPCRateBurst <= 0 {
		cfg.RPCRateBurst = cfg.RPCRateLimit * 2
	}
	if cfg.Oracle.MaxAgeSeconds <= 0 {
		cfg.Oracle.MaxAgeSeconds = 300
	}
	if len(cfg.Oracle.Priority) == 0 {
		cfg.Oracle.Priority = []string{"manual"}
	}
}

// Validate checks the parts of the configuration the daemon cannot start
// without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sale.Token) == "" {
		return fmt.Errorf("config: sale.Token is required")
	}
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"sale.SaleVault", c.Sale.SaleVault},
		{"sale.StakeVault", c.Sale.StakeVault},
		{"sale.ReferralVault", c.Sale.ReferralVault},
	} {
		if _, err := parseAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

// OwnerAddress decodes the configured owner as a 20-byte address.
func (c *Config) OwnerAddress() ([20]byte, error) {
	addr, err := parseAddress(c.Sale.Owner)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: sale.Owner: %w", err)
	}
	return addr, nil
}

// VaultAddresses decodes the three custody vault addresses.
func (c *Config) VaultAddresses() (sale, stake, referral [20]byte, err error) {
	if sale, err = parseAddress(c.Sale.SaleVault); err != nil {
		return
	}
	if stake, err = parseAddress(c.Sale.StakeVault); err != nil {
		return
	}
	referral, err = parseAddress(c.Sale.ReferralVault)
	return
}

// RPCAuthToken resolves the bearer token from the configured environment
// variable. An empty result disables authenticated methods.
func (c *Config) RPCAuthToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCAuthTokenEnv))
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address %q", value)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address %q must be %d bytes", value, len(addr))
	}
	copy(addr[:], raw)
	return addr, nil
}
