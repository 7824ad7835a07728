// Package config loads and validates the tracker's externally supplied
// configuration. Defaults are explicit here, never inherited from the host
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:

rpc_url: "https://rpc.hyperliquid.xyz/evm"
pool_address: "0xeaD19AE861c29bBb2101E834922B2FEee69B9091"
position_manager_address: "0xBd19E19E4b70eB7F248695a42208bc1EdBBFb57D"
token_id: 101400
price_feed_ids:
  HYPE: hyperliquid
stable_symbols: ["USDT", "USD₮", "USDC"]
token0_symbol: HYPE
token1_symbol: USDT
history_csv: lp_history.csv
image_dir: .
granularity: daily
timezone: Asia/Tokyo
price_timeout: 20s
rpc_timeout: 15s
# interval: 24h
# metrics_addr: ":9109"
# postgres_dsn: "postgres://lp:lp@localhost:5432/lp"
*/

const (
	GranularityDaily = "daily"
	GranularityRun   = "run"

	// DefaultTimezone keys daily periods; the deployment this grew out of
	// tracks JST days.
	DefaultTimezone = "Asia/Tokyo"

	defaultPriceTimeout = 20 * time.Second
	defaultRPCTimeout   = 15 * time.Second
	defaultHistoryPath  = "lp_history.csv"
	defaultImageDir     = "."
)

var ErrMalformedAddress = errors.New("malformed contract address")

// Duration adds YAML support for "20s"-style strings, which yaml.v3 does not
// decode into time.Duration on its own.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration surface of one tracker deployment.
type Config struct {
	RPCURL                 string `yaml:"rpc_url"`
	PoolAddress            string `yaml:"pool_address"`
	PositionManagerAddress string `yaml:"position_manager_address"`
	TokenID                uint64 `yaml:"token_id"`

	// PriceFeedIDs maps token symbols to primary price-feed identifiers
	// (CoinGecko coin ids). StableSymbols are valued at exactly 1 USD and
	// gate the pool-ratio price fallback.
	PriceFeedIDs  map[string]string `yaml:"price_feed_ids"`
	StableSymbols []string          `yaml:"stable_symbols"`
	PriceFeedURL  string            `yaml:"price_feed_url"`

	HistoryCSV  string `yaml:"history_csv"`
	PostgresDSN string `yaml:"postgres_dsn"`
	ImageDir    string `yaml:"image_dir"`

	// Token0Symbol/Token1Symbol label the per-token CSV columns. They must
	// stay stable across runs of one deployment; renaming them orphans the
	// existing file's header.
	Token0Symbol string `yaml:"token0_symbol"`
	Token1Symbol string `yaml:"token1_symbol"`

	// Granularity selects the period key: "daily" keys one row per calendar
	// day in Timezone, "run" keys every invocation by UTC timestamp.
	Granularity string `yaml:"granularity"`
	Timezone    string `yaml:"timezone"`

	PriceTimeout Duration `yaml:"price_timeout"`
	RPCTimeout   Duration `yaml:"rpc_timeout"`

	// Interval switches the binary into loop mode when positive; zero means
	// one run per invocation, scheduling left to the operator.
	Interval    Duration `yaml:"interval"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Load reads a YAML config file, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PriceFeedURL == "" {
		c.PriceFeedURL = "https://api.coingecko.com"
	}
	if c.HistoryCSV == "" {
		c.HistoryCSV = defaultHistoryPath
	}
	if c.ImageDir == "" {
		c.ImageDir = defaultImageDir
	}
	if c.Granularity == "" {
		c.Granularity = GranularityDaily
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.PriceTimeout <= 0 {
		c.PriceTimeout = Duration(defaultPriceTimeout)
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = Duration(defaultRPCTimeout)
	}
	if len(c.StableSymbols) == 0 {
		c.StableSymbols = []string{"USDT", "USD₮", "USDC"}
	}
	if c.Token0Symbol == "" {
		c.Token0Symbol = "token0"
	}
	if c.Token1Symbol == "" {
		c.Token1Symbol = "token1"
	}
}

func (c *Config) validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpc_url is required")
	}
	if c.TokenID == 0 {
		return errors.New("config: token_id is required")
	}
	if err := validateAddress("pool_address", c.PoolAddress); err != nil {
		return err
	}
	if err := validateAddress("position_manager_address", c.PositionManagerAddress); err != nil {
		return err
	}
	if c.Granularity != GranularityDaily && c.Granularity != GranularityRun {
		return fmt.Errorf("config: granularity must be %q or %q, got %q",
			GranularityDaily, GranularityRun, c.Granularity)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// validateAddress rejects anything that is not a 20-byte hex address. An
// address written in mixed case must additionally carry a valid EIP-55
// checksum: a transposed character in a checksummed address is a typo, not a
// different contract, and must fail loudly at startup.
func validateAddress(field, value string) error {
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%w: %s %q", ErrMalformedAddress, field, value)
	}

	hexPart := strings.TrimPrefix(value, "0x")
	mixedCase := strings.ToLower(hexPart) != hexPart && strings.ToUpper(hexPart) != hexPart
	if !mixedCase {
		return nil
	}

	addr, err := common.NewMixedcaseAddressFromString(value)
	if err != nil || !addr.ValidChecksum() {
		return fmt.Errorf("%w: %s %q fails checksum", ErrMalformedAddress, field, value)
	}
	return nil
}

// Pool returns the validated pool address.
func (c *Config) Pool() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// PositionManager returns the validated position-manager address.
func (c *Config) PositionManager() common.Address {
	return common.HexToAddress(c.PositionManagerAddress)
}

// Location returns the validated period-keying timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		// validate() already vetted the name.
		panic(err)
	}
	return loc
}
