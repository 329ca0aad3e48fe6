// Package config loads the nectard daemon configuration from TOML, with the
// partner credential registry held in a separate YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration to support human readable TOML values.
type Duration struct {
	time.Duration
}

// UnmarshalText parses duration strings such as "2m" or "90s".
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for nectard.
type Config struct {
	ListenAddress  string          `toml:"listen"`
	Environment    string          `toml:"env"`
	AllowedOrigins []string        `toml:"allowed_origins"`
	DatabasePath   string          `toml:"database"`
	StatePath      string          `toml:"state"`
	PartnersFile   string          `toml:"partners_file"`
	Admin          AdminConfig     `toml:"admin"`
	Auth           AuthConfig      `toml:"auth"`
	Rate           RateConfig      `toml:"rate"`
	PriceFeed      PriceFeedConfig `toml:"pricefeed"`
	Params         ParamsConfig    `toml:"params"`
}

// AdminConfig controls the bearer-token auth on operator endpoints.
type AdminConfig struct {
	Enabled  bool   `toml:"enabled"`
	Secret   string `toml:"secret"`
	Issuer   string `toml:"issuer"`
	Audience string `toml:"audience"`
}

// AuthConfig tunes partner HMAC verification.
type AuthConfig struct {
	TimestampSkew Duration `toml:"timestamp_skew"`
	NonceTTL      Duration `toml:"nonce_ttl"`
	NonceCapacity int      `toml:"nonce_capacity"`
}

// RateConfig sets per-client request budgets.
type RateConfig struct {
	PartnerPerMinute float64 `toml:"partner_rpm"`
	PartnerBurst     int     `toml:"partner_burst"`
	AdminPerMinute   float64 `toml:"admin_rpm"`
	AdminBurst       int     `toml:"admin_burst"`
}

// PriceFeedConfig describes the collateral pricing pair and freshness gate.
type PriceFeedConfig struct {
	Base     string   `toml:"base"`
	Quote    string   `toml:"quote"`
	MaxAge   Duration `toml:"max_age"`
	MinFeeds int      `toml:"min_feeds"`
}

// ParamsConfig seeds the protocol parameters applied on first boot. Fields
// left zero fall back to the module defaults.
type ParamsConfig struct {
	PointsPerCollateralUnit uint64 `toml:"points_per_unit"`
	MaxTotalSupply          uint64 `toml:"max_total_supply"`
	GlobalDailyMintCap      uint64 `toml:"global_daily_mint_cap"`
	MaxPointsPerMint        uint64 `toml:"max_points_per_mint"`
	MinimumVaultDeposit     uint64 `toml:"minimum_vault_deposit"`
	DailyQuotaFractionBps   uint32 `toml:"daily_quota_fraction_bps"`
	SafetyBufferBps         uint32 `toml:"safety_buffer_bps"`
	Treasury                string `toml:"treasury"`
}

// Load reads and validates configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7160"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "nectard.db"
	}
	if cfg.PartnersFile == "" {
		cfg.PartnersFile = "partners.yaml"
	}
	if cfg.Auth.TimestampSkew.Duration <= 0 {
		cfg.Auth.TimestampSkew.Duration = 2 * time.Minute
	}
	if cfg.Auth.NonceTTL.Duration <= 0 {
		cfg.Auth.NonceTTL.Duration = 10 * time.Minute
	}
	if cfg.Auth.NonceCapacity <= 0 {
		cfg.Auth.NonceCapacity = 4096
	}
	if cfg.Rate.PartnerPerMinute <= 0 {
		cfg.Rate.PartnerPerMinute = 120
	}
	if cfg.Rate.PartnerBurst <= 0 {
		cfg.Rate.PartnerBurst = 10
	}
	if cfg.Rate.AdminPerMinute <= 0 {
		cfg.Rate.AdminPerMinute = 60
	}
	if cfg.Rate.AdminBurst <= 0 {
		cfg.Rate.AdminBurst = 5
	}
	if cfg.PriceFeed.Base == "" {
		cfg.PriceFeed.Base = "USD"
	}
	if cfg.PriceFeed.Quote == "" {
		cfg.PriceFeed.Quote = "COL"
	}
	if cfg.PriceFeed.MaxAge.Duration <= 0 {
		cfg.PriceFeed.MaxAge.Duration = 2 * time.Minute
	}
	if cfg.PriceFeed.MinFeeds <= 0 {
		cfg.PriceFeed.MinFeeds = 1
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = "nectar-admin"
	}
	if cfg.Admin.Audience == "" {
		cfg.Admin.Audience = "nectar"
	}
}

func validate(cfg Config) error {
	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.Secret) == "" {
		return fmt.Errorf("admin auth enabled but no secret configured")
	}
	if cfg.Params.MaxTotalSupply == 0 {
		return fmt.Errorf("params.max_total_supply must be configured")
	}
	if strings.TrimSpace(cfg.Params.Treasury) == "" {
		return fmt.Errorf("params.treasury must be configured")
	}
	return nil
}

// WriteExample emits a commented example configuration, used by the -init
// flag.
func WriteExample(path string) error {
	const example = `listen = ":7160"
env = "dev"
allowed_origins = ["https://console.example.com"]
database = "nectard.db"
state = "nectard-state"
partners_file = "partners.yaml"

[admin]
enabled = true
secret = "change-me"
issuer = "nectar-admin"
audience = "nectar"

[auth]
timestamp_skew = "2m"
nonce_ttl = "10m"
nonce_capacity = 4096

[rate]
partner_rpm = 120.0
partner_burst = 10
admin_rpm = 60.0
admin_burst = 5

[pricefeed]
base = "USD"
quote = "COL"
max_age = "2m"
min_feeds = 1

[params]
points_per_unit = 1000
max_total_supply = 10000000000
global_daily_mint_cap = 100000000
max_points_per_mint = 10000000
minimum_vault_deposit = 10000
daily_quota_fraction_bps = 500
safety_buffer_bps = 11000
treasury = "nec1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqvv9g3t"
`
	return os.WriteFile(path, []byte(example), 0o600)
}
