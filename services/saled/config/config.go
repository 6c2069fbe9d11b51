package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
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

// Config captures runtime configuration for saled.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	DatabasePath  string          `yaml:"database"`
	AdminToken    string          `yaml:"admin_token"`
	Sale          SaleConfig      `yaml:"sale"`
	Assets        []Asset         `yaml:"assets"`
	Feeds         FeedsConfig     `yaml:"feeds"`
	Treasury      TreasuryConfig  `yaml:"treasury"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// TreasuryConfig seeds the soft token inventory on first start.
type TreasuryConfig struct {
	SeedInventory string `yaml:"seed_inventory"`
}

// SaleConfig carries the sale-wide pricing and cap parameters. USD amounts are
// decimal strings ("0.01", "1000000") interpreted at 18 fractional decimals.
type SaleConfig struct {
	TokenPriceUSD  string    `yaml:"token_price_usd"`
	OutputDecimals uint8     `yaml:"output_decimals"`
	WindowStart    time.Time `yaml:"window_start"`
	WindowEnd      time.Time `yaml:"window_end"`
	HardCapUSD     string    `yaml:"hard_cap_usd"`
	WalletCapUSD   string    `yaml:"wallet_cap_usd"`
}

// Asset describes one accepted payment asset.
type Asset struct {
	Symbol         string `yaml:"symbol"`
	Decimals       uint8  `yaml:"decimals"`
	Native         bool   `yaml:"native"`
	Mode           string `yaml:"mode"`
	StaticPriceUSD string `yaml:"static_price_usd"`
	Feed           Feed   `yaml:"feed"`
}

// Feed configures the oracle source for an oracle-priced asset.
type Feed struct {
	Endpoint     string   `yaml:"endpoint"`
	APIKey       string   `yaml:"api_key"`
	MaxStaleness Duration `yaml:"max_staleness"`
	MinPrice     string   `yaml:"min_price"`
	MaxPrice     string   `yaml:"max_price"`
}

// FeedsConfig tunes the polling loop.
type FeedsConfig struct {
	Interval Duration `yaml:"interval"`
}

// TelemetryConfig controls the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7082"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/saled.sqlite"
	}
	if cfg.Feeds.Interval.Duration == 0 {
		cfg.Feeds.Interval.Duration = 30 * time.Second
	}
	for i := range cfg.Assets {
		cfg.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Assets[i].Symbol))
		if cfg.Assets[i].Mode == "" {
			cfg.Assets[i].Mode = "static"
		}
		if cfg.Assets[i].Feed.MaxStaleness.Duration == 0 {
			cfg.Assets[i].Feed.MaxStaleness.Duration = 2 * time.Minute
		}
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Sale.TokenPriceUSD) == "" {
		return fmt.Errorf("sale token price must be configured")
	}
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("at least one asset must be configured")
	}
	for _, asset := range cfg.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("asset symbol required")
		}
		switch asset.Mode {
		case "static":
			if strings.TrimSpace(asset.StaticPriceUSD) == "" {
				return fmt.Errorf("asset %s: static price required", asset.Symbol)
			}
		case "oracle":
			if strings.TrimSpace(asset.Feed.Endpoint) == "" {
				return fmt.Errorf("asset %s: feed endpoint required", asset.Symbol)
			}
		default:
			return fmt.Errorf("asset %s: unknown mode %q", asset.Symbol, asset.Mode)
		}
		if !asset.Native && asset.Decimals == 0 {
			return fmt.Errorf("asset %s: decimals required", asset.Symbol)
		}
	}
	if !cfg.Sale.WindowStart.IsZero() && !cfg.Sale.WindowEnd.IsZero() && cfg.Sale.WindowEnd.Before(cfg.Sale.WindowStart) {
		return fmt.Errorf("sale window end before start")
	}
	return nil
}
