package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sale:
  token_price_usd: "0.01"
assets:
  - symbol: usdc
    decimals: 6
    mode: static
    static_price_usd: "1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7082", cfg.ListenAddress)
	require.Equal(t, "/var/data/saled.sqlite", cfg.DatabasePath)
	require.Equal(t, 30*time.Second, cfg.Feeds.Interval.Duration)
	require.Equal(t, "USDC", cfg.Assets[0].Symbol)
	require.Equal(t, 2*time.Minute, cfg.Assets[0].Feed.MaxStaleness.Duration)
}

func TestLoadParsesWindowAndFeeds(t *testing.T) {
	path := writeConfig(t, `
sale:
  token_price_usd: "0.01"
  window_start: 2026-09-01T00:00:00Z
  window_end: 2026-10-01T00:00:00Z
assets:
  - symbol: ETH
    decimals: 18
    native: true
    mode: oracle
    feed:
      endpoint: "https://feeds.example.com/eth-usd"
      max_staleness: 5m
feeds:
  interval: 10s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), cfg.Sale.WindowStart)
	require.Equal(t, 10*time.Second, cfg.Feeds.Interval.Duration)
	require.Equal(t, 5*time.Minute, cfg.Assets[0].Feed.MaxStaleness.Duration)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"missing token price", `
assets:
  - symbol: USDC
    decimals: 6
    mode: static
    static_price_usd: "1"
`},
		{"no assets", `
sale:
  token_price_usd: "0.01"
`},
		{"static without price", `
sale:
  token_price_usd: "0.01"
assets:
  - symbol: USDC
    decimals: 6
    mode: static
`},
		{"oracle without endpoint", `
sale:
  token_price_usd: "0.01"
assets:
  - symbol: ETH
    decimals: 18
    mode: oracle
`},
		{"non-native without decimals", `
sale:
  token_price_usd: "0.01"
assets:
  - symbol: USDC
    mode: static
    static_price_usd: "1"
`},
		{"inverted window", `
sale:
  token_price_usd: "0.01"
  window_start: 2026-10-01T00:00:00Z
  window_end: 2026-09-01T00:00:00Z
assets:
  - symbol: USDC
    decimals: 6
    mode: static
    static_price_usd: "1"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
