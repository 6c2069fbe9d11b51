package sale

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// maxDecimalExponent bounds decimals+feedDecimals so that 10^(decimals+feedDecimals)
// stays comfortably inside fixed-width integer territory for downstream consumers.
// Feeds reporting wider scales are misconfigured.
const maxDecimalExponent = 59

// Registry stores the per-asset payment configuration. Symbols are canonicalised
// to upper case so lookups remain consistent regardless of caller casing.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]AssetConfig
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]AssetConfig)}
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetConfig validates and stores the configuration for the supplied asset.
func (r *Registry) SetConfig(symbol string, cfg AssetConfig) error {
	if r == nil {
		return fmt.Errorf("sale: registry not initialised")
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("sale: asset symbol required")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	r.assets[sym] = cfg.Clone()
	r.mu.Unlock()
	return nil
}

func validateConfig(cfg AssetConfig) error {
	if !cfg.Native && cfg.Decimals == 0 {
		return fmt.Errorf("sale: non-native asset requires decimals")
	}
	switch cfg.Mode {
	case ModeStatic:
		if cfg.StaticPriceUSD == nil || cfg.StaticPriceUSD.Sign() <= 0 {
			return fmt.Errorf("sale: static price must be positive")
		}
	case ModeOracle:
		if cfg.Oracle.Feed == nil {
			return fmt.Errorf("sale: oracle feed required")
		}
		if cfg.Oracle.MinPrice != nil && cfg.Oracle.MaxPrice != nil &&
			cfg.Oracle.MinPrice.Sign() > 0 && cfg.Oracle.MaxPrice.Sign() > 0 &&
			cfg.Oracle.MinPrice.Cmp(cfg.Oracle.MaxPrice) > 0 {
			return fmt.Errorf("sale: oracle price bounds inverted")
		}
		if cfg.Oracle.MaxStaleness < 0 {
			return fmt.Errorf("sale: oracle staleness must not be negative")
		}
	default:
		return fmt.Errorf("sale: unknown pricing mode %d", cfg.Mode)
	}
	return nil
}

// Config returns the configuration for an accepted asset. Unknown or disabled
// assets report ErrAssetNotAccepted.
func (r *Registry) Config(symbol string) (AssetConfig, error) {
	if r == nil {
		return AssetConfig{}, fmt.Errorf("sale: registry not initialised")
	}
	sym := normaliseSymbol(symbol)
	r.mu.RLock()
	cfg, ok := r.assets[sym]
	r.mu.RUnlock()
	if !ok || !cfg.Accepted {
		return AssetConfig{}, ErrAssetNotAccepted
	}
	return cfg.Clone(), nil
}

// Disable clears the acceptance flag without altering the remaining fields.
// This is the supported mechanism for retiring a payment method.
func (r *Registry) Disable(symbol string) error {
	if r == nil {
		return fmt.Errorf("sale: registry not initialised")
	}
	sym := normaliseSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.assets[sym]
	if !ok {
		return ErrAssetNotAccepted
	}
	cfg.Accepted = false
	r.assets[sym] = cfg
	return nil
}

// Symbols lists the configured asset symbols in sorted order.
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.assets))
	for sym := range r.assets {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of every configured asset.
func (r *Registry) Snapshot() map[string]AssetConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]AssetConfig, len(r.assets))
	for sym, cfg := range r.assets {
		out[sym] = cfg.Clone()
	}
	return out
}
