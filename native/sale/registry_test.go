package sale

import (
	"math/big"
	"testing"
	"time"
)

func TestRegistrySetAndLookup(t *testing.T) {
	registry := NewRegistry()
	if err := registry.SetConfig("usdc", staticConfig(6, usd18(1))); err != nil {
		t.Fatalf("set config: %v", err)
	}
	cfg, err := registry.Config("USDC")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Decimals != 6 || cfg.Mode != ModeStatic {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestRegistryUnknownAsset(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Config("DOGE"); err != ErrAssetNotAccepted {
		t.Fatalf("expected ErrAssetNotAccepted, got %v", err)
	}
}

func TestRegistryDisablePreservesFields(t *testing.T) {
	registry := NewRegistry()
	if err := registry.SetConfig("USDT", staticConfig(6, usd18(1))); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := registry.Disable("USDT"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := registry.Config("USDT"); err != ErrAssetNotAccepted {
		t.Fatalf("expected ErrAssetNotAccepted after disable, got %v", err)
	}
	snapshot := registry.Snapshot()
	cfg, ok := snapshot["USDT"]
	if !ok {
		t.Fatalf("expected disabled asset in snapshot")
	}
	if cfg.Accepted {
		t.Fatalf("expected acceptance cleared")
	}
	if cfg.Decimals != 6 || cfg.StaticPriceUSD.Cmp(usd18(1)) != 0 {
		t.Fatalf("disable must not alter other fields: %+v", cfg)
	}
}

func TestRegistryValidation(t *testing.T) {
	registry := NewRegistry()
	if err := registry.SetConfig("BAD", staticConfig(0, usd18(1))); err == nil {
		t.Fatalf("expected error for non-native asset without decimals")
	}
	if err := registry.SetConfig("BAD", staticConfig(6, big.NewInt(0))); err == nil {
		t.Fatalf("expected error for zero static price")
	}
	if err := registry.SetConfig("BAD", oracleConfig(nil, 6, time.Minute, nil, nil)); err == nil {
		t.Fatalf("expected error for missing feed")
	}
	feed := NewManualFeed()
	if err := registry.SetConfig("BAD", oracleConfig(feed, 6, time.Minute, big.NewInt(100), big.NewInt(50))); err == nil {
		t.Fatalf("expected error for inverted bounds")
	}
	native := AssetConfig{Accepted: true, Native: true, Decimals: 18, Mode: ModeOracle, Oracle: OracleParams{Feed: feed}}
	if err := registry.SetConfig("ETH", native); err != nil {
		t.Fatalf("native asset config: %v", err)
	}
}

func TestRegistrySnapshotIsolated(t *testing.T) {
	registry := NewRegistry()
	if err := registry.SetConfig("USDC", staticConfig(6, usd18(1))); err != nil {
		t.Fatalf("set config: %v", err)
	}
	snapshot := registry.Snapshot()
	snapshot["USDC"].StaticPriceUSD.SetInt64(7)
	cfg, err := registry.Config("USDC")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.StaticPriceUSD.Cmp(usd18(1)) != 0 {
		t.Fatalf("snapshot mutation leaked into registry: %s", cfg.StaticPriceUSD)
	}
}
