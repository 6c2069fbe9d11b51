package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tokensale/native/sale"
	"tokensale/observability/logging"
	telemetry "tokensale/observability/otel"
	"tokensale/services/saled/config"
	"tokensale/services/saled/feeds"
	"tokensale/services/saled/server"
	"tokensale/services/saled/storage"
	"tokensale/services/saled/treasury"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/saled/config.yaml", "path to saled configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SALE_ENV"))
	logging.Setup("saled", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("saled: load config: %v", err)
	}

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if otlpEndpoint == "" {
		otlpEndpoint = cfg.Telemetry.Endpoint
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "saled",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("saled: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("saled: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("saled: open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	seed, err := sale.ParseBaseUnits(cfg.Treasury.SeedInventory)
	if err != nil {
		log.Fatalf("saled: parse seed inventory: %v", err)
	}
	vault, err := treasury.Open(ctx, store, seed)
	if err != nil {
		log.Fatalf("saled: open treasury: %v", err)
	}

	registry := sale.NewRegistry()
	cachedFeeds := make([]*feeds.CachedFeed, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assetCfg, cached, err := buildAsset(asset)
		if err != nil {
			log.Fatalf("saled: configure asset %s: %v", asset.Symbol, err)
		}
		if err := registry.SetConfig(asset.Symbol, assetCfg); err != nil {
			log.Fatalf("saled: register asset %s: %v", asset.Symbol, err)
		}
		if cached != nil {
			cachedFeeds = append(cachedFeeds, cached)
		}
	}

	params, err := buildParams(cfg.Sale)
	if err != nil {
		log.Fatalf("saled: sale parameters: %v", err)
	}

	engine, err := sale.NewEngine(registry, sale.NewLedger(store), params, vault, vault, storage.NewJournal(store))
	if err != nil {
		log.Fatalf("saled: engine: %v", err)
	}

	var authenticator *server.Authenticator
	if strings.TrimSpace(cfg.AdminToken) != "" {
		authenticator, err = server.NewAuthenticator(cfg.AdminToken)
		if err != nil {
			log.Fatalf("saled: configure admin auth: %v", err)
		}
	} else {
		log.Printf("saled: WARNING: admin token not configured, admin API disabled")
	}

	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, engine, store, nil, authenticator)
	if err != nil {
		log.Fatalf("saled: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cachedFeeds) > 0 {
		mgr, err := feeds.New(store, cachedFeeds, cfg.Feeds.Interval.Duration)
		if err != nil {
			log.Fatalf("saled: feed manager: %v", err)
		}
		if err := mgr.Restore(ctx); err != nil {
			log.Printf("saled: restore feeds: %v", err)
		}
		go func() {
			if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("saled: feed manager exited: %v", err)
				stop()
			}
		}()
	}

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("saled: http server error: %v", err)
		os.Exit(1)
	}
}

func buildAsset(asset config.Asset) (sale.AssetConfig, *feeds.CachedFeed, error) {
	cfg := sale.AssetConfig{Accepted: true, Native: asset.Native, Decimals: asset.Decimals}
	switch asset.Mode {
	case "static":
		price, err := sale.ParseUSD(asset.StaticPriceUSD)
		if err != nil {
			return sale.AssetConfig{}, nil, err
		}
		cfg.Mode = sale.ModeStatic
		cfg.StaticPriceUSD = price
		return cfg, nil, nil
	case "oracle":
		source := sale.NewHTTPFeed(nil, asset.Feed.Endpoint, asset.Feed.APIKey)
		cached := feeds.NewCachedFeed(asset.Symbol, source)
		minPrice, err := parseOptionalInt(asset.Feed.MinPrice)
		if err != nil {
			return sale.AssetConfig{}, nil, err
		}
		maxPrice, err := parseOptionalInt(asset.Feed.MaxPrice)
		if err != nil {
			return sale.AssetConfig{}, nil, err
		}
		cfg.Mode = sale.ModeOracle
		cfg.Oracle = sale.OracleParams{
			Feed:         cached,
			MaxStaleness: asset.Feed.MaxStaleness.Duration,
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
		}
		return cfg, cached, nil
	default:
		return sale.AssetConfig{}, nil, errors.New("unknown pricing mode")
	}
}

func buildParams(cfg config.SaleConfig) (sale.Params, error) {
	price, err := sale.ParseUSD(cfg.TokenPriceUSD)
	if err != nil {
		return sale.Params{}, err
	}
	hardCap, err := sale.ParseUSD(cfg.HardCapUSD)
	if err != nil {
		return sale.Params{}, err
	}
	walletCap, err := sale.ParseUSD(cfg.WalletCapUSD)
	if err != nil {
		return sale.Params{}, err
	}
	return sale.Params{
		TokenPriceUSD:  price,
		OutputDecimals: cfg.OutputDecimals,
		Window:         sale.Window{Start: cfg.WindowStart, End: cfg.WindowEnd},
		HardCapUSD:     hardCap,
		WalletCapUSD:   walletCap,
	}, nil
}

func parseOptionalInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("invalid integer bound")
	}
	return value, nil
}
