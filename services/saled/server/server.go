package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	sale "tokensale/native/sale"
	"tokensale/services/saled/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// Server hosts the public sale API and the authenticated admin surface.
type Server struct {
	cfg     Config
	engine  *sale.Engine
	storage *storage.Storage
	logger  *slog.Logger
	auth    *Authenticator
}

// New constructs a new HTTP server. The authenticator may be nil, in which
// case the admin surface is not mounted.
func New(cfg Config, engine *sale.Engine, store *storage.Storage, logger *slog.Logger, auth *Authenticator) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, storage: store, logger: logger, auth: auth}, nil
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/sale", func(sr chi.Router) {
		sr.Get("/status", s.handleStatus)
		sr.Post("/preview", s.handlePreview)
		sr.Post("/purchase", s.handlePurchase)
		sr.Get("/purchases", s.handleListPurchases)
	})
	if s.auth != nil {
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(s.auth.Middleware)
			ar.Put("/price", s.handleSetPrice)
			ar.Put("/caps", s.handleSetCaps)
			ar.Put("/window", s.handleSetWindow)
			ar.Put("/assets/{symbol}", s.handleSetAsset)
			ar.Delete("/assets/{symbol}", s.handleDisableAsset)
		})
	}
	return otelhttp.NewHandler(r, "saled.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("saled: http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status()
	if err != nil {
		s.logger.Error("saled: status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "status unavailable")
		return
	}
	payload := map[string]any{
		"open":             status.Open,
		"total_raised_usd": status.TotalRaised.String(),
		"token_price_usd":  status.Params.TokenPriceUSD.String(),
		"output_decimals":  status.Params.OutputDecimals,
		"assets":           status.Assets,
	}
	if !status.Params.Window.Start.IsZero() {
		payload["window_start"] = status.Params.Window.Start.UTC().Format(time.RFC3339)
	}
	if !status.Params.Window.End.IsZero() {
		payload["window_end"] = status.Params.Window.End.UTC().Format(time.RFC3339)
	}
	if status.Params.HardCapUSD != nil && status.Params.HardCapUSD.Sign() > 0 {
		payload["hard_cap_usd"] = status.Params.HardCapUSD.String()
	}
	if status.Params.WalletCapUSD != nil && status.Params.WalletCapUSD.Sign() > 0 {
		payload["wallet_cap_usd"] = status.Params.WalletCapUSD.String()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	amount, err := sale.ParseBaseUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	tokens, usd, err := s.engine.Preview(r.Context(), req.Asset, amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tokens_out": tokens.String(),
		"usd_value":  usd.String(),
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Participant string `json:"participant"`
		Asset       string `json:"asset"`
		Amount      string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	if !ethcommon.IsHexAddress(strings.TrimSpace(req.Participant)) {
		writeError(w, http.StatusBadRequest, "invalid_participant", "participant must be a hex address")
		return
	}
	participant := ethcommon.HexToAddress(strings.TrimSpace(req.Participant))
	amount, err := sale.ParseBaseUnits(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	receipt, err := s.engine.Purchase(r.Context(), participant, req.Asset, amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	id, err := s.storage.RecordPurchase(r.Context(), receipt)
	if err != nil {
		// The purchase is committed; the history row is best effort.
		s.logger.Error("saled: record purchase", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"participant": receipt.Participant.Hex(),
		"asset":       receipt.Asset,
		"amount_in":   receipt.AmountIn.String(),
		"usd_value":   receipt.USDValue.String(),
		"tokens_out":  receipt.TokensOut.String(),
		"created_at":  receipt.CreatedAt,
	})
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	participant := strings.TrimSpace(r.URL.Query().Get("participant"))
	if participant != "" {
		if !ethcommon.IsHexAddress(participant) {
			writeError(w, http.StatusBadRequest, "invalid_participant", "participant must be a hex address")
			return
		}
		participant = ethcommon.HexToAddress(participant).Hex()
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.storage.ListPurchases(r.Context(), participant, limit)
	if err != nil {
		s.logger.Error("saled: list purchases", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "purchase history unavailable")
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"participant": rec.Participant,
			"asset":       rec.Asset,
			"amount_in":   rec.AmountIn,
			"usd_value":   rec.USDValue,
			"tokens_out":  rec.TokensOut,
			"created_at":  rec.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": out})
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenPriceUSD string `json:"token_price_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	price, err := sale.ParseUSD(req.TokenPriceUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}
	if err := s.engine.SetTokenPrice(price); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCaps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HardCapUSD   string `json:"hard_cap_usd"`
		WalletCapUSD string `json:"wallet_cap_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	hardCap, err := parseOptionalUSD(req.HardCapUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cap", err.Error())
		return
	}
	walletCap, err := parseOptionalUSD(req.WalletCapUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cap", err.Error())
		return
	}
	if err := s.engine.SetCaps(hardCap, walletCap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cap", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	window := sale.Window{}
	if raw := strings.TrimSpace(req.Start); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "start must be RFC3339")
			return
		}
		window.Start = parsed
	}
	if raw := strings.TrimSpace(req.End); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "end must be RFC3339")
			return
		}
		window.End = parsed
	}
	if err := s.engine.SetWindow(window); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	var req struct {
		Decimals       uint8  `json:"decimals"`
		Native         bool   `json:"native"`
		Mode           string `json:"mode"`
		StaticPriceUSD string `json:"static_price_usd"`
		Feed           struct {
			Endpoint     string `json:"endpoint"`
			APIKey       string `json:"api_key"`
			MaxStaleness string `json:"max_staleness"`
			MinPrice     string `json:"min_price"`
			MaxPrice     string `json:"max_price"`
		} `json:"feed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	cfg := sale.AssetConfig{Accepted: true, Native: req.Native, Decimals: req.Decimals}
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "static", "":
		cfg.Mode = sale.ModeStatic
		price, err := sale.ParseUSD(req.StaticPriceUSD)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_asset", err.Error())
			return
		}
		cfg.StaticPriceUSD = price
	case "oracle":
		cfg.Mode = sale.ModeOracle
		cfg.Oracle.Feed = sale.NewHTTPFeed(nil, req.Feed.Endpoint, req.Feed.APIKey)
		if raw := strings.TrimSpace(req.Feed.MaxStaleness); raw != "" {
			staleness, err := time.ParseDuration(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_asset", "max_staleness must be a duration")
				return
			}
			cfg.Oracle.MaxStaleness = staleness
		}
		minPrice, err := parseOptionalInt(req.Feed.MinPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_asset", err.Error())
			return
		}
		maxPrice, err := parseOptionalInt(req.Feed.MaxPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_asset", err.Error())
			return
		}
		cfg.Oracle.MinPrice = minPrice
		cfg.Oracle.MaxPrice = maxPrice
	default:
		writeError(w, http.StatusBadRequest, "invalid_asset", "unknown pricing mode")
		return
	}
	if err := s.engine.SetAssetConfig(symbol, cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_asset", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := s.engine.DisableAsset(symbol); err != nil {
		if errors.Is(err, sale.ErrAssetNotAccepted) {
			writeError(w, http.StatusNotFound, "unknown_asset", "asset not configured")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_asset", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sale.ErrAmountZero):
		writeError(w, http.StatusBadRequest, "amount_zero", "amount must be positive")
	case errors.Is(err, sale.ErrZeroOutput):
		writeError(w, http.StatusBadRequest, "zero_output", "amount too small to mint any tokens")
	case errors.Is(err, sale.ErrDecimalOverflow):
		writeError(w, http.StatusBadRequest, "decimal_overflow", "decimal configuration out of range")
	case errors.Is(err, sale.ErrAssetNotAccepted):
		writeError(w, http.StatusUnprocessableEntity, "asset_not_accepted", "asset is not accepted")
	case errors.Is(err, sale.ErrOracleStale):
		writeError(w, http.StatusServiceUnavailable, "oracle_stale", "price feed is stale")
	case errors.Is(err, sale.ErrOracleOutOfBounds):
		writeError(w, http.StatusServiceUnavailable, "oracle_out_of_bounds", "price feed outside configured bounds")
	case errors.Is(err, sale.ErrSaleClosed):
		writeError(w, http.StatusConflict, "sale_closed", "sale window is closed")
	case errors.Is(err, sale.ErrCapExceeded):
		writeError(w, http.StatusConflict, "cap_exceeded", "purchase would exceed the sale hard cap")
	case errors.Is(err, sale.ErrWalletCapExceeded):
		writeError(w, http.StatusConflict, "wallet_cap_exceeded", "purchase would exceed the wallet cap")
	default:
		s.logger.Error("saled: engine error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "purchase failed")
	}
}

func parseOptionalUSD(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return sale.ParseUSD(raw)
}

func parseOptionalInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
