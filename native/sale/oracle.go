package sale

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// FeedReader reads a transient price observation from an external oracle. The
// reading is fetched fresh for every quote or purchase and never persisted.
type FeedReader interface {
	Read(ctx context.Context) (Reading, error)
}

var usdScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// ResolveUSDValue converts an asset amount into its USD value with 18 fractional
// decimals. Division truncates toward zero at every step; the truncation is the
// documented rounding policy, not an approximation error.
func ResolveUSDValue(ctx context.Context, cfg AssetConfig, amount *big.Int, now time.Time) (*big.Int, error) {
	if !cfg.Accepted {
		return nil, ErrAssetNotAccepted
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	switch cfg.Mode {
	case ModeOracle:
		if cfg.Oracle.Feed == nil {
			return nil, fmt.Errorf("sale: oracle feed not configured")
		}
		reading, err := cfg.Oracle.Feed.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("sale: read feed: %w", err)
		}
		if cfg.Oracle.MaxStaleness != 0 {
			if reading.UpdatedAt.IsZero() || now.Sub(reading.UpdatedAt) > cfg.Oracle.MaxStaleness {
				return nil, ErrOracleStale
			}
		}
		if reading.Price == nil || reading.Price.Sign() <= 0 {
			return nil, ErrOracleOutOfBounds
		}
		if cfg.Oracle.MinPrice != nil && cfg.Oracle.MinPrice.Sign() > 0 && reading.Price.Cmp(cfg.Oracle.MinPrice) < 0 {
			return nil, ErrOracleOutOfBounds
		}
		if cfg.Oracle.MaxPrice != nil && cfg.Oracle.MaxPrice.Sign() > 0 && reading.Price.Cmp(cfg.Oracle.MaxPrice) > 0 {
			return nil, ErrOracleOutOfBounds
		}
		exponent := int(cfg.Decimals) + int(reading.Decimals)
		if exponent > maxDecimalExponent {
			return nil, ErrDecimalOverflow
		}
		usd := new(big.Int).Mul(amount, reading.Price)
		usd.Mul(usd, usdScale)
		usd.Quo(usd, pow10(exponent))
		return usd, nil
	case ModeStatic:
		if cfg.StaticPriceUSD == nil || cfg.StaticPriceUSD.Sign() <= 0 {
			return nil, fmt.Errorf("sale: static price not configured")
		}
		usd := new(big.Int).Mul(amount, cfg.StaticPriceUSD)
		usd.Quo(usd, pow10(int(cfg.Decimals)))
		return usd, nil
	default:
		return nil, fmt.Errorf("sale: unknown pricing mode %d", cfg.Mode)
	}
}

// ManualFeed provides an in-memory feed used for tests and manual overrides
// during incident response.
type ManualFeed struct {
	mu      sync.RWMutex
	reading Reading
	set     bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied observation.
func (f *ManualFeed) Set(price *big.Int, decimals uint8, updatedAt time.Time) {
	if f == nil || price == nil {
		return
	}
	f.mu.Lock()
	f.reading = Reading{Price: new(big.Int).Set(price), UpdatedAt: updatedAt, Decimals: decimals}
	f.set = true
	f.mu.Unlock()
}

// Read returns the stored observation.
func (f *ManualFeed) Read(context.Context) (Reading, error) {
	if f == nil {
		return Reading{}, fmt.Errorf("sale: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Reading{}, fmt.Errorf("sale: manual feed has no observation")
	}
	out := f.reading
	if f.reading.Price != nil {
		out.Price = new(big.Int).Set(f.reading.Price)
	}
	return out, nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches price observations from a JSON endpoint. The endpoint is
// expected to return {"price": "<integer>", "decimals": <n>, "updated_at": <unix>}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPFeed constructs an HTTP feed adapter. When client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), apiKey: strings.TrimSpace(apiKey)}
}

// Read fetches a fresh observation from the upstream endpoint.
func (f *HTTPFeed) Read(ctx context.Context) (Reading, error) {
	if f == nil || f.endpoint == "" {
		return Reading{}, fmt.Errorf("sale: http feed not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Reading{}, err
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Reading{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reading{}, fmt.Errorf("sale: feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Decimals  uint8  `json:"decimals"`
		UpdatedAt int64  `json:"updated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Reading{}, fmt.Errorf("sale: decode feed: %w", err)
	}
	raw := strings.TrimSpace(payload.Price)
	if raw == "" {
		return Reading{}, fmt.Errorf("sale: feed returned empty price")
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Reading{}, fmt.Errorf("sale: feed returned invalid price %q", payload.Price)
	}
	return Reading{Price: price, UpdatedAt: time.Unix(payload.UpdatedAt, 0), Decimals: payload.Decimals}, nil
}
