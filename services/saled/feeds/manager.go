package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	sale "tokensale/native/sale"
	"tokensale/observability"
	"tokensale/services/saled/storage"
)

// CachedFeed serves the most recent successful observation from an upstream
// source. The engine still applies its own staleness and bounds checks on
// every read; the cache only decouples purchase latency from upstream latency.
type CachedFeed struct {
	symbol string
	source sale.FeedReader

	mu      sync.RWMutex
	reading sale.Reading
	set     bool
}

// NewCachedFeed wraps an upstream source for the supplied asset symbol.
func NewCachedFeed(symbol string, source sale.FeedReader) *CachedFeed {
	return &CachedFeed{symbol: symbol, source: source}
}

// Symbol returns the asset symbol this feed serves.
func (f *CachedFeed) Symbol() string {
	if f == nil {
		return ""
	}
	return f.symbol
}

// Read returns the cached observation, falling through to the upstream source
// when nothing has been cached yet.
func (f *CachedFeed) Read(ctx context.Context) (sale.Reading, error) {
	if f == nil {
		return sale.Reading{}, fmt.Errorf("feed not configured")
	}
	f.mu.RLock()
	if f.set {
		out := f.reading
		out.Price = new(big.Int).Set(f.reading.Price)
		f.mu.RUnlock()
		return out, nil
	}
	f.mu.RUnlock()
	return f.refresh(ctx)
}

func (f *CachedFeed) refresh(ctx context.Context) (sale.Reading, error) {
	reading, err := f.source.Read(ctx)
	if err != nil {
		return sale.Reading{}, err
	}
	f.store(reading)
	return reading, nil
}

func (f *CachedFeed) store(reading sale.Reading) {
	if reading.Price == nil {
		return
	}
	f.mu.Lock()
	f.reading = sale.Reading{
		Price:     new(big.Int).Set(reading.Price),
		Decimals:  reading.Decimals,
		UpdatedAt: reading.UpdatedAt,
	}
	f.set = true
	f.mu.Unlock()
}

// Manager periodically refreshes the cached feeds, persisting each successful
// observation for audit and publishing reading ages to metrics.
type Manager struct {
	logger   *slog.Logger
	store    *storage.Storage
	feeds    []*CachedFeed
	interval time.Duration
	metrics  *observability.SaleMetrics
	once     sync.Once
}

// New constructs a manager over the supplied cached feeds.
func New(store *storage.Storage, feeds []*CachedFeed, interval time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("at least one feed required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &Manager{
		logger:   slog.Default(),
		store:    store,
		feeds:    append([]*CachedFeed{}, feeds...),
		interval: interval,
		metrics:  observability.Sale(),
	}, nil
}

// Restore seeds the caches from the most recent persisted samples so a
// restarted service can quote before the first poll completes.
func (m *Manager) Restore(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	for _, feed := range m.feeds {
		reading, ok, err := m.store.LatestFeedSample(ctx, feed.Symbol())
		if err != nil {
			return fmt.Errorf("restore feed %s: %w", feed.Symbol(), err)
		}
		if ok {
			feed.store(reading)
		}
	}
	return nil
}

// Run blocks, polling upstream feeds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("saled: feed manager started", "feeds", len(m.feeds))
	})
	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick refreshes every feed once. Individual feed failures are logged and do
// not block the remaining feeds.
func (m *Manager) Tick(ctx context.Context) {
	if m == nil {
		return
	}
	now := time.Now()
	for _, feed := range m.feeds {
		reading, err := feed.refresh(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("saled: feed refresh failed", "symbol", feed.Symbol(), "error", err)
			continue
		}
		if err := m.store.RecordFeedSample(ctx, feed.Symbol(), reading, now); err != nil {
			m.logger.Warn("saled: record feed sample", "symbol", feed.Symbol(), "error", err)
		}
		if !reading.UpdatedAt.IsZero() {
			m.metrics.SetFeedAge(feed.Symbol(), now.Sub(reading.UpdatedAt))
		}
	}
}
