package feeds

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	sale "tokensale/native/sale"
	"tokensale/services/saled/storage"
)

type scriptedSource struct {
	readings []sale.Reading
	errs     []error
	calls    int
}

func (s *scriptedSource) Read(context.Context) (sale.Reading, error) {
	idx := s.calls
	if idx >= len(s.readings) {
		idx = len(s.readings) - 1
	}
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return sale.Reading{}, s.errs[idx]
	}
	return s.readings[idx], nil
}

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.Open("file:feeds_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTickCachesAndPersists(t *testing.T) {
	store := openTestStore(t)
	observed := time.Unix(1700000000, 0).UTC()
	source := &scriptedSource{readings: []sale.Reading{{Price: big.NewInt(2000_00000000), Decimals: 8, UpdatedAt: observed}}}
	feed := NewCachedFeed("ETH", source)
	manager, err := New(store, []*CachedFeed{feed}, time.Second)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	manager.Tick(context.Background())

	reading, err := feed.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.Price.Cmp(big.NewInt(2000_00000000)) != 0 {
		t.Fatalf("unexpected price %s", reading.Price)
	}
	if source.calls != 1 {
		t.Fatalf("cached read must not hit upstream, calls=%d", source.calls)
	}
	persisted, ok, err := store.LatestFeedSample(context.Background(), "ETH")
	if err != nil || !ok {
		t.Fatalf("latest sample: %v ok=%v", err, ok)
	}
	if persisted.Price.Cmp(reading.Price) != 0 {
		t.Fatalf("unexpected persisted price %s", persisted.Price)
	}
}

func TestTickKeepsLastGoodReading(t *testing.T) {
	store := openTestStore(t)
	observed := time.Unix(1700000000, 0).UTC()
	source := &scriptedSource{
		readings: []sale.Reading{
			{Price: big.NewInt(100), Decimals: 2, UpdatedAt: observed},
			{},
		},
		errs: []error{nil, errors.New("upstream down")},
	}
	feed := NewCachedFeed("ETH", source)
	manager, err := New(store, []*CachedFeed{feed}, time.Second)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	manager.Tick(context.Background())
	manager.Tick(context.Background())

	reading, err := feed.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected last good reading, got %s", reading.Price)
	}
}

func TestRestoreSeedsCacheFromStorage(t *testing.T) {
	store := openTestStore(t)
	observed := time.Unix(1700000000, 0).UTC()
	sample := sale.Reading{Price: big.NewInt(42), Decimals: 2, UpdatedAt: observed}
	if err := store.RecordFeedSample(context.Background(), "ETH", sample, observed); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	source := &scriptedSource{readings: []sale.Reading{{}}, errs: []error{errors.New("unreachable")}}
	feed := NewCachedFeed("ETH", source)
	manager, err := New(store, []*CachedFeed{feed}, time.Second)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	reading, err := feed.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.Price.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected restored reading, got %s", reading.Price)
	}
	if source.calls != 0 {
		t.Fatalf("restored cache must not hit upstream, calls=%d", source.calls)
	}
}
