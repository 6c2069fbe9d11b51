package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	sale "tokensale/native/sale"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	store, err := Open("file:saled_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLedgerPersistsThroughKV(t *testing.T) {
	store := openTestDB(t)
	ledger := sale.NewLedger(store)
	var alice ethcommon.Address
	alice[19] = 1
	usd := new(big.Int).Mul(big.NewInt(25), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if err := ledger.Account(alice, usd, nil, nil); err != nil {
		t.Fatalf("account: %v", err)
	}
	// A fresh ledger over the same store sees the committed totals.
	reloaded := sale.NewLedger(store)
	raised, err := reloaded.TotalRaised()
	if err != nil {
		t.Fatalf("total raised: %v", err)
	}
	if raised.Cmp(usd) != 0 {
		t.Fatalf("unexpected total %s", raised)
	}
	spent, err := reloaded.Spent(alice)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if spent.Cmp(usd) != 0 {
		t.Fatalf("unexpected spent %s", spent)
	}
}

func TestRecordAndListPurchases(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	var alice ethcommon.Address
	alice[19] = 1
	receipt := &sale.Receipt{
		Participant: alice,
		Asset:       "USDC",
		AmountIn:    big.NewInt(100_000_000),
		USDValue:    big.NewInt(100),
		TokensOut:   big.NewInt(11000),
		CreatedAt:   1700000000,
	}
	id, err := store.RecordPurchase(ctx, receipt)
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	if id == "" {
		t.Fatalf("expected purchase id")
	}
	records, err := store.ListPurchases(ctx, alice.Hex(), 10)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("unexpected count %d", len(records))
	}
	if records[0].ID != id || records[0].Asset != "USDC" || records[0].TokensOut != "11000" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	other, err := store.ListPurchases(ctx, "0xunknown", 10)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no records, got %d", len(other))
	}
}

func TestJournalAppendsEvents(t *testing.T) {
	store := openTestDB(t)
	journal := NewJournal(store)
	var alice ethcommon.Address
	alice[19] = 1
	journal.PurchaseCompleted(sale.PurchaseEvent{
		Participant: alice,
		Asset:       "USDC",
		AmountIn:    big.NewInt(1),
		USDValue:    big.NewInt(2),
		TokensOut:   big.NewInt(3),
		CreatedAt:   1700000000,
	})
	journal.ConfigChanged(sale.ConfigChange{Field: "caps", Value: "hard=1 wallet=2", ChangedAt: 1700000100})
	events, err := store.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("unexpected count %d", len(events))
	}
	if events[0].Kind != eventKindPurchase || events[1].Kind != eventKindConfig {
		t.Fatalf("unexpected kinds: %+v", events)
	}
}

func TestFeedSamples(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	observed := time.Unix(1700000000, 0).UTC()
	reading := sale.Reading{Price: big.NewInt(2000_00000000), Decimals: 8, UpdatedAt: observed}
	if err := store.RecordFeedSample(ctx, "eth", reading, observed.Add(time.Second)); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	latest, ok, err := store.LatestFeedSample(ctx, "ETH")
	if err != nil {
		t.Fatalf("latest sample: %v", err)
	}
	if !ok {
		t.Fatalf("expected sample")
	}
	if latest.Price.Cmp(reading.Price) != 0 || latest.Decimals != 8 {
		t.Fatalf("unexpected sample: %+v", latest)
	}
	if !latest.UpdatedAt.Equal(observed) {
		t.Fatalf("unexpected timestamp %v", latest.UpdatedAt)
	}
	_, ok, err = store.LatestFeedSample(ctx, "BTC")
	if err != nil {
		t.Fatalf("missing sample: %v", err)
	}
	if ok {
		t.Fatalf("expected no sample for BTC")
	}
}

func TestTreasuryPersistence(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	_, ok, err := store.LoadTreasury(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if ok {
		t.Fatalf("expected empty treasury")
	}
	balance := TreasuryBalance{Available: big.NewInt(1_000_000), Delivered: big.NewInt(0)}
	if err := store.SaveTreasury(ctx, balance); err != nil {
		t.Fatalf("save: %v", err)
	}
	balance.Available = big.NewInt(989_000)
	balance.Delivered = big.NewInt(11_000)
	if err := store.SaveTreasury(ctx, balance); err != nil {
		t.Fatalf("update: %v", err)
	}
	loaded, ok, err := store.LoadTreasury(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected treasury record")
	}
	if loaded.Available.Cmp(big.NewInt(989_000)) != 0 || loaded.Delivered.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("unexpected balances: %+v", loaded)
	}
}
