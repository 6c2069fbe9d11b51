package treasury

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"tokensale/services/saled/storage"
)

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.Open("file:treasury_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTreasuryDeliverDrawsDownInventory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	treasury, err := Open(ctx, store, big.NewInt(20_000))
	if err != nil {
		t.Fatalf("open treasury: %v", err)
	}
	var alice ethcommon.Address
	alice[19] = 1
	if err := treasury.Deliver(ctx, alice, big.NewInt(11_000)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if treasury.Available().Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("unexpected available %s", treasury.Available())
	}
	if treasury.Delivered().Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("unexpected delivered %s", treasury.Delivered())
	}
	if err := treasury.Deliver(ctx, alice, big.NewInt(10_000)); err == nil {
		t.Fatalf("expected inventory exhaustion")
	}
	if treasury.Available().Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("failed delivery mutated inventory: %s", treasury.Available())
	}
}

func TestTreasuryRefundBalancesCustodyTrail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	treasury, err := Open(ctx, store, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("open treasury: %v", err)
	}
	var alice ethcommon.Address
	alice[19] = 1
	if err := treasury.Collect(ctx, alice, "USDC", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := treasury.Refund(ctx, alice, "USDC", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	records, err := store.ListPayments(ctx, alice.Hex())
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("unexpected payment count %d", len(records))
	}
	if records[0].Direction != storage.PaymentCollected || records[1].Direction != storage.PaymentRefunded {
		t.Fatalf("unexpected directions: %s, %s", records[0].Direction, records[1].Direction)
	}
	if records[1].Amount != "1000000" {
		t.Fatalf("refund amount mismatch: %s", records[1].Amount)
	}
}

func TestTreasurySurvivesRestart(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	treasury, err := Open(ctx, store, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("open treasury: %v", err)
	}
	var alice ethcommon.Address
	alice[19] = 1
	if err := treasury.Deliver(ctx, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// Reopening must restore the drawn-down balance, not reapply the seed.
	reopened, err := Open(ctx, store, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("reopen treasury: %v", err)
	}
	if reopened.Available().Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("unexpected available after restart %s", reopened.Available())
	}
	if reopened.Delivered().Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected delivered after restart %s", reopened.Delivered())
	}
}
