package treasury

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"tokensale/services/saled/storage"
)

// Treasury holds the soft inventory of output tokens and takes custody of
// incoming payments. Deliveries draw down the inventory and are persisted
// before the in-memory balance moves, so a restart never resurrects tokens
// that were already handed out.
type Treasury struct {
	mu        sync.Mutex
	store     *storage.Storage
	available *big.Int
	delivered *big.Int
}

// Open restores the treasury from storage, seeding the inventory on first run.
func Open(ctx context.Context, store *storage.Storage, seedInventory *big.Int) (*Treasury, error) {
	if store == nil {
		return nil, fmt.Errorf("treasury storage required")
	}
	balance, ok, err := store.LoadTreasury(ctx)
	if err != nil {
		return nil, fmt.Errorf("load treasury: %w", err)
	}
	if !ok {
		balance = storage.TreasuryBalance{Available: big.NewInt(0), Delivered: big.NewInt(0)}
		if seedInventory != nil && seedInventory.Sign() > 0 {
			balance.Available = new(big.Int).Set(seedInventory)
		}
		if err := store.SaveTreasury(ctx, balance); err != nil {
			return nil, fmt.Errorf("seed treasury: %w", err)
		}
	}
	return &Treasury{
		store:     store,
		available: new(big.Int).Set(balance.Available),
		delivered: new(big.Int).Set(balance.Delivered),
	}, nil
}

// Deliver hands tokens to the recipient, failing when the inventory cannot
// cover the amount.
func (t *Treasury) Deliver(ctx context.Context, recipient ethcommon.Address, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("treasury not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("delivery amount must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.available.Cmp(amount) < 0 {
		return fmt.Errorf("treasury inventory exhausted: have %s, need %s", t.available, amount)
	}
	newAvailable := new(big.Int).Sub(t.available, amount)
	newDelivered := new(big.Int).Add(t.delivered, amount)
	if err := t.store.SaveTreasury(ctx, storage.TreasuryBalance{Available: newAvailable, Delivered: newDelivered}); err != nil {
		return fmt.Errorf("persist delivery: %w", err)
	}
	t.available = newAvailable
	t.delivered = newDelivered
	return nil
}

// Collect records custody of an incoming payment.
func (t *Treasury) Collect(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("treasury not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("payment amount must be positive")
	}
	return t.store.RecordPayment(ctx, participant.Hex(), asset, amount, time.Now())
}

// Refund returns a collected payment whose purchase did not commit, so the
// custody trail never shows money taken without tokens delivered.
func (t *Treasury) Refund(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("treasury not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("refund amount must be positive")
	}
	return t.store.RecordRefund(ctx, participant.Hex(), asset, amount, time.Now())
}

// Available returns the remaining token inventory.
func (t *Treasury) Available() *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.available)
}

// Delivered returns the cumulative tokens handed out.
func (t *Treasury) Delivered() *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.delivered)
}
