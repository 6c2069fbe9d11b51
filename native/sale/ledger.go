package sale

import (
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the subset of state access required by the cap ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type amountRecord struct {
	Amount string
}

// Ledger tracks the cumulative USD raised globally and per participant. Both
// counters are monotonic non-decreasing and are mutated exclusively by the
// purchase pipeline; cap enforcement is check-then-commit so a rejected
// purchase leaves no trace in either counter.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) total(key []byte) (*big.Int, error) {
	var record amountRecord
	ok, err := l.store.KVGet(key, &record)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(record.Amount) == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(record.Amount), 10)
	if !ok {
		return nil, fmt.Errorf("sale: invalid ledger amount %q", record.Amount)
	}
	return value, nil
}

func (l *Ledger) put(key []byte, value *big.Int) error {
	return l.store.KVPut(key, amountRecord{Amount: value.String()})
}

// TotalRaised returns the cumulative USD value accepted across all participants.
func (l *Ledger) TotalRaised() (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("sale: ledger not initialised")
	}
	return l.total(totalRaisedKey)
}

// Spent returns the cumulative USD value contributed by the participant.
func (l *Ledger) Spent(participant ethcommon.Address) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("sale: ledger not initialised")
	}
	return l.total(participantKey(participant))
}

// Account enforces the global and per-participant ceilings and commits both
// counters as one unit. Prospective totals are computed before either counter
// mutates: a cap rejection leaves both counters untouched, and a persistence
// failure on the second write reverts the first.
func (l *Ledger) Account(participant ethcommon.Address, usdValue, hardCap, walletCap *big.Int) error {
	if l == nil {
		return fmt.Errorf("sale: ledger not initialised")
	}
	if usdValue == nil || usdValue.Sign() <= 0 {
		return fmt.Errorf("sale: usd value must be positive")
	}
	raised, err := l.total(totalRaisedKey)
	if err != nil {
		return err
	}
	spent, err := l.total(participantKey(participant))
	if err != nil {
		return err
	}
	newRaised := new(big.Int).Add(raised, usdValue)
	newSpent := new(big.Int).Add(spent, usdValue)
	if hardCap != nil && hardCap.Sign() > 0 && newRaised.Cmp(hardCap) > 0 {
		return ErrCapExceeded
	}
	if walletCap != nil && walletCap.Sign() > 0 && newSpent.Cmp(walletCap) > 0 {
		return ErrWalletCapExceeded
	}
	if err := l.put(totalRaisedKey, newRaised); err != nil {
		return err
	}
	if err := l.put(participantKey(participant), newSpent); err != nil {
		if revertErr := l.put(totalRaisedKey, raised); revertErr != nil {
			return fmt.Errorf("sale: revert raised total: %v (after %w)", revertErr, err)
		}
		return err
	}
	return nil
}

// Unwind reverses a previously committed accounting entry. It exists solely so
// the purchase pipeline can preserve all-or-nothing semantics when token
// delivery fails after the ledger commit; it is not an admin operation.
func (l *Ledger) Unwind(participant ethcommon.Address, usdValue *big.Int) error {
	if l == nil {
		return fmt.Errorf("sale: ledger not initialised")
	}
	if usdValue == nil || usdValue.Sign() <= 0 {
		return fmt.Errorf("sale: usd value must be positive")
	}
	raised, err := l.total(totalRaisedKey)
	if err != nil {
		return err
	}
	spent, err := l.total(participantKey(participant))
	if err != nil {
		return err
	}
	newRaised := new(big.Int).Sub(raised, usdValue)
	if newRaised.Sign() < 0 {
		newRaised.SetInt64(0)
	}
	newSpent := new(big.Int).Sub(spent, usdValue)
	if newSpent.Sign() < 0 {
		newSpent.SetInt64(0)
	}
	if err := l.put(totalRaisedKey, newRaised); err != nil {
		return err
	}
	return l.put(participantKey(participant), newSpent)
}
