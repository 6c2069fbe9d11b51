package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	sale "tokensale/native/sale"
)

const (
	eventKindPurchase = "purchase_completed"
	eventKindConfig   = "config_changed"
)

// Journal adapts the storage event table to the engine's sink interface. The
// engine has already committed by the time an event is emitted, so journal
// write failures are logged rather than propagated.
type Journal struct {
	store *Storage
}

// NewJournal constructs an event journal over the supplied storage.
func NewJournal(store *Storage) *Journal {
	return &Journal{store: store}
}

// PurchaseCompleted records a committed purchase in the journal.
func (j *Journal) PurchaseCompleted(evt sale.PurchaseEvent) {
	if j == nil || j.store == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"participant": evt.Participant.Hex(),
		"asset":       evt.Asset,
		"amount_in":   evt.AmountIn.String(),
		"usd_value":   evt.USDValue.String(),
		"tokens_out":  evt.TokensOut.String(),
	})
	if err != nil {
		slog.Error("saled: encode purchase event", "error", err)
		return
	}
	if err := j.store.AppendEvent(context.Background(), eventKindPurchase, string(payload), time.Unix(evt.CreatedAt, 0)); err != nil {
		slog.Error("saled: journal purchase event", "error", err)
	}
}

// ConfigChanged records an admin configuration change in the journal.
func (j *Journal) ConfigChanged(chg sale.ConfigChange) {
	if j == nil || j.store == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"field": chg.Field,
		"value": chg.Value,
	})
	if err != nil {
		slog.Error("saled: encode config event", "error", err)
		return
	}
	if err := j.store.AppendEvent(context.Background(), eventKindConfig, string(payload), time.Unix(chg.ChangedAt, 0)); err != nil {
		slog.Error("saled: journal config event", "error", err)
	}
}
