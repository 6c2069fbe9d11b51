package sale

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// PurchaseEvent records a committed purchase for downstream consumers.
type PurchaseEvent struct {
	Participant ethcommon.Address
	Asset       string
	AmountIn    *big.Int
	USDValue    *big.Int
	TokensOut   *big.Int
	CreatedAt   int64
}

// ConfigChange records an admin mutation of the sale configuration.
type ConfigChange struct {
	Field     string
	Value     string
	ChangedAt int64
}

// EventSink receives the append-only event stream emitted by the engine.
type EventSink interface {
	PurchaseCompleted(event PurchaseEvent)
	ConfigChanged(change ConfigChange)
}

// NopSink discards all events. It is the default when no sink is wired.
type NopSink struct{}

// PurchaseCompleted implements EventSink.
func (NopSink) PurchaseCompleted(PurchaseEvent) {}

// ConfigChanged implements EventSink.
func (NopSink) ConfigChanged(ConfigChange) {}
