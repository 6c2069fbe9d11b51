package sale

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tokensale/observability"
)

// TokenDeliverer hands purchased tokens to the participant. A delivery failure
// aborts the whole pipeline and rolls the ledger back.
type TokenDeliverer interface {
	Deliver(ctx context.Context, recipient ethcommon.Address, amount *big.Int) error
}

// PaymentCollector takes custody of the incoming payment, either by receiving
// native value directly or by pulling a pre-approved asset amount. A collection
// failure aborts the pipeline before any ledger mutation. Refund compensates a
// collected payment when a later pipeline stage rejects or fails, so custody
// never outlives a purchase that did not commit.
type PaymentCollector interface {
	Collect(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) error
	Refund(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) error
}

// Engine executes the purchase pipeline: gate, registry lookup, price
// resolution, cap accounting, quote, delivery and event emission as one
// indivisible unit of work. A single mutex wraps every pipeline execution so
// no invocation observes ledger state mid-commit of another.
type Engine struct {
	mu        sync.Mutex
	registry  *Registry
	ledger    *Ledger
	params    Params
	deliverer TokenDeliverer
	collector PaymentCollector
	events    EventSink
	clock     func() time.Time
	metrics   *observability.SaleMetrics
	tracer    trace.Tracer
}

// NewEngine constructs an engine from its collaborators. The deliverer is
// required; collector and sink may be nil when payment custody or event
// consumption happen elsewhere.
func NewEngine(registry *Registry, ledger *Ledger, params Params, deliverer TokenDeliverer, collector PaymentCollector, sink EventSink) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("sale: registry required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("sale: ledger required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("sale: token deliverer required")
	}
	if params.TokenPriceUSD == nil || params.TokenPriceUSD.Sign() <= 0 {
		return nil, fmt.Errorf("sale: token price must be positive")
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		registry:  registry,
		ledger:    ledger,
		params:    params.Clone(),
		deliverer: deliverer,
		collector: collector,
		events:    sink,
		clock:     time.Now,
		metrics:   observability.Sale(),
		tracer:    otel.Tracer("native/sale"),
	}, nil
}

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.mu.Lock()
	e.clock = clock
	e.mu.Unlock()
}

// Registry exposes the asset registry for admin configuration surfaces.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Params returns a deep copy of the current sale parameters.
func (e *Engine) Params() Params {
	if e == nil {
		return Params{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// Preview computes the token output and USD value for a hypothetical purchase
// without mutating any state. It performs no gating and no access control, so
// it is safe to expose to anonymous callers.
func (e *Engine) Preview(ctx context.Context, asset string, amount *big.Int) (tokensOut, usdValue *big.Int, err error) {
	if e == nil {
		return nil, nil, fmt.Errorf("sale: engine not configured")
	}
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "sale.preview",
		trace.WithAttributes(attribute.String("asset", normaliseSymbol(asset))))
	defer span.End()
	tokensOut, usdValue, err = e.previewLocked(ctx, asset, amount)
	finishSpan(span, "preview ready", err)
	e.metrics.Observe("preview", e.now().Sub(start), err)
	return tokensOut, usdValue, err
}

func (e *Engine) previewLocked(ctx context.Context, asset string, amount *big.Int) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrAmountZero
	}
	cfg, err := e.registry.Config(asset)
	if err != nil {
		return nil, nil, err
	}
	usd, err := ResolveUSDValue(ctx, cfg, amount, e.clock())
	if err != nil {
		return nil, nil, err
	}
	quote, err := Quote(usd, e.params.TokenPriceUSD, e.params.OutputDecimals)
	if err != nil {
		return nil, nil, err
	}
	return quote.Total, usd, nil
}

// Purchase executes the full pipeline for one payment. Every failure aborts
// with zero observable state change; the ledger commit happens only after all
// upstream validation succeeds and is rolled back if delivery fails. A payment
// collected before a cap rejection or a failed delivery is refunded.
func (e *Engine) Purchase(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) (*Receipt, error) {
	if e == nil {
		return nil, fmt.Errorf("sale: engine not configured")
	}
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "sale.purchase",
		trace.WithAttributes(
			attribute.String("asset", normaliseSymbol(asset)),
			attribute.String("participant", participant.Hex()),
		))
	defer span.End()
	receipt, err := e.purchaseLocked(ctx, participant, asset, amount)
	finishSpan(span, "purchase committed", err)
	e.metrics.Observe("purchase", e.now().Sub(start), err)
	if err == nil {
		e.metrics.AddRaisedUSD(receipt.USDValue)
		e.metrics.RecordPurchase(receipt.Asset)
	}
	return receipt, err
}

func (e *Engine) purchaseLocked(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	now := e.clock()
	params := e.params.Clone()
	if !params.Window.Open(now) {
		return nil, ErrSaleClosed
	}
	cfg, err := e.registry.Config(asset)
	if err != nil {
		return nil, err
	}
	usd, err := ResolveUSDValue(ctx, cfg, amount, now)
	if err != nil {
		return nil, err
	}
	quote, err := Quote(usd, params.TokenPriceUSD, params.OutputDecimals)
	if err != nil {
		return nil, err
	}
	if e.collector != nil {
		if err := e.collector.Collect(ctx, participant, normaliseSymbol(asset), amount); err != nil {
			return nil, fmt.Errorf("sale: collect payment: %w", err)
		}
	}
	if err := e.ledger.Account(participant, usd, params.HardCapUSD, params.WalletCapUSD); err != nil {
		e.refundCollected(ctx, participant, asset, amount)
		return nil, err
	}
	if err := e.deliverer.Deliver(ctx, participant, quote.Total); err != nil {
		if unwindErr := e.ledger.Unwind(participant, usd); unwindErr != nil {
			slog.Error("sale: unwind ledger after delivery failure",
				"error", unwindErr, "participant", participant.Hex())
		}
		e.refundCollected(ctx, participant, asset, amount)
		return nil, fmt.Errorf("sale: deliver tokens: %w", err)
	}
	receipt := &Receipt{
		Participant: participant,
		Asset:       normaliseSymbol(asset),
		AmountIn:    new(big.Int).Set(amount),
		USDValue:    usd,
		TokensOut:   quote.Total,
		CreatedAt:   now.Unix(),
	}
	e.events.PurchaseCompleted(PurchaseEvent{
		Participant: receipt.Participant,
		Asset:       receipt.Asset,
		AmountIn:    new(big.Int).Set(receipt.AmountIn),
		USDValue:    new(big.Int).Set(receipt.USDValue),
		TokensOut:   new(big.Int).Set(receipt.TokensOut),
		CreatedAt:   receipt.CreatedAt,
	})
	return receipt, nil
}

// TotalRaised reports the cumulative USD accepted so far.
func (e *Engine) TotalRaised() (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("sale: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalRaised()
}

// Spent reports the cumulative USD contributed by the participant.
func (e *Engine) Spent(participant ethcommon.Address) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("sale: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Spent(participant)
}

// Status summarises the sale for status endpoints and dashboards.
type Status struct {
	Open        bool
	TotalRaised *big.Int
	Params      Params
	Assets      []string
}

// Status returns a consistent snapshot of the sale state.
func (e *Engine) Status() (Status, error) {
	if e == nil {
		return Status{}, fmt.Errorf("sale: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	raised, err := e.ledger.TotalRaised()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Open:        e.params.Window.Open(e.clock()),
		TotalRaised: raised,
		Params:      e.params.Clone(),
		Assets:      e.registry.Symbols(),
	}, nil
}

// SetTokenPrice updates the output-token USD price.
func (e *Engine) SetTokenPrice(price *big.Int) error {
	if e == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("sale: token price must be positive")
	}
	e.mu.Lock()
	e.params.TokenPriceUSD = new(big.Int).Set(price)
	now := e.clock().Unix()
	e.mu.Unlock()
	e.events.ConfigChanged(ConfigChange{Field: "token_price_usd", Value: price.String(), ChangedAt: now})
	return nil
}

// SetWindow updates the sale window bounds.
func (e *Engine) SetWindow(window Window) error {
	if e == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
		return fmt.Errorf("sale: window end before start")
	}
	e.mu.Lock()
	e.params.Window = window
	now := e.clock().Unix()
	e.mu.Unlock()
	e.events.ConfigChanged(ConfigChange{Field: "window", Value: windowString(window), ChangedAt: now})
	return nil
}

// SetCaps updates the global and per-participant USD ceilings. A nil or zero
// cap is unbounded. Caps only gate future purchases; accepted totals are never
// revised downward.
func (e *Engine) SetCaps(hardCap, walletCap *big.Int) error {
	if e == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if hardCap != nil && hardCap.Sign() < 0 {
		return fmt.Errorf("sale: hard cap must not be negative")
	}
	if walletCap != nil && walletCap.Sign() < 0 {
		return fmt.Errorf("sale: wallet cap must not be negative")
	}
	e.mu.Lock()
	if hardCap != nil {
		e.params.HardCapUSD = new(big.Int).Set(hardCap)
	} else {
		e.params.HardCapUSD = nil
	}
	if walletCap != nil {
		e.params.WalletCapUSD = new(big.Int).Set(walletCap)
	} else {
		e.params.WalletCapUSD = nil
	}
	now := e.clock().Unix()
	e.mu.Unlock()
	e.events.ConfigChanged(ConfigChange{Field: "caps", Value: capsString(hardCap, walletCap), ChangedAt: now})
	return nil
}

// SetAssetConfig validates and stores an asset configuration, emitting a
// config-change event on success.
func (e *Engine) SetAssetConfig(symbol string, cfg AssetConfig) error {
	if e == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if err := e.registry.SetConfig(symbol, cfg); err != nil {
		return err
	}
	e.events.ConfigChanged(ConfigChange{
		Field:     "asset/" + normaliseSymbol(symbol),
		Value:     cfg.Mode.String(),
		ChangedAt: e.now().Unix(),
	})
	return nil
}

// DisableAsset clears the acceptance flag for the asset.
func (e *Engine) DisableAsset(symbol string) error {
	if e == nil {
		return fmt.Errorf("sale: engine not configured")
	}
	if err := e.registry.Disable(symbol); err != nil {
		return err
	}
	e.events.ConfigChanged(ConfigChange{
		Field:     "asset/" + normaliseSymbol(symbol),
		Value:     "disabled",
		ChangedAt: e.now().Unix(),
	})
	return nil
}

// refundCollected returns a collected payment after a downstream failure. A
// refund failure cannot abort further, so it is logged for operator follow-up.
func (e *Engine) refundCollected(ctx context.Context, participant ethcommon.Address, asset string, amount *big.Int) {
	if e.collector == nil {
		return
	}
	if err := e.collector.Refund(ctx, participant, normaliseSymbol(asset), amount); err != nil {
		slog.Error("sale: refund payment after failed purchase",
			"error", err, "participant", participant.Hex(), "asset", normaliseSymbol(asset))
	}
}

func (e *Engine) now() time.Time {
	e.mu.Lock()
	clock := e.clock
	e.mu.Unlock()
	if clock == nil {
		return time.Now()
	}
	return clock()
}

func finishSpan(span trace.Span, okMessage string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, okMessage)
}

func windowString(w Window) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "unbounded"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return format(w.Start) + ".." + format(w.End)
}

func capsString(hard, wallet *big.Int) string {
	format := func(v *big.Int) string {
		if v == nil || v.Sign() == 0 {
			return "unbounded"
		}
		return v.String()
	}
	return "hard=" + format(hard) + " wallet=" + format(wallet)
}
