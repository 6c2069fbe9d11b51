package sale

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// PricingMode selects how an accepted asset is converted into USD.
type PricingMode uint8

const (
	// ModeStatic prices the asset at a fixed USD rate configured by operators.
	ModeStatic PricingMode = iota
	// ModeOracle prices the asset from an external feed, bounds-checked per read.
	ModeOracle
)

// String renders the mode for logs and API payloads.
func (m PricingMode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// OracleParams bundles the feed handle and the guardrails applied to every read.
// A zero MaxStaleness disables the freshness check; a nil or zero Min/MaxPrice
// disables the corresponding side of the range check.
type OracleParams struct {
	Feed         FeedReader
	MaxStaleness time.Duration
	MinPrice     *big.Int
	MaxPrice     *big.Int
}

// AssetConfig captures the per-asset acceptance and pricing configuration.
type AssetConfig struct {
	Accepted       bool
	Native         bool
	Decimals       uint8
	Mode           PricingMode
	StaticPriceUSD *big.Int
	Oracle         OracleParams
}

// Clone returns a deep copy so a purchase in flight observes one consistent
// configuration snapshot even while admins mutate the registry.
func (c AssetConfig) Clone() AssetConfig {
	clone := c
	if c.StaticPriceUSD != nil {
		clone.StaticPriceUSD = new(big.Int).Set(c.StaticPriceUSD)
	}
	if c.Oracle.MinPrice != nil {
		clone.Oracle.MinPrice = new(big.Int).Set(c.Oracle.MinPrice)
	}
	if c.Oracle.MaxPrice != nil {
		clone.Oracle.MaxPrice = new(big.Int).Set(c.Oracle.MaxPrice)
	}
	return clone
}

// Reading is a transient oracle observation. It is fetched fresh on every
// quote or purchase and never persisted.
type Reading struct {
	Price     *big.Int
	UpdatedAt time.Time
	Decimals  uint8
}

// Window bounds the sale in wall-clock time. A zero Start or End disables the
// corresponding bound. Openness is a pure predicate of (now, Start, End); no
// transition history is kept.
type Window struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the sale accepts purchases at the supplied instant.
func (w Window) Open(now time.Time) bool {
	if !w.Start.IsZero() && now.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && now.After(w.End) {
		return false
	}
	return true
}

// Params carries the sale-wide pricing and cap configuration. All USD values
// use 18 fractional decimals; a nil or zero cap is unbounded.
type Params struct {
	TokenPriceUSD  *big.Int
	OutputDecimals uint8
	Window         Window
	HardCapUSD     *big.Int
	WalletCapUSD   *big.Int
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	if p.TokenPriceUSD != nil {
		clone.TokenPriceUSD = new(big.Int).Set(p.TokenPriceUSD)
	}
	if p.HardCapUSD != nil {
		clone.HardCapUSD = new(big.Int).Set(p.HardCapUSD)
	}
	if p.WalletCapUSD != nil {
		clone.WalletCapUSD = new(big.Int).Set(p.WalletCapUSD)
	}
	return clone
}

// Receipt summarises a committed purchase.
type Receipt struct {
	Participant ethcommon.Address
	Asset       string
	AmountIn    *big.Int
	USDValue    *big.Int
	TokensOut   *big.Int
	CreatedAt   int64
}

// Copy returns a deep copy to shield callers from accidental mutation.
func (r *Receipt) Copy() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	if r.AmountIn != nil {
		clone.AmountIn = new(big.Int).Set(r.AmountIn)
	}
	if r.USDValue != nil {
		clone.USDValue = new(big.Int).Set(r.USDValue)
	}
	if r.TokensOut != nil {
		clone.TokensOut = new(big.Int).Set(r.TokensOut)
	}
	return &clone
}
