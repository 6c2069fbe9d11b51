package sale

import "errors"

var (
	// ErrAmountZero indicates the payment amount was missing or non-positive.
	ErrAmountZero = errors.New("sale: amount must be positive")
	// ErrAssetNotAccepted indicates the asset is unknown or acceptance is disabled.
	ErrAssetNotAccepted = errors.New("sale: asset not accepted")
	// ErrOracleStale indicates the feed reading exceeded the freshness window.
	ErrOracleStale = errors.New("sale: oracle reading stale")
	// ErrOracleOutOfBounds indicates the feed price fell outside the configured range.
	ErrOracleOutOfBounds = errors.New("sale: oracle price out of bounds")
	// ErrSaleClosed indicates the purchase arrived outside the sale window.
	ErrSaleClosed = errors.New("sale: sale closed")
	// ErrCapExceeded indicates the purchase would breach the global hard cap.
	ErrCapExceeded = errors.New("sale: hard cap exceeded")
	// ErrWalletCapExceeded indicates the purchase would breach the participant cap.
	ErrWalletCapExceeded = errors.New("sale: wallet cap exceeded")
	// ErrZeroOutput indicates the computed token output truncated to zero.
	ErrZeroOutput = errors.New("sale: output amount is zero")
	// ErrDecimalOverflow indicates asset and feed decimals exceed the safe exponent bound.
	ErrDecimalOverflow = errors.New("sale: decimal exponent out of range")
)
