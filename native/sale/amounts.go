package sale

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseBaseUnits parses a human-entered integer amount expressed in base units.
// Underscore separators and scientific notation are accepted ("1_000_000e18",
// "2.5e18"); values that would leave a fractional base unit are rejected.
func ParseBaseUnits(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	normalized := trimmed
	var exponent int64
	if idx := strings.IndexAny(normalized, "eE"); idx != -1 {
		expPart := strings.TrimSpace(normalized[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("sale: invalid scientific notation")
		}
		parsed, ok := new(big.Int).SetString(expPart, 10)
		if !ok || !parsed.IsInt64() {
			return nil, fmt.Errorf("sale: invalid scientific notation")
		}
		exponent = parsed.Int64()
		normalized = strings.TrimSpace(normalized[:idx])
	}
	normalized = strings.TrimPrefix(normalized, "+")
	if strings.HasPrefix(normalized, "-") {
		return nil, fmt.Errorf("sale: amount must not be negative")
	}
	parts := strings.Split(normalized, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("sale: invalid amount format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	digits := integerPart + fractionalPart
	if digits == "" {
		return big.NewInt(0), nil
	}
	if !isDigits(digits) {
		return nil, fmt.Errorf("sale: invalid amount format")
	}
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	digits = strings.TrimLeft(digits, "0")
	totalExponent := exponent - int64(fracLen)
	if totalExponent < 0 {
		return nil, fmt.Errorf("sale: amount must be an integer")
	}
	if digits == "" {
		digits = "0"
	}
	if totalExponent > 0 {
		digits += strings.Repeat("0", int(totalExponent))
	}
	amount := new(big.Int)
	if _, ok := amount.SetString(digits, 10); !ok {
		return nil, fmt.Errorf("sale: invalid amount value")
	}
	return amount, nil
}

// ParseUSD parses a decimal USD amount ("0.01", "1_000_000") into the 18-decimal
// fixed-point representation used throughout the sale. More than 18 fractional
// digits are rejected rather than silently truncated.
func ParseUSD(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("sale: usd amount must not be negative")
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("sale: invalid usd format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	if integerPart == "" && fractionalPart == "" {
		return nil, fmt.Errorf("sale: invalid usd format")
	}
	if integerPart != "" && !isDigits(integerPart) {
		return nil, fmt.Errorf("sale: invalid usd format")
	}
	if fractionalPart != "" && !isDigits(fractionalPart) {
		return nil, fmt.Errorf("sale: invalid usd format")
	}
	if len(fractionalPart) > 18 {
		return nil, fmt.Errorf("sale: usd precision exceeds 18 decimals")
	}
	digits := integerPart + fractionalPart + strings.Repeat("0", 18-len(fractionalPart))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	amount, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("sale: invalid usd value")
	}
	return amount, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
