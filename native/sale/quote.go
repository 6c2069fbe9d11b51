package sale

import (
	"fmt"
	"math/big"
)

// bonusDivisor implements the fixed 10% purchase bonus as base/10.
const bonusDivisor = 10

// QuoteResult carries the output-token breakdown for a USD value.
type QuoteResult struct {
	Base  *big.Int
	Bonus *big.Int
	Total *big.Int
}

// Quote converts a USD(18) value into output tokens at the supplied price. The
// computation is pure and safe to call as a preview. The bonus truncates
// independently of the base rather than recombining fractional remainders, so
// small amounts may under-deliver the bonus by up to one unit.
func Quote(usdValue, tokenPriceUSD *big.Int, outputDecimals uint8) (QuoteResult, error) {
	if tokenPriceUSD == nil || tokenPriceUSD.Sign() <= 0 {
		return QuoteResult{}, fmt.Errorf("sale: token price must be positive")
	}
	if usdValue == nil || usdValue.Sign() < 0 {
		return QuoteResult{}, fmt.Errorf("sale: usd value must not be negative")
	}
	base := new(big.Int).Mul(usdValue, pow10(int(outputDecimals)))
	base.Quo(base, tokenPriceUSD)
	bonus := new(big.Int).Quo(base, big.NewInt(bonusDivisor))
	total := new(big.Int).Add(base, bonus)
	if total.Sign() == 0 {
		return QuoteResult{}, ErrZeroOutput
	}
	return QuoteResult{Base: base, Bonus: bonus, Total: total}, nil
}
