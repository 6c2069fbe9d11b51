package sale

import (
	"math/big"
	"testing"
)

func usd18(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), usdScale)
}

func TestQuoteCentPriced(t *testing.T) {
	// $0.01 per token, $100 in: 10000 base, 1000 bonus, 11000 total.
	price := big.NewInt(1e16)
	quote, err := Quote(usd18(100), price, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Base.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("unexpected base %s", quote.Base)
	}
	if quote.Bonus.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected bonus %s", quote.Bonus)
	}
	if quote.Total.Cmp(big.NewInt(11000)) != 0 {
		t.Fatalf("unexpected total %s", quote.Total)
	}
}

func TestQuoteBonusTruncatesIndependently(t *testing.T) {
	// base 19 yields bonus floor(19/10)=1, not round(19*1.1)-19=2.
	quote, err := Quote(big.NewInt(19), usdScale, 18)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Base.Cmp(big.NewInt(19)) != 0 {
		t.Fatalf("unexpected base %s", quote.Base)
	}
	if quote.Bonus.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("unexpected bonus %s", quote.Bonus)
	}
	if quote.Total.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("unexpected total %s", quote.Total)
	}
}

func TestQuoteZeroOutput(t *testing.T) {
	// Dust payment truncates to zero tokens and must be rejected.
	price := usd18(5)
	if _, err := Quote(big.NewInt(1), price, 0); err != ErrZeroOutput {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestQuoteRejectsNonPositivePrice(t *testing.T) {
	if _, err := Quote(usd18(1), big.NewInt(0), 18); err == nil {
		t.Fatalf("expected error for zero price")
	}
	if _, err := Quote(usd18(1), nil, 18); err == nil {
		t.Fatalf("expected error for nil price")
	}
}

func TestQuoteLinearInUSD(t *testing.T) {
	price := big.NewInt(25e15) // $0.025
	single, err := Quote(usd18(10), price, 18)
	if err != nil {
		t.Fatalf("quote single: %v", err)
	}
	triple, err := Quote(usd18(30), price, 18)
	if err != nil {
		t.Fatalf("quote triple: %v", err)
	}
	expected := new(big.Int).Mul(single.Total, big.NewInt(3))
	if triple.Total.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, triple.Total)
	}
}
