package sale

import (
	"math/big"
	"testing"
)

func TestParseBaseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"0", "0"},
		{"42", "42"},
		{"1_000_000", "1000000"},
		{"1e18", "1000000000000000000"},
		{"2.5e18", "2500000000000000000"},
		{"1_000_000e12", "1000000000000000000"},
		{"+7", "7"},
		{"1.000", "1"},
	}
	for _, tc := range cases {
		got, err := ParseBaseUnits(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		want, _ := new(big.Int).SetString(tc.want, 10)
		if got.Cmp(want) != 0 {
			t.Fatalf("parse %q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestParseUSD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"0", "0"},
		{"1", "1000000000000000000"},
		{"0.01", "10000000000000000"},
		{"1_000_000", "1000000000000000000000000"},
		{"2.5", "2500000000000000000"},
		{".5", "500000000000000000"},
	}
	for _, tc := range cases {
		got, err := ParseUSD(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		want, _ := new(big.Int).SetString(tc.want, 10)
		if got.Cmp(want) != 0 {
			t.Fatalf("parse %q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
	for _, in := range []string{"-1", "1.2.3", "abc", "0.0000000000000000001"} {
		if _, err := ParseUSD(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestParseBaseUnitsRejects(t *testing.T) {
	for _, in := range []string{"-1", "1.5", "0.1", "2.5e0", "1e", "abc", "1.2.3", "1e1.5"} {
		if _, err := ParseBaseUnits(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
