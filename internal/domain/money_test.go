package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmountOrZero(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"   ", 0},
		{"abc", 0},
		{"-5", 0},
		{"0", 0},
		{"2000", 200000},
		{"19.5", 1950},
		{"87.30", 8730},
		{"95.50", 9550},
		{" 12.345 ", 1235}, // rounds to nearest paisa
	}

	for _, tc := range cases {
		if got := ParseAmountOrZero(tc.raw); got != tc.want {
			t.Errorf("ParseAmountOrZero(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestParseLitersOrZero(t *testing.T) {
	if got := ParseLitersOrZero("10"); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10, got %s", got)
	}
	if got := ParseLitersOrZero("-2"); !got.IsZero() {
		t.Fatalf("negative liters should parse to zero, got %s", got)
	}
	if got := ParseLitersOrZero("garbage"); !got.IsZero() {
		t.Fatalf("garbage liters should parse to zero, got %s", got)
	}
}

func TestLitersCost(t *testing.T) {
	// 10 liters of MS at 95.50 rupees = 955.00 rupees = 95500 paise.
	if got := LitersCost(decimal.NewFromInt(10), 9550); got != 95500 {
		t.Fatalf("expected 95500, got %d", got)
	}
	// 2 liters at 95.50 = 191.00 rupees.
	if got := LitersCost(decimal.NewFromInt(2), 9550); got != 19100 {
		t.Fatalf("expected 19100, got %d", got)
	}
	// Fractional liters round to the nearest paisa.
	half := decimal.NewFromFloat(0.5)
	if got := LitersCost(half, 8731); got != 4366 {
		t.Fatalf("expected 4366, got %d", got)
	}
}
