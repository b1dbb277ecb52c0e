package gwei

import (
	"math/big"
	"testing"
)

func TestRoundDownToIncrement(t *testing.T) {
	cases := []struct {
		in   int64
		want int64
	}{
		{32_000_000_000, 32_000_000_000},
		{32_999_999_999, 32_000_000_000},
		{0, 0},
		{-5, 0},
	}
	for _, c := range cases {
		got := RoundDownToIncrement(big.NewInt(c.in))
		if got.Cmp(big.NewInt(c.want)) != 0 {
			t.Errorf("RoundDownToIncrement(%d) = %s, want %d", c.in, got.String(), c.want)
		}
	}
}

func TestSubClampedNeverNegative(t *testing.T) {
	got := SubClamped(big.NewInt(70), big.NewInt(100))
	if got.Sign() != 0 {
		t.Errorf("SubClamped(70,100) = %s, want 0", got.String())
	}
	got = SubClamped(big.NewInt(100), big.NewInt(70))
	if got.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("SubClamped(100,70) = %s, want 30", got.String())
	}
}

func TestMissedRewardScenario(t *testing.T) {
	// Concrete scenario 6 from the spec: ideal head=100, received head=70,
	// effective balance=32e9 -> missedHead=30.
	ideal := big.NewInt(100)
	received := big.NewInt(70)
	missed := SubClamped(ideal, received)
	if missed.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("missedHead = %s, want 30", missed.String())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-number"); err == nil {
		t.Errorf("expected error parsing garbage")
	}
	v, err := Parse("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Sign() <= 0 {
		t.Errorf("expected positive value")
	}
}
