package commission

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{{
		name:   "standard rate",
		amount: "200.00",
		rate:   "0.15",
		want:   "30",
	}, {
		name:   "zero amount",
		amount: "0",
		rate:   "0.15",
		want:   "0",
	}, {
		name:   "zero rate",
		amount: "99.99",
		rate:   "0",
		want:   "0",
	}, {
		name:   "full rate",
		amount: "42.50",
		rate:   "1",
		want:   "42.5",
	}, {
		name:   "rounds half up",
		amount: "10.01",
		rate:   "0.125",
		want:   "1.25",
	}, {
		name:   "sub-cent result rounds",
		amount: "0.01",
		rate:   "0.15",
		want:   "0",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate))
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("123.45")
	rate := decimal.RequireFromString("0.0725")

	first, err := Compute(amount, rate)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Compute(amount, rate)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !again.Equal(first) {
			t.Fatalf("expected %s on every run, got %s", first, again)
		}
	}
}

func TestComputeInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
	}{{
		name:   "negative amount",
		amount: "-1.00",
		rate:   "0.15",
	}, {
		name:   "negative rate",
		amount: "100.00",
		rate:   "-0.01",
	}, {
		name:   "rate above one",
		amount: "100.00",
		rate:   "1.5",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compute(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate)); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
