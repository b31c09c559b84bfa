package billing

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/satriahrh/konsulta/domain"
)

func TestCalculator_Total(t *testing.T) {
	c, err := NewCalculator(500)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	if err := c.AddLineItem("Procedure", 200); err != nil {
		t.Fatalf("AddLineItem failed: %v", err)
	}
	if err := c.AddLineItem("Bandage", 50); err != nil {
		t.Fatalf("AddLineItem failed: %v", err)
	}

	if c.Total() != 750 {
		t.Errorf("Expected total 750, got %v", c.Total())
	}

	bill := c.Bill()
	if bill.Total != 750 || bill.BaseFee != 500 || len(bill.LineItems) != 2 {
		t.Errorf("Unexpected bill snapshot %+v", bill)
	}
}

func TestCalculator_AddLineItemRejectsInvalid(t *testing.T) {
	tests := []struct {
		name        string
		description string
		amount      float64
	}{
		{name: "zero amount", description: "Procedure", amount: 0},
		{name: "negative amount", description: "Procedure", amount: -10},
		{name: "empty description", description: "", amount: 10},
		{name: "blank description", description: "   ", amount: 10},
		{name: "nan amount", description: "Procedure", amount: math.NaN()},
		{name: "infinite amount", description: "Procedure", amount: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewCalculator(100)
			err := c.AddLineItem(tt.description, tt.amount)
			if !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("Expected ErrInvalidAmount, got %v", err)
			}
			if len(c.LineItems()) != 0 {
				t.Error("Rejected item should not be appended")
			}
			if c.Total() != 100 {
				t.Errorf("Total should be unchanged, got %v", c.Total())
			}
		})
	}
}

func TestCalculator_BaseFee(t *testing.T) {
	if _, err := NewCalculator(-1); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for negative base fee, got %v", err)
	}

	c, _ := NewCalculator(0)
	if err := c.SetBaseFee(300); err != nil {
		t.Fatalf("SetBaseFee failed: %v", err)
	}
	if err := c.SetBaseFee(-5); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if c.BaseFee() != 300 {
		t.Errorf("Base fee should stay 300, got %v", c.BaseFee())
	}
}

func TestCalculator_RemoveLineItem(t *testing.T) {
	c, _ := NewCalculator(10)
	_ = c.AddLineItem("A", 1)
	_ = c.AddLineItem("B", 2)
	_ = c.AddLineItem("C", 3)

	c.RemoveLineItem(1)
	items := c.LineItems()
	if len(items) != 2 || items[0].Description != "A" || items[1].Description != "C" {
		t.Errorf("Unexpected items after removal: %+v", items)
	}

	c.RemoveLineItem(5)
	c.RemoveLineItem(-1)
	if len(c.LineItems()) != 2 {
		t.Error("Out-of-range removal should be a no-op")
	}
	if c.Total() != 14 {
		t.Errorf("Expected total 14, got %v", c.Total())
	}
}

func TestCalculator_LineItemsIsCopy(t *testing.T) {
	c, _ := NewCalculator(10)
	_ = c.AddLineItem("A", 1)

	items := c.LineItems()
	items[0].Amount = 1000

	if c.Total() != 11 {
		t.Errorf("Mutating the returned slice must not affect the total, got %v", c.Total())
	}
}

func TestCalculator_TotalTracksRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c, _ := NewCalculator(250)
	var shadow []float64

	for i := 0; i < 500; i++ {
		if rng.Intn(3) == 0 {
			idx := rng.Intn(len(shadow) + 2)
			c.RemoveLineItem(idx)
			if idx < len(shadow) {
				shadow = append(shadow[:idx], shadow[idx+1:]...)
			}
		} else {
			amount := float64(rng.Intn(1000) + 1)
			if err := c.AddLineItem("item", amount); err != nil {
				t.Fatalf("AddLineItem failed: %v", err)
			}
			shadow = append(shadow, amount)
		}

		want := 250.0
		for _, a := range shadow {
			want += a
		}
		if c.Total() != want {
			t.Fatalf("Step %d: expected total %v, got %v", i, want, c.Total())
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 750, want: "750.00"},
		{in: 1250.5, want: "1,250.50"},
		{in: 0, want: "0.00"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
