package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
)

// Calculator holds the editable fee state of one consultation. The total is
// recomputed on every call and never stored. Not safe for concurrent use.
type Calculator struct {
	baseFee   float64
	lineItems []entities.BillingLineItem
}

// NewCalculator creates a calculator with the given base fee
func NewCalculator(baseFee float64) (*Calculator, error) {
	c := &Calculator{lineItems: make([]entities.BillingLineItem, 0)}
	if err := c.SetBaseFee(baseFee); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBaseFee replaces the base consultation fee
func (c *Calculator) SetBaseFee(fee float64) error {
	if !isFinite(fee) || fee < 0 {
		return fmt.Errorf("%w: base fee must be a non-negative number", domain.ErrInvalidAmount)
	}
	c.baseFee = fee
	return nil
}

// AddLineItem appends an extra fee
func (c *Calculator) AddLineItem(description string, amount float64) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return fmt.Errorf("%w: description is required", domain.ErrInvalidAmount)
	}
	if !isFinite(amount) || amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	c.lineItems = append(c.lineItems, entities.BillingLineItem{
		Description: description,
		Amount:      amount,
	})
	return nil
}

// RemoveLineItem removes the item at index. Out-of-range indexes are ignored.
func (c *Calculator) RemoveLineItem(index int) {
	if index < 0 || index >= len(c.lineItems) {
		return
	}
	c.lineItems = append(c.lineItems[:index], c.lineItems[index+1:]...)
}

// BaseFee returns the base consultation fee
func (c *Calculator) BaseFee() float64 {
	return c.baseFee
}

// LineItems returns a copy of the current line items
func (c *Calculator) LineItems() []entities.BillingLineItem {
	out := make([]entities.BillingLineItem, len(c.lineItems))
	copy(out, c.lineItems)
	return out
}

// Total returns baseFee plus the sum of every line item amount
func (c *Calculator) Total() float64 {
	total := c.baseFee
	for _, item := range c.lineItems {
		total += item.Amount
	}
	return total
}

// Bill returns a snapshot of the billing state with its derived total
func (c *Calculator) Bill() entities.ConsultationBill {
	return entities.ConsultationBill{
		BaseFee:   c.baseFee,
		LineItems: c.LineItems(),
		Total:     c.Total(),
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
