package entities

import (
	"errors"
	"strings"
)

// BillingLineItem is an additional fee beyond the base consultation fee
type BillingLineItem struct {
	Description string  `json:"description" bson:"description"`
	Amount      float64 `json:"amount" bson:"amount"`
}

// Validate checks the line item's description and amount
func (l *BillingLineItem) Validate() error {
	if strings.TrimSpace(l.Description) == "" {
		return errors.New("description is required")
	}
	if l.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// ConsultationBill is a snapshot of the billing state. Total is derived from
// BaseFee and LineItems at the moment the snapshot is taken.
type ConsultationBill struct {
	BaseFee   float64           `json:"base_fee" bson:"base_fee"`
	LineItems []BillingLineItem `json:"line_items" bson:"line_items"`
	Total     float64           `json:"total" bson:"total"`
}
