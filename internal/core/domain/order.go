package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoLineItems = errors.New("order has no line items")
	ErrEmptySKU    = errors.New("line item has empty sku")
)

type LineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type Order struct {
	OrderNumber         string            `json:"order_number"`
	LineItems           []LineItem        `json:"line_items"`
	PresentmentCurrency string            `json:"presentment_currency"`
	Tags                []string          `json:"tags,omitempty"`
	ShippingAddress     map[string]string `json:"shipping_address,omitempty"`
}

// Validate enforces the line-item invariants. Orders are immutable once
// enqueued, so this only needs to hold at intake.
func (o Order) Validate() error {
	if len(o.LineItems) == 0 {
		return ErrNoLineItems
	}
	for i, item := range o.LineItems {
		if item.SKU == "" {
			return fmt.Errorf("line item %d: %w", i, ErrEmptySKU)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("line item %d: quantity must be at least 1, got %d", i, item.Quantity)
		}
	}
	return nil
}
