package entity

import "math"

// DefaultConfidence is assumed when no confidence score is reported
const DefaultConfidence = 1.0

// ClampConfidence bounds a confidence score to [0, 1]
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// LineItem is one row of an extracted invoice. Total is always Quantity * UnitPrice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Total       float64 `json:"total"`
}

// NewLineItem creates a line item with its total computed
func NewLineItem(description string, quantity, unitPrice float64) LineItem {
	item := LineItem{Description: description, Quantity: quantity, UnitPrice: unitPrice}
	item.recompute()
	return item
}

// SetQuantity updates the quantity and recomputes the total
func (li *LineItem) SetQuantity(q float64) {
	li.Quantity = q
	li.recompute()
}

// SetUnitPrice updates the unit price and recomputes the total
func (li *LineItem) SetUnitPrice(p float64) {
	li.UnitPrice = p
	li.recompute()
}

func (li *LineItem) recompute() {
	li.Total = li.Quantity * li.UnitPrice
}

// ExtractedInvoice is invoice data read from a receipt by the extraction model,
// possibly edited by the user afterwards.
type ExtractedInvoice struct {
	Vendor           string     `json:"vendor"`
	InvoiceNumber    string     `json:"invoice_number"`
	Date             Date       `json:"date"`
	DateAssumed      bool       `json:"date_assumed"`
	Category         string     `json:"category"`
	Items            []LineItem `json:"items" validate:"dive"`
	TaxAmount        float64    `json:"tax_amount" validate:"gte=0"`
	ExtractedTotal   float64    `json:"extracted_total" validate:"gte=0"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ConfidenceReason *string    `json:"confidence_reason"`
}

// Subtotal sums the line totals
func (inv *ExtractedInvoice) Subtotal() float64 {
	var sum float64
	for _, item := range inv.Items {
		sum += item.Total
	}
	return sum
}

// GrandTotal is the subtotal plus tax
func (inv *ExtractedInvoice) GrandTotal() float64 {
	return inv.Subtotal() + inv.TaxAmount
}

// TotalQuantity sums the line quantities
func (inv *ExtractedInvoice) TotalQuantity() float64 {
	var sum float64
	for _, item := range inv.Items {
		sum += item.Quantity
	}
	return sum
}

// Recalculate recomputes every line total
func (inv *ExtractedInvoice) Recalculate() {
	for i := range inv.Items {
		inv.Items[i].recompute()
	}
}

// Clone returns a deep copy
func (inv *ExtractedInvoice) Clone() *ExtractedInvoice {
	if inv == nil {
		return nil
	}
	cp := *inv
	cp.Items = append([]LineItem(nil), inv.Items...)
	if inv.ConfidenceReason != nil {
		reason := *inv.ConfidenceReason
		cp.ConfidenceReason = &reason
	}
	return &cp
}
