// Package extraction turns loosely typed model output into ExtractedInvoice values.
package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

const (
	defaultQuantity    = 1.0
	defaultUnitPrice   = 0.0
	defaultDescription = "Item"
)

// Normalizer maps a raw extraction response to an ExtractedInvoice.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	categories []string
	now        func() time.Time
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithClock overrides the clock used to default a missing invoice date
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// NewNormalizer creates a normalizer for the given canonical categories.
// An empty list falls back to entity.DefaultCategories.
func NewNormalizer(categories []string, opts ...Option) *Normalizer {
	if len(categories) == 0 {
		categories = entity.DefaultCategories
	}
	n := &Normalizer{
		categories: append([]string(nil), categories...),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Categories returns the canonical category list
func (n *Normalizer) Categories() []string {
	return append([]string(nil), n.categories...)
}

// Normalize parses raw and builds the invoice. It fails when raw is not a JSON
// object or carries neither a vendor nor any line items.
func (n *Normalizer) Normalize(raw []byte) Result {
	doc, err := decodeObject(raw)
	if err != nil {
		return Failed(NewExtractionFailure("response is not valid JSON", err))
	}

	vendor := stringField(doc, "vendor", "vendorName", "vendor_name", "merchant_name")
	items := n.items(doc)

	if vendor == "" && len(items) == 0 {
		return Failed(NewExtractionFailure("response has neither a vendor nor any line items", nil))
	}

	inv := &entity.ExtractedInvoice{
		Vendor:          vendor,
		InvoiceNumber:   stringField(doc, "invoiceNumber", "invoice_number"),
		Category:        n.MatchCategory(stringField(doc, "category")),
		Items:           items,
		TaxAmount:       nonNegative(numberOr(field(doc, "taxAmount", "tax_amount", "tax"), 0)),
		ExtractedTotal:  nonNegative(numberOr(field(doc, "extractedTotal", "extracted_total", "total"), 0)),
		ConfidenceScore: entity.ClampConfidence(fractionOr(field(doc, "confidenceScore", "confidence_score", "confidence"), entity.DefaultConfidence)),
	}

	if reason := stringField(doc, "confidenceReason", "confidence_reason"); reason != "" {
		inv.ConfidenceReason = &reason
	}

	if day, ok := parseDay(stringField(doc, "date", "invoiceDate", "invoice_date")); ok {
		inv.Date = day
	} else {
		inv.Date = entity.DateOf(n.now())
		inv.DateAssumed = true
	}

	return Succeeded(inv)
}

// MatchCategory returns the canonical casing of raw, or "" when it is not a known category
func (n *Normalizer) MatchCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, c := range n.categories {
		if strings.EqualFold(c, raw) {
			return c
		}
	}
	return ""
}

func (n *Normalizer) items(doc map[string]interface{}) []entity.LineItem {
	rawItems, ok := field(doc, "items", "lineItems", "line_items").([]interface{})
	if !ok {
		return []entity.LineItem{}
	}

	items := make([]entity.LineItem, 0, len(rawItems))
	for _, ri := range rawItems {
		obj, ok := ri.(map[string]interface{})
		if !ok {
			continue
		}

		description := stringField(obj, "description", "name")
		if description == "" {
			description = defaultDescription
		}

		// A line can never take units back off the invoice
		quantity := numberOr(field(obj, "quantity", "qty"), defaultQuantity)
		if quantity <= 0 {
			quantity = defaultQuantity
		}
		unitPrice := numberOr(field(obj, "unitPrice", "unit_price", "price"), defaultUnitPrice)
		if unitPrice < 0 {
			unitPrice = defaultUnitPrice
		}

		items = append(items, entity.NewLineItem(description, quantity, unitPrice))
	}
	return items
}

// decodeObject parses raw as a JSON object. Only text that is not JSON at all
// falls back to the first balanced object embedded in it.
func decodeObject(raw []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	err := json.Unmarshal(raw, &doc)
	if err == nil {
		if doc == nil {
			return map[string]interface{}{}, nil
		}
		return doc, nil
	}
	if json.Valid(raw) {
		return nil, err
	}

	if embedded := extractJSON(string(raw)); embedded != "" {
		if fallbackErr := json.Unmarshal([]byte(embedded), &doc); fallbackErr == nil && doc != nil {
			return doc, nil
		}
	}
	return nil, err
}

// field returns the first present, non-null value among keys
func field(doc map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(doc map[string]interface{}, keys ...string) string {
	switch v := field(doc, keys...).(type) {
	case string:
		return utils.SanitizeString(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	}
	return ""
}

// numberOr coerces numbers and numeric strings, returning def for anything else
func numberOr(v interface{}, def float64) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		f, err := utils.ParseNumber(t)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// fractionOr reads a plain decimal such as 0.4 or "0.4". "," is accepted as the
// decimal mark; amount grouping rules do not apply.
func fractionOr(v interface{}, def float64) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return t
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return def
		}
		return f
	}
	return def
}

func nonNegative(v float64) float64 {
	return math.Max(0, v)
}

func parseDay(s string) (entity.Date, bool) {
	if len(s) < len(entity.DateLayout) {
		return entity.Date{}, false
	}
	day, err := entity.ParseDate(s[:len(entity.DateLayout)])
	if err != nil {
		return entity.Date{}, false
	}
	return day, true
}
