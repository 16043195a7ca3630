package extraction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
}

func newTestNormalizer() *Normalizer {
	return NewNormalizer([]string{"Electronics", "Office Supplies", "Meals & Entertainment"}, WithClock(fixedClock))
}

func TestNormalize_FullResponse(t *testing.T) {
	raw := `{
		"confidenceScore": 0.95,
		"confidenceReason": "Struk jelas dan lengkap",
		"vendor": "PT Supplier ABC",
		"invoiceNumber": "INV-001",
		"date": "2025-06-01",
		"category": "electronics",
		"items": [{"description": "Laptop Dell Latitude 5420", "quantity": 2, "unitPrice": 8000000}],
		"taxAmount": 1760000,
		"extractedTotal": 17760000
	}`

	res := newTestNormalizer().Normalize([]byte(raw))
	require.True(t, res.OK())

	inv := res.Invoice()
	assert.Equal(t, "PT Supplier ABC", inv.Vendor)
	assert.Equal(t, "INV-001", inv.InvoiceNumber)
	assert.Equal(t, "2025-06-01", inv.Date.String())
	assert.False(t, inv.DateAssumed)
	assert.Equal(t, "Electronics", inv.Category)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 16000000.0, inv.Items[0].Total)
	assert.Equal(t, 1760000.0, inv.TaxAmount)
	assert.Equal(t, 17760000.0, inv.ExtractedTotal)
	assert.Equal(t, 0.95, inv.ConfidenceScore)
	require.NotNil(t, inv.ConfidenceReason)
	assert.Equal(t, "Struk jelas dan lengkap", *inv.ConfidenceReason)
}

func TestNormalize_ItemDefaults(t *testing.T) {
	tests := []struct {
		name      string
		item      string
		wantDesc  string
		wantQty   float64
		wantPrice float64
	}{
		{"missing quantity and price", `{"description": "Kopi"}`, "Kopi", 1, 0},
		{"null values", `{"description": null, "quantity": null, "unitPrice": null}`, "Item", 1, 0},
		{"zero quantity", `{"description": "X", "quantity": 0, "unitPrice": 500}`, "X", 1, 500},
		{"invalid strings", `{"description": "X", "quantity": "dua", "unitPrice": "mahal"}`, "X", 1, 0},
		{"numeric strings", `{"description": "X", "quantity": "3", "unitPrice": "Rp 12.500"}`, "X", 3, 12500},
		{"snake case", `{"description": "X", "qty": 2, "unit_price": 750}`, "X", 2, 750},
		{"negative quantity", `{"description": "X", "quantity": -4, "unitPrice": 500}`, "X", 1, 500},
		{"negative price", `{"description": "X", "quantity": 2, "unitPrice": "-8.000.000"}`, "X", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"vendor": "Toko", "items": [` + tt.item + `]}`
			res := newTestNormalizer().Normalize([]byte(raw))
			require.True(t, res.OK())

			item := res.Invoice().Items[0]
			assert.Equal(t, tt.wantDesc, item.Description)
			assert.Equal(t, tt.wantQty, item.Quantity)
			assert.Equal(t, tt.wantPrice, item.UnitPrice)
			assert.Equal(t, item.Quantity*item.UnitPrice, item.Total)
		})
	}
}

func TestNormalize_NegativeLinesDoNotOffset(t *testing.T) {
	raw := `{"vendor": "PT A", "taxAmount": -500, "items": [
		{"description": "Laptop", "quantity": 10, "unitPrice": 8000000},
		{"description": "Retur", "quantity": -4, "unitPrice": 8000000}
	]}`

	inv, err := newTestNormalizer().Normalize([]byte(raw)).Unwrap()
	require.NoError(t, err)

	assert.Equal(t, 11.0, inv.TotalQuantity())
	assert.Equal(t, 0.0, inv.TaxAmount)
	assert.Equal(t, 88000000.0, inv.GrandTotal())
}

func TestNormalize_CategoryMatching(t *testing.T) {
	n := newTestNormalizer()

	assert.Equal(t, "Office Supplies", n.MatchCategory("OFFICE SUPPLIES"))
	assert.Equal(t, "Meals & Entertainment", n.MatchCategory(" meals & entertainment "))
	assert.Equal(t, "", n.MatchCategory("Groceries"))
	assert.Equal(t, "", n.MatchCategory(""))
}

func TestNormalize_ConfidenceDefaultsAndClamping(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
	}{
		{"absent", `{"vendor": "A"}`, 1.0},
		{"null", `{"vendor": "A", "confidenceScore": null}`, 1.0},
		{"zero kept", `{"vendor": "A", "confidenceScore": 0}`, 0},
		{"above one", `{"vendor": "A", "confidenceScore": 1.7}`, 1.0},
		{"negative", `{"vendor": "A", "confidenceScore": -0.2}`, 0},
		{"string", `{"vendor": "A", "confidenceScore": "0,45"}`, 0.45},
		{"string with dot", `{"vendor": "A", "confidenceScore": "0.4"}`, 0.4},
		{"string above one", `{"vendor": "A", "confidenceScore": "1.5"}`, 1.0},
		{"unreadable string", `{"vendor": "A", "confidenceScore": "high"}`, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestNormalizer().Normalize([]byte(tt.json))
			require.True(t, res.OK())
			assert.InDelta(t, tt.want, res.Invoice().ConfidenceScore, 1e-9)
			assert.Nil(t, res.Invoice().ConfidenceReason)
		})
	}
}

func TestNormalize_MissingDateUsesToday(t *testing.T) {
	res := newTestNormalizer().Normalize([]byte(`{"vendor": "A", "date": null}`))
	require.True(t, res.OK())

	assert.Equal(t, "2025-06-15", res.Invoice().Date.String())
	assert.True(t, res.Invoice().DateAssumed)

	res = newTestNormalizer().Normalize([]byte(`{"vendor": "A", "date": "kemarin"}`))
	require.True(t, res.OK())
	assert.True(t, res.Invoice().DateAssumed)
}

func TestNormalize_VendorOnlyKeepsItemsEmpty(t *testing.T) {
	res := newTestNormalizer().Normalize([]byte(`{"vendor": "Toko Maju", "items": []}`))
	require.True(t, res.OK())
	assert.Empty(t, res.Invoice().Items)
}

func TestNormalize_ItemsWithoutVendor(t *testing.T) {
	res := newTestNormalizer().Normalize([]byte(`{"items": [{"description": "Pulpen", "quantity": 10, "unitPrice": 3000}]}`))
	require.True(t, res.OK())
	assert.Empty(t, res.Invoice().Vendor)
	assert.Equal(t, 30000.0, res.Invoice().Subtotal())
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `the receipt is blurry`},
		{"empty", ``},
		{"array", `[1, 2, 3]`},
		{"array of objects", `[{"vendor": "PT A", "items": [{"quantity": 1, "unitPrice": 5}]}]`},
		{"no vendor no items", `{"invoiceNumber": "X-1", "items": []}`},
		{"blank vendor", `{"vendor": "   "}`},
		{"json null", `null`},
		{"items not objects", `{"items": ["Laptop", 3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestNormalizer().Normalize([]byte(tt.raw))
			assert.False(t, res.OK())
			require.NotNil(t, res.Failure())
			assert.True(t, res.Failure().Retryable())
			assert.Nil(t, res.Invoice())

			inv, err := res.Unwrap()
			assert.Nil(t, inv)
			assert.True(t, IsExtractionFailure(err))
		})
	}
}

func TestNormalize_JSONInsideMarkdown(t *testing.T) {
	raw := "Here is the data:\n```json\n{\"vendor\": \"PT {Braces} Tbk\", \"items\": [{\"description\": \"a\\\"b\", \"quantity\": 1, \"unitPrice\": 5}]}\n```"

	res := newTestNormalizer().Normalize([]byte(raw))
	require.True(t, res.OK())
	assert.Equal(t, "PT {Braces} Tbk", res.Invoice().Vendor)
	assert.Equal(t, `a"b`, res.Invoice().Items[0].Description)
}

func TestConfigurationError(t *testing.T) {
	err := error(&ConfigurationError{Setting: "openai.api_key"})

	assert.True(t, IsConfigurationError(err))
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.Contains(t, err.Error(), "openai.api_key")
	assert.False(t, IsExtractionFailure(err))
}

func TestExtractionFailure_Unwrap(t *testing.T) {
	cause := errors.New("unexpected EOF")
	f := NewExtractionFailure("response is not valid JSON", cause)

	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "unexpected EOF")
}

func TestNewNormalizer_DefaultCategories(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Contains(t, n.Categories(), "Software Subscription")
}
