package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
	"github.com/garyjia/agreement-validation/internal/domain/validation"
)

// Agreement: 8,000,000 per unit, 6 units remaining, valid for 2025.
func scenarioAgreement() *entity.Agreement {
	return &entity.Agreement{
		ID:            "AGR-2025-001",
		Vendor:        "PT Supplier ABC",
		Category:      "Electronics",
		ItemName:      "Laptop Dell Latitude 5420",
		PricePerUnit:  8000000,
		TotalQuantity: 10,
		UsedQuantity:  4,
		Period: entity.ContractPeriod{
			Start: entity.MustParseDate("2025-01-01"),
			End:   entity.MustParseDate("2025-12-31"),
		},
		Status: entity.AgreementStatusActive,
	}
}

func scenarioInvoice(unitPrice, confidence float64) *entity.ExtractedInvoice {
	return &entity.ExtractedInvoice{
		Vendor:          "PT Supplier ABC",
		InvoiceNumber:   "INV-2025-0601",
		Date:            entity.MustParseDate("2025-06-01"),
		Category:        "Electronics",
		Items:           []entity.LineItem{entity.NewLineItem("Laptop Dell Latitude 5420", 2, unitPrice)},
		ConfidenceScore: confidence,
	}
}

func scenarioBudget() entity.DailyBudget {
	return entity.DailyBudget{Category: "Electronics", Limit: 50000000, HasLimit: true}
}

func evaluate(inv *entity.ExtractedInvoice, verified bool) ([]entity.ValidationResult, entity.SubmissionDecision) {
	agreement := scenarioAgreement()
	results := validation.Revalidate(agreement, inv, scenarioBudget(), entity.MustParseDate("2025-06-01"))
	return results, New().Evaluate(Input{
		Agreement:        agreement,
		Invoice:          inv,
		Results:          results,
		ManuallyVerified: verified,
	})
}

func TestScenario_AutoApproved(t *testing.T) {
	results, d := evaluate(scenarioInvoice(8000000, 0.95), false)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Valid, r.Message)
		assert.False(t, r.NeedsEscalation)
	}
	assert.True(t, d.Allowed)
	assert.Equal(t, entity.RouteAutoApproved, d.Route)
}

func TestScenario_PriceMismatchBlocksRegardlessOfConfidence(t *testing.T) {
	for _, verified := range []bool{false, true} {
		results, d := evaluate(scenarioInvoice(8500000, 0.99), verified)

		assert.False(t, results[0].Valid)
		assert.False(t, d.Allowed)
		assert.Equal(t, entity.RouteBlocked, d.Route)
		assert.Equal(t, entity.ReasonValidationFailed, d.Reason)
	}
}

func TestScenario_LowConfidenceNeedsManualVerification(t *testing.T) {
	inv := scenarioInvoice(8000000, 0.5)

	_, d := evaluate(inv, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, entity.ReasonAwaitingVerification, d.Reason)

	_, d = evaluate(inv, true)
	assert.True(t, d.Allowed)
	assert.Equal(t, entity.RouteAutoApproved, d.Route)
}

func TestScenario_DailyLimitEscalates(t *testing.T) {
	agreement := scenarioAgreement()
	inv := scenarioInvoice(8000000, 0.95)
	budget := scenarioBudget()
	budget.TodaySpend = 40000000

	results := validation.Revalidate(agreement, inv, budget, entity.MustParseDate("2025-06-01"))
	d := New().Evaluate(Input{Agreement: agreement, Invoice: inv, Results: results})

	assert.True(t, d.Allowed)
	assert.Equal(t, entity.RoutePendingCFOApproval, d.Route)
}

func normalized(t *testing.T, raw string) *entity.ExtractedInvoice {
	t.Helper()
	inv, err := extraction.NewNormalizer([]string{"Electronics"}).Normalize([]byte(raw)).Unwrap()
	require.NoError(t, err)
	return inv
}

func TestScenario_TextualLowConfidenceFromModel(t *testing.T) {
	inv := normalized(t, `{"vendor": "PT Supplier ABC", "date": "2025-06-01", "confidenceScore": "0.4",
		"items": [{"description": "Laptop", "quantity": 2, "unitPrice": 8000000}]}`)
	require.Equal(t, 0.4, inv.ConfidenceScore)

	_, d := evaluate(inv, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, entity.ReasonAwaitingVerification, d.Reason)
}

func TestScenario_NegativeLineCannotHideQuantity(t *testing.T) {
	inv := normalized(t, `{"vendor": "PT Supplier ABC", "date": "2025-06-01", "confidenceScore": 0.95,
		"items": [
			{"description": "Laptop", "quantity": 10, "unitPrice": 8000000},
			{"description": "Laptop", "quantity": -4, "unitPrice": 8000000}
		]}`)

	results, d := evaluate(inv, false)
	assert.False(t, results[1].Valid, results[1].Message)
	assert.False(t, d.Allowed)
	assert.Equal(t, entity.ReasonValidationFailed, d.Reason)
}
