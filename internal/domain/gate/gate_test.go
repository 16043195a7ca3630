package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

func validResults() []entity.ValidationResult {
	return []entity.ValidationResult{
		{Rule: entity.RulePriceMatch, Valid: true},
		{Rule: entity.RuleQuantity, Valid: true},
		{Rule: entity.RuleContractPeriod, Valid: true},
		{Rule: entity.RuleDailyLimit, Valid: true},
	}
}

func withResult(results []entity.ValidationResult, r entity.ValidationResult) []entity.ValidationResult {
	out := append([]entity.ValidationResult(nil), results...)
	for i := range out {
		if out[i].Rule == r.Rule {
			out[i] = r
			return out
		}
	}
	return append(out, r)
}

func TestGate_Evaluate(t *testing.T) {
	agreement := &entity.Agreement{ID: "AGR-2025-001"}
	invoice := func(vendor string, confidence float64) *entity.ExtractedInvoice {
		return &entity.ExtractedInvoice{Vendor: vendor, ConfidenceScore: confidence}
	}

	tests := []struct {
		name        string
		in          Input
		wantAllowed bool
		wantRoute   entity.Route
		wantReason  entity.BlockReason
	}{
		{
			name:       "no agreement",
			in:         Input{Invoice: invoice("A", 1), Results: validResults()},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonNoAgreement,
		},
		{
			name:       "no invoice",
			in:         Input{Agreement: agreement},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonNoInvoice,
		},
		{
			name: "price invalid",
			in: Input{Agreement: agreement, Invoice: invoice("A", 1),
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RulePriceMatch, Message: "price off"})},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonValidationFailed,
		},
		{
			name: "quantity invalid beats low confidence",
			in: Input{Agreement: agreement, Invoice: invoice("A", 0.2),
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RuleQuantity})},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonValidationFailed,
		},
		{
			name: "period invalid even when manually verified",
			in: Input{Agreement: agreement, Invoice: invoice("A", 1), ManuallyVerified: true,
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RuleContractPeriod})},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonValidationFailed,
		},
		{
			name:       "vendor missing",
			in:         Input{Agreement: agreement, Invoice: invoice("  ", 1), Results: validResults()},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonVendorMissing,
		},
		{
			name: "totals do not reconcile",
			in: Input{Agreement: agreement, Invoice: invoice("A", 1),
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RuleTotalReconciliation, Message: "mismatch"})},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonTotalMismatch,
		},
		{
			name:       "low confidence",
			in:         Input{Agreement: agreement, Invoice: invoice("A", 0.69), Results: validResults()},
			wantRoute:  entity.RouteBlocked,
			wantReason: entity.ReasonAwaitingVerification,
		},
		{
			name:        "threshold is inclusive",
			in:          Input{Agreement: agreement, Invoice: invoice("A", 0.7), Results: validResults()},
			wantAllowed: true,
			wantRoute:   entity.RouteAutoApproved,
		},
		{
			name:        "low confidence manually verified",
			in:          Input{Agreement: agreement, Invoice: invoice("A", 0.1), ManuallyVerified: true, Results: validResults()},
			wantAllowed: true,
			wantRoute:   entity.RouteAutoApproved,
		},
		{
			name: "escalated",
			in: Input{Agreement: agreement, Invoice: invoice("A", 0.9),
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RuleDailyLimit, Valid: true, NeedsEscalation: true})},
			wantAllowed: true,
			wantRoute:   entity.RoutePendingCFOApproval,
		},
		{
			name: "reconciliation passing is ignored",
			in: Input{Agreement: agreement, Invoice: invoice("A", 0.9),
				Results: withResult(validResults(), entity.ValidationResult{Rule: entity.RuleTotalReconciliation, Valid: true})},
			wantAllowed: true,
			wantRoute:   entity.RouteAutoApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New().Evaluate(tt.in)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantRoute, d.Route)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestGate_VendorOptional(t *testing.T) {
	g := Gate{ConfidenceThreshold: 0.7}
	d := g.Evaluate(Input{
		Agreement: &entity.Agreement{},
		Invoice:   &entity.ExtractedInvoice{ConfidenceScore: 1},
		Results:   validResults(),
	})
	assert.True(t, d.Allowed)
}

func TestGate_CustomThreshold(t *testing.T) {
	g := Gate{ConfidenceThreshold: 0.9, RequireVendor: true}
	d := g.Evaluate(Input{
		Agreement: &entity.Agreement{},
		Invoice:   &entity.ExtractedInvoice{Vendor: "A", ConfidenceScore: 0.85},
		Results:   validResults(),
	})
	assert.Equal(t, entity.ReasonAwaitingVerification, d.Reason)
}
