// Package gate decides whether an invoice may be submitted and where it is routed.
package gate

import (
	"fmt"
	"strings"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/validation"
)

// DefaultConfidenceThreshold is the extraction confidence below which a user
// has to confirm the extracted data manually
const DefaultConfidenceThreshold = 0.7

// Input is everything the gate looks at
type Input struct {
	Agreement        *entity.Agreement
	Invoice          *entity.ExtractedInvoice
	Results          []entity.ValidationResult
	ManuallyVerified bool
}

// Gate combines rule results, confidence and manual verification into one decision
type Gate struct {
	ConfidenceThreshold float64
	RequireVendor       bool
}

// New returns a gate with the default threshold that requires a vendor
func New() Gate {
	return Gate{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RequireVendor:       true,
	}
}

// Evaluate runs the checks in order. The first failing check decides the reason.
// A total_reconciliation result, when present in Results, is checked after the
// agreement rules.
func (g Gate) Evaluate(in Input) entity.SubmissionDecision {
	if in.Agreement == nil {
		return blocked(entity.ReasonNoAgreement, "Select an agreement first")
	}
	if in.Invoice == nil {
		return blocked(entity.ReasonNoInvoice, "Upload a receipt first")
	}

	if failed := validation.Blocking(agreementRules(in.Results)); len(failed) > 0 {
		messages := make([]string, 0, len(failed))
		for _, r := range failed {
			messages = append(messages, r.Message)
		}
		return blocked(entity.ReasonValidationFailed, "Validation failed: "+strings.Join(messages, "; "))
	}

	if g.RequireVendor && strings.TrimSpace(in.Invoice.Vendor) == "" {
		return blocked(entity.ReasonVendorMissing, "Vendor name is required")
	}

	if r, ok := validation.Find(in.Results, entity.RuleTotalReconciliation); ok && !r.Valid {
		return blocked(entity.ReasonTotalMismatch, r.Message)
	}

	if in.Invoice.ConfidenceScore < g.ConfidenceThreshold && !in.ManuallyVerified {
		return blocked(entity.ReasonAwaitingVerification,
			fmt.Sprintf("Extraction confidence %.0f%% is below %.0f%%, verify the data manually",
				in.Invoice.ConfidenceScore*100, g.ConfidenceThreshold*100))
	}

	if validation.NeedsEscalation(in.Results) {
		return entity.SubmissionDecision{
			Allowed: true,
			Route:   entity.RoutePendingCFOApproval,
			Message: "Daily limit exceeded, submission goes to the CFO for approval",
		}
	}

	return entity.SubmissionDecision{
		Allowed: true,
		Route:   entity.RouteAutoApproved,
		Message: "All checks passed, submission is auto-approved",
	}
}

// agreementRules keeps price, quantity and period results only
func agreementRules(results []entity.ValidationResult) []entity.ValidationResult {
	out := make([]entity.ValidationResult, 0, len(results))
	for _, r := range results {
		switch r.Rule {
		case entity.RulePriceMatch, entity.RuleQuantity, entity.RuleContractPeriod:
			out = append(out, r)
		}
	}
	return out
}

func blocked(reason entity.BlockReason, message string) entity.SubmissionDecision {
	return entity.SubmissionDecision{
		Route:   entity.RouteBlocked,
		Reason:  reason,
		Message: message,
	}
}
