package validation

import "github.com/garyjia/agreement-validation/internal/domain/entity"

// Revalidate runs the four agreement rules in order: price match, quantity,
// contract period, daily limit. today is used when the invoice carries no date.
// Returns nil when either the agreement or the invoice is missing.
func (r RuleSet) Revalidate(agreement *entity.Agreement, inv *entity.ExtractedInvoice, budget entity.DailyBudget, today entity.Date) []entity.ValidationResult {
	if agreement == nil || inv == nil {
		return nil
	}

	day := inv.Date
	if day.IsZero() {
		day = today
	}

	return []entity.ValidationResult{
		r.PriceMatch(agreement, inv),
		QuantityAvailability(agreement, inv),
		ContractPeriod(agreement, day),
		DailyLimit(budget, inv.GrandTotal()),
	}
}

// Revalidate runs the rules with the default tolerances
func Revalidate(agreement *entity.Agreement, inv *entity.ExtractedInvoice, budget entity.DailyBudget, today entity.Date) []entity.ValidationResult {
	return DefaultRuleSet().Revalidate(agreement, inv, budget, today)
}

// Blocking returns the failed results of the rules that can block a submission
func Blocking(results []entity.ValidationResult) []entity.ValidationResult {
	var failed []entity.ValidationResult
	for _, r := range results {
		if r.Rule == entity.RuleDailyLimit {
			continue
		}
		if !r.Valid {
			failed = append(failed, r)
		}
	}
	return failed
}

// NeedsEscalation reports whether any result asks for CFO approval
func NeedsEscalation(results []entity.ValidationResult) bool {
	for _, r := range results {
		if r.NeedsEscalation {
			return true
		}
	}
	return false
}

// Find returns the result for rule, if present
func Find(results []entity.ValidationResult, rule entity.RuleID) (entity.ValidationResult, bool) {
	for _, r := range results {
		if r.Rule == rule {
			return r, true
		}
	}
	return entity.ValidationResult{}, false
}
