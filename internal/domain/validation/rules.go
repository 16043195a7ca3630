// Package validation reconciles an extracted invoice against a purchase agreement.
// Every function here is pure: results depend only on the arguments.
package validation

import (
	"fmt"
	"math"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

const (
	// DefaultPriceTolerance is the allowed unit price difference in currency units
	DefaultPriceTolerance = 100.0

	// DefaultReconciliationTolerance is the allowed gap between the calculated
	// grand total and the total printed on the receipt
	DefaultReconciliationTolerance = 100.0
)

// RuleSet holds the tunable parameters of the rules
type RuleSet struct {
	PriceTolerance          float64
	ReconciliationTolerance float64
}

// DefaultRuleSet returns a RuleSet with the default tolerances
func DefaultRuleSet() RuleSet {
	return RuleSet{
		PriceTolerance:          DefaultPriceTolerance,
		ReconciliationTolerance: DefaultReconciliationTolerance,
	}
}

// PriceMatch checks every line's unit price against the agreed price
func (r RuleSet) PriceMatch(agreement *entity.Agreement, inv *entity.ExtractedInvoice) entity.ValidationResult {
	result := entity.ValidationResult{Rule: entity.RulePriceMatch}

	if len(inv.Items) == 0 {
		result.Message = "Invoice has no line items to compare against the agreement price"
		return result
	}

	for _, item := range inv.Items {
		diff := math.Abs(item.UnitPrice - agreement.PricePerUnit)
		if diff > r.PriceTolerance {
			result.Message = fmt.Sprintf("Unit price %s for %q differs from agreement price %s by %s",
				utils.FormatCurrency(item.UnitPrice),
				item.Description,
				utils.FormatCurrency(agreement.PricePerUnit),
				utils.FormatCurrency(diff))
			return result
		}
	}

	result.Valid = true
	result.Message = fmt.Sprintf("Unit price matches agreement price %s", utils.FormatCurrency(agreement.PricePerUnit))
	return result
}

// QuantityAvailability checks the requested quantity against what is left on the agreement
func QuantityAvailability(agreement *entity.Agreement, inv *entity.ExtractedInvoice) entity.ValidationResult {
	for i, item := range inv.Items {
		if item.Quantity < 0 {
			return entity.ValidationResult{
				Rule:    entity.RuleQuantity,
				Message: fmt.Sprintf("Item %d has a negative quantity (%s)", i+1, utils.FormatThousand(item.Quantity)),
			}
		}
	}

	requested := inv.TotalQuantity()
	remaining := agreement.RemainingQuantity()

	if requested > remaining {
		return entity.ValidationResult{
			Rule: entity.RuleQuantity,
			Message: fmt.Sprintf("Requested %s units but only %s remain on the agreement",
				utils.FormatThousand(requested), utils.FormatThousand(remaining)),
		}
	}

	return entity.ValidationResult{
		Rule:  entity.RuleQuantity,
		Valid: true,
		Message: fmt.Sprintf("Requested %s of %s remaining units",
			utils.FormatThousand(requested), utils.FormatThousand(remaining)),
	}
}

// ContractPeriod checks that day lies inside the agreement's period, bounds included
func ContractPeriod(agreement *entity.Agreement, day entity.Date) entity.ValidationResult {
	window := fmt.Sprintf("%s to %s", agreement.Period.Start, agreement.Period.End)

	if !agreement.Period.Contains(day) {
		return entity.ValidationResult{
			Rule:    entity.RuleContractPeriod,
			Message: fmt.Sprintf("Date %s is outside the contract period %s", day, window),
		}
	}

	return entity.ValidationResult{
		Rule:    entity.RuleContractPeriod,
		Valid:   true,
		Message: fmt.Sprintf("Date %s is within the contract period %s", day, window),
	}
}

// DailyLimit never invalidates a submission. It flags escalation when today's
// spend plus the invoice total would exceed the category limit.
func DailyLimit(budget entity.DailyBudget, invoiceTotal float64) entity.ValidationResult {
	result := entity.ValidationResult{Rule: entity.RuleDailyLimit, Valid: true}

	if !budget.HasLimit {
		result.Message = fmt.Sprintf("No daily limit configured for %s", budget.Category)
		return result
	}

	projected := budget.TodaySpend + invoiceTotal
	if projected > budget.Limit {
		result.NeedsEscalation = true
		result.Message = fmt.Sprintf("Today's spend %s plus this invoice %s exceeds the %s daily limit %s, CFO approval required",
			utils.FormatCurrency(budget.TodaySpend),
			utils.FormatCurrency(invoiceTotal),
			budget.Category,
			utils.FormatCurrency(budget.Limit))
		return result
	}

	result.Message = fmt.Sprintf("Within the %s daily limit: %s of %s used after this invoice",
		budget.Category,
		utils.FormatCurrency(projected),
		utils.FormatCurrency(budget.Limit))
	return result
}

// Reconcile compares subtotal plus tax with the total printed on the receipt.
// Receipts without a printed total always reconcile.
func (r RuleSet) Reconcile(inv *entity.ExtractedInvoice) entity.ValidationResult {
	result := entity.ValidationResult{Rule: entity.RuleTotalReconciliation, Valid: true}

	if inv.ExtractedTotal <= 0 {
		result.Message = "No receipt total to reconcile"
		return result
	}

	calculated := inv.GrandTotal()
	diff := math.Abs(calculated - inv.ExtractedTotal)
	if diff > r.ReconciliationTolerance {
		result.Valid = false
		result.Message = fmt.Sprintf("Calculated total %s differs from receipt total %s by %s",
			utils.FormatCurrency(calculated),
			utils.FormatCurrency(inv.ExtractedTotal),
			utils.FormatCurrency(diff))
		return result
	}

	result.Message = fmt.Sprintf("Calculated total matches receipt total %s", utils.FormatCurrency(inv.ExtractedTotal))
	return result
}
