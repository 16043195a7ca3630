package entity

// RuleID identifies a validation rule
type RuleID string

const (
	RulePriceMatch          RuleID = "price_match"
	RuleQuantity            RuleID = "quantity_availability"
	RuleContractPeriod      RuleID = "contract_period"
	RuleDailyLimit          RuleID = "daily_limit"
	RuleTotalReconciliation RuleID = "total_reconciliation"
)

// ValidationResult is the outcome of one rule. A failed rule is a normal result,
// not an error. NeedsEscalation is only ever set by the daily limit rule.
type ValidationResult struct {
	Rule            RuleID `json:"rule"`
	Valid           bool   `json:"valid"`
	Message         string `json:"message"`
	NeedsEscalation bool   `json:"needs_escalation"`
}

// Route is where a submission goes once the gate has been evaluated
type Route string

const (
	RouteAutoApproved       Route = "auto-approved"
	RoutePendingCFOApproval Route = "pending-cfo-approval"
	RouteBlocked            Route = "blocked"
)

// BlockReason explains why the gate is closed. Empty when allowed.
type BlockReason string

const (
	ReasonNone                 BlockReason = ""
	ReasonNoAgreement          BlockReason = "no_agreement"
	ReasonNoInvoice            BlockReason = "no_invoice"
	ReasonValidationFailed     BlockReason = "validation_failed"
	ReasonVendorMissing        BlockReason = "vendor_missing"
	ReasonTotalMismatch        BlockReason = "total_mismatch"
	ReasonAwaitingVerification BlockReason = "awaiting_verification"
)

// SubmissionDecision is the derived gate outcome. It is never stored on its own.
type SubmissionDecision struct {
	Allowed bool        `json:"allowed"`
	Route   Route       `json:"route"`
	Reason  BlockReason `json:"reason,omitempty"`
	Message string      `json:"message"`
}
