package entity

// Agreement status constants
const (
	AgreementStatusActive        AgreementStatus = "active"
	AgreementStatusPendingVendor AgreementStatus = "pending-vendor"
	AgreementStatusPendingCFO    AgreementStatus = "pending-cfo"
	AgreementStatusExpired       AgreementStatus = "expired"
)

// Payment terms constants
const (
	PaymentTermsFull        PaymentTerms = "full"
	PaymentTermsInstallment PaymentTerms = "installment"
)

// Session role constants
const (
	RoleAuditor Role = "auditor"
	RoleCFO     Role = "cfo"
	RoleVendor  Role = "vendor"
)

// Submission status constants. Values mirror the workflow states.
const (
	SubmissionStatusSubmitted    SubmissionStatus = "SUBMITTED"
	SubmissionStatusAutoApproved SubmissionStatus = "AUTO_APPROVED"
	SubmissionStatusPendingCFO   SubmissionStatus = "PENDING_CFO_APPROVAL"
	SubmissionStatusApproved     SubmissionStatus = "APPROVED"
	SubmissionStatusRejected     SubmissionStatus = "REJECTED"
	SubmissionStatusAttested     SubmissionStatus = "ATTESTED"
)

// Audit status shown on the auditor submissions list
const (
	AuditStatusVerified = "verified"
	AuditStatusPending  = "pending"
	AuditStatusFailed   = "failed"
)

// DefaultCategories is the category list offered to the extraction model when
// no list is configured.
var DefaultCategories = []string{
	"Meals & Entertainment",
	"Transport & Travel",
	"Office Supplies",
	"Software Subscription",
	"Hardware Equipment",
	"Utilities",
	"Professional Services",
	"Electronics",
	"Services",
	"Raw Materials",
	"Travel",
	"Marketing",
}
