package entity

import "time"

// SubmissionStatus is the persisted workflow state of a submission
type SubmissionStatus string

// Submission is an invoice handed off after the gate allowed it
type Submission struct {
	ID               string             `json:"id"`
	SessionID        string             `json:"session_id"`
	AgreementID      string             `json:"agreement_id"`
	SubmittedBy      string             `json:"submitted_by"`
	Role             Role               `json:"role"`
	Vendor           string             `json:"vendor"`
	InvoiceNumber    string             `json:"invoice_number"`
	InvoiceDate      Date               `json:"invoice_date"`
	Category         string             `json:"category"`
	Items            []LineItem         `json:"items"`
	TaxAmount        float64            `json:"tax_amount"`
	GrandTotal       float64            `json:"grand_total"`
	ExtractedTotal   float64            `json:"extracted_total"`
	ConfidenceScore  float64            `json:"confidence_score"`
	ConfidenceReason string             `json:"confidence_reason,omitempty"`
	ManuallyVerified bool               `json:"manually_verified"`
	Route            Route              `json:"route"`
	Status           SubmissionStatus   `json:"status"`
	Results          []ValidationResult `json:"results"`
	ReviewedBy       string             `json:"reviewed_by,omitempty"`
	ReviewNote       string             `json:"review_note,omitempty"`
	ReviewedAt       *time.Time         `json:"reviewed_at,omitempty"`
	TxHash           string             `json:"tx_hash,omitempty"`
	BlockNumber      int64              `json:"block_number,omitempty"`
	AttestedAt       *time.Time         `json:"attested_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TotalQuantity sums the line quantities
func (s *Submission) TotalQuantity() float64 {
	var sum float64
	for _, item := range s.Items {
		sum += item.Quantity
	}
	return sum
}

// AuditStatus maps the workflow status to the auditor list's three buckets
func (s *Submission) AuditStatus() string {
	switch s.Status {
	case SubmissionStatusAttested:
		return AuditStatusVerified
	case SubmissionStatusRejected:
		return AuditStatusFailed
	default:
		return AuditStatusPending
	}
}

// SubmissionFilter narrows submission listings. Zero values match everything.
type SubmissionFilter struct {
	Status      SubmissionStatus
	AgreementID string
	From        Date
	To          Date
	Limit       int
	Offset      int
}

// Attestation is the simulated on-chain record of an approved submission
type Attestation struct {
	SubmissionID string    `json:"submission_id"`
	TxHash       string    `json:"tx_hash"`
	BlockNumber  int64     `json:"block_number"`
	Network      string    `json:"network"`
	AttestedAt   time.Time `json:"attested_at"`
}
