package entity

import "time"

// Role is the dashboard role a session acts under
type Role string

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleAuditor, RoleCFO, RoleVendor:
		return true
	}
	return false
}

// Session is one submission session: a selected agreement, the receipt
// extracted for it, and the user's verification state. Generation increases
// on every upload or reset so late extraction results can be recognised.
type Session struct {
	ID               string            `json:"id"`
	Role             Role              `json:"role"`
	WalletAddress    string            `json:"wallet_address"`
	AgreementID      string            `json:"agreement_id,omitempty"`
	Invoice          *ExtractedInvoice `json:"invoice,omitempty"`
	ReceiptPath      string            `json:"receipt_path,omitempty"`
	ManuallyVerified bool              `json:"manually_verified"`
	Scanning         bool              `json:"scanning"`
	LastError        string            `json:"last_error,omitempty"`
	Generation       uint64            `json:"generation"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ResetExtraction discards the invoice and everything derived from it
func (s *Session) ResetExtraction() {
	s.Invoice = nil
	s.ReceiptPath = ""
	s.ManuallyVerified = false
	s.Scanning = false
	s.LastError = ""
	s.Generation++
}

// Clone returns a deep copy safe to hand outside the owning service
func (s *Session) Clone() *Session {
	cp := *s
	cp.Invoice = s.Invoice.Clone()
	return &cp
}
