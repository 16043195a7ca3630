package entity

import "time"

// AgreementStatus is the lifecycle status of a vendor agreement
type AgreementStatus string

// PaymentTerms describes how an agreement is paid out
type PaymentTerms string

// ContractPeriod is the inclusive validity window of an agreement
type ContractPeriod struct {
	Start Date `json:"start" validate:"required"`
	End   Date `json:"end" validate:"required"`
}

// Contains reports whether day falls within [Start, End]
func (p ContractPeriod) Contains(day Date) bool {
	return !day.Before(p.Start) && !day.After(p.End)
}

// Ended reports whether the period is over as of day
func (p ContractPeriod) Ended(day Date) bool {
	return day.After(p.End)
}

// Agreement is a purchase agreement between the company and a vendor.
// It is reference data for a submission and is never changed by validation.
type Agreement struct {
	ID              string          `json:"id" validate:"required"`
	Vendor          string          `json:"vendor" validate:"required"`
	Category        string          `json:"category" validate:"required"`
	ItemName        string          `json:"item_name" validate:"required"`
	PricePerUnit    float64         `json:"price_per_unit" validate:"gte=0"`
	TotalQuantity   float64         `json:"total_quantity" validate:"gte=0"`
	UsedQuantity    float64         `json:"used_quantity" validate:"gte=0,ltefield=TotalQuantity"`
	Period          ContractPeriod  `json:"contract_period"`
	PaymentTerms    PaymentTerms    `json:"payment_terms" validate:"omitempty,oneof=full installment"`
	Status          AgreementStatus `json:"status" validate:"required,oneof=active pending-vendor pending-cfo expired"`
	ContractAddress string          `json:"contract_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RemainingQuantity is TotalQuantity minus UsedQuantity, floored at zero
func (a *Agreement) RemainingQuantity() float64 {
	remaining := a.TotalQuantity - a.UsedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsSelectable reports whether invoices may be submitted against the agreement
func (a *Agreement) IsSelectable() bool {
	return a.Status == AgreementStatusActive
}
