package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItem_TotalFollowsEdits(t *testing.T) {
	item := NewLineItem("Laptop", 2, 8000000)
	assert.Equal(t, 16000000.0, item.Total)

	item.SetQuantity(3)
	assert.Equal(t, item.Quantity*item.UnitPrice, item.Total)

	item.SetUnitPrice(7500000)
	assert.Equal(t, 22500000.0, item.Total)
}

func TestExtractedInvoice_Totals(t *testing.T) {
	inv := &ExtractedInvoice{
		Items: []LineItem{
			NewLineItem("A", 2, 1000),
			NewLineItem("B", 1, 500),
		},
		TaxAmount: 275,
	}

	assert.Equal(t, 2500.0, inv.Subtotal())
	assert.Equal(t, 2775.0, inv.GrandTotal())
	assert.Equal(t, 3.0, inv.TotalQuantity())

	inv.Items[0].Quantity = 4
	inv.Recalculate()
	assert.Equal(t, 4000.0, inv.Items[0].Total)
}

func TestExtractedInvoice_CloneIsDeep(t *testing.T) {
	reason := "clear"
	inv := &ExtractedInvoice{Items: []LineItem{NewLineItem("A", 1, 10)}, ConfidenceReason: &reason}

	cp := inv.Clone()
	cp.Items[0].SetQuantity(5)
	*cp.ConfidenceReason = "changed"

	assert.Equal(t, 1.0, inv.Items[0].Quantity)
	assert.Equal(t, "clear", *inv.ConfidenceReason)
	assert.Nil(t, (*ExtractedInvoice)(nil).Clone())
}

func TestContractPeriod_Contains(t *testing.T) {
	period := ContractPeriod{Start: MustParseDate("2025-01-01"), End: MustParseDate("2025-12-31")}

	tests := []struct {
		day  string
		want bool
	}{
		{"2024-12-31", false},
		{"2025-01-01", true},
		{"2025-06-01", true},
		{"2025-12-31", true},
		{"2026-01-01", false},
	}

	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			assert.Equal(t, tt.want, period.Contains(MustParseDate(tt.day)))
		})
	}

	assert.True(t, period.Ended(MustParseDate("2026-01-01")))
	assert.False(t, period.Ended(MustParseDate("2025-12-31")))
}

func TestAgreement_RemainingQuantity(t *testing.T) {
	a := &Agreement{TotalQuantity: 10, UsedQuantity: 4}
	assert.Equal(t, 6.0, a.RemainingQuantity())

	a.UsedQuantity = 12
	assert.Equal(t, 0.0, a.RemainingQuantity())
}

func TestAgreement_IsSelectable(t *testing.T) {
	assert.True(t, (&Agreement{Status: AgreementStatusActive}).IsSelectable())
	assert.False(t, (&Agreement{Status: AgreementStatusExpired}).IsSelectable())
	assert.False(t, (&Agreement{Status: AgreementStatusPendingVendor}).IsSelectable())
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Day Date `json:"day"`
	}

	data, err := json.Marshal(wrapper{Day: NewDate(2025, 6, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2025-06-01"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"day":"2025-01-18"}`), &w))
	assert.Equal(t, "2025-01-18", w.Day.String())

	require.NoError(t, json.Unmarshal([]byte(`{"day":null}`), &w))
	assert.True(t, w.Day.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"day":"18/01/2025"}`), &w))
}

func TestDate_AddDays(t *testing.T) {
	d := MustParseDate("2025-12-31")
	assert.Equal(t, "2026-01-01", d.AddDays(1).String())
	assert.Equal(t, "2025-12-30", d.AddDays(-1).String())
}

func TestSession_ResetExtraction(t *testing.T) {
	s := &Session{
		Invoice:          &ExtractedInvoice{Vendor: "PT Supplier ABC"},
		ManuallyVerified: true,
		LastError:        "boom",
		Generation:       3,
	}

	s.ResetExtraction()

	assert.Nil(t, s.Invoice)
	assert.False(t, s.ManuallyVerified)
	assert.Empty(t, s.LastError)
	assert.Equal(t, uint64(4), s.Generation)
}

func TestSubmission_AuditStatus(t *testing.T) {
	tests := []struct {
		status SubmissionStatus
		want   string
	}{
		{SubmissionStatusAttested, AuditStatusVerified},
		{SubmissionStatusRejected, AuditStatusFailed},
		{SubmissionStatusPendingCFO, AuditStatusPending},
		{SubmissionStatusApproved, AuditStatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := &Submission{Status: tt.status}
			assert.Equal(t, tt.want, s.AuditStatus())
		})
	}
}

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleAuditor.IsValid())
	assert.True(t, RoleCFO.IsValid())
	assert.False(t, Role("admin").IsValid())
}
