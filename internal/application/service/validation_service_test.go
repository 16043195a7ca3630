package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/gate"
	"github.com/garyjia/agreement-validation/internal/domain/validation"
)

type failingLimitRepo struct {
	*memLimitRepo
}

func (r *failingLimitRepo) Get(ctx context.Context, category string) (*entity.DailyLimit, error) {
	return nil, errors.New("database is locked")
}

func newTestValidationService(limits map[string]float64, ledger *memLedger) ValidationService {
	return NewValidationService(newMemLimitRepo(limits), ledger, DefaultValidationSettings(), fixedClock("2025-06-01"), &mockLogger{})
}

func TestValidationService_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		todaySpend float64
		unitPrice  float64
		confidence float64
		verified   bool
		wantRoute  entity.Route
		wantReason entity.BlockReason
	}{
		{"auto approved", 0, 8000000, 0.95, false, entity.RouteAutoApproved, entity.ReasonNone},
		{"price mismatch", 0, 8500000, 0.95, false, entity.RouteBlocked, entity.ReasonValidationFailed},
		{"low confidence", 0, 8000000, 0.5, false, entity.RouteBlocked, entity.ReasonAwaitingVerification},
		{"low confidence verified", 0, 8000000, 0.5, true, entity.RouteAutoApproved, entity.ReasonNone},
		{"over daily limit", 40000000, 8000000, 0.95, false, entity.RoutePendingCFOApproval, entity.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemLedger()
			ledger.spend[ledgerKey("Electronics", entity.MustParseDate("2025-06-01"))] = tt.todaySpend
			svc := newTestValidationService(map[string]float64{"Electronics": 50000000}, ledger)

			eval, err := svc.Evaluate(context.Background(), EvaluateInput{
				Agreement:        laptopAgreement(),
				Invoice:          laptopInvoice(tt.unitPrice, tt.confidence),
				ManuallyVerified: tt.verified,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantRoute, eval.Decision.Route)
			assert.Equal(t, tt.wantReason, eval.Decision.Reason)
			require.Len(t, eval.Results, 5)
			assert.Equal(t, entity.RuleTotalReconciliation, eval.Results[4].Rule)
			assert.Equal(t, "2025-06-01", eval.Day.String())
			assert.Equal(t, tt.todaySpend, eval.Budget.TodaySpend)
		})
	}
}

func TestValidationService_MissingInputs(t *testing.T) {
	svc := newTestValidationService(nil, newMemLedger())

	eval, err := svc.Evaluate(context.Background(), EvaluateInput{Invoice: laptopInvoice(8000000, 1)})
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonNoAgreement, eval.Decision.Reason)
	assert.Empty(t, eval.Results)

	eval, err = svc.Evaluate(context.Background(), EvaluateInput{Agreement: laptopAgreement()})
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonNoInvoice, eval.Decision.Reason)
}

func TestValidationService_NoLimitConfigured(t *testing.T) {
	svc := newTestValidationService(nil, newMemLedger())

	budget, err := svc.Budget(context.Background(), "Electronics", entity.MustParseDate("2025-06-01"))
	require.NoError(t, err)
	assert.False(t, budget.HasLimit)

	eval, err := svc.Evaluate(context.Background(), EvaluateInput{
		Agreement: laptopAgreement(),
		Invoice:   laptopInvoice(8000000, 0.95),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RouteAutoApproved, eval.Decision.Route)
}

func TestValidationService_ReconciliationToggle(t *testing.T) {
	inv := laptopInvoice(8000000, 0.95)
	inv.ExtractedTotal = 99999999

	settings := ValidationSettings{Rules: validation.DefaultRuleSet(), Gate: gate.New(), Reconcile: true}
	svc := NewValidationService(newMemLimitRepo(nil), newMemLedger(), settings, fixedClock("2025-06-01"), &mockLogger{})
	eval, err := svc.Evaluate(context.Background(), EvaluateInput{Agreement: laptopAgreement(), Invoice: inv})
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonTotalMismatch, eval.Decision.Reason)

	settings.Reconcile = false
	svc = NewValidationService(newMemLimitRepo(nil), newMemLedger(), settings, fixedClock("2025-06-01"), &mockLogger{})
	eval, err = svc.Evaluate(context.Background(), EvaluateInput{Agreement: laptopAgreement(), Invoice: inv})
	require.NoError(t, err)
	assert.True(t, eval.Decision.Allowed)
	assert.Len(t, eval.Results, 4)
}

func TestValidationService_LimitRepoError(t *testing.T) {
	svc := NewValidationService(&failingLimitRepo{newMemLimitRepo(nil)}, newMemLedger(), DefaultValidationSettings(), fixedClock("2025-06-01"), &mockLogger{})

	_, err := svc.Evaluate(context.Background(), EvaluateInput{
		Agreement: laptopAgreement(),
		Invoice:   laptopInvoice(8000000, 0.95),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
