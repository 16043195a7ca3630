package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

func TestLimitService_Update(t *testing.T) {
	repo := newMemLimitRepo(map[string]float64{"Electronics": 50000000, "Travel": 30000000})
	tx := &mockTxManager{}
	svc := NewLimitService(repo, newMemLedger(), tx, fixedClock("2025-06-01"), &mockLogger{})

	changes, err := svc.Update(context.Background(), "0xCFO", map[string]float64{
		"Electronics": 60000000,
		"Travel":      30000000,
		"Marketing":   75000000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)

	require.Len(t, changes, 2)
	assert.Equal(t, "Electronics", changes[0].Category)
	assert.Equal(t, 50000000.0, changes[0].OldLimit)
	assert.Equal(t, 60000000.0, changes[0].NewLimit)
	assert.Equal(t, "0xCFO", changes[0].ChangedBy)
	assert.Equal(t, "Marketing", changes[1].Category)
	assert.Equal(t, 0.0, changes[1].OldLimit)

	history, err := svc.History(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	l, err := repo.Get(context.Background(), "Electronics")
	require.NoError(t, err)
	assert.Equal(t, 60000000.0, l.Limit)
}

func TestLimitService_UpdateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		limits map[string]float64
	}{
		{"negative", map[string]float64{"Electronics": -1}},
		{"nan", map[string]float64{"Electronics": math.NaN()}},
		{"blank category", map[string]float64{" ": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &mockTxManager{}
			svc := NewLimitService(newMemLimitRepo(nil), newMemLedger(), tx, nil, &mockLogger{})

			_, err := svc.Update(context.Background(), "cfo", tt.limits)
			assert.True(t, errors.Is(err, ErrInvalidLimit))
			assert.Zero(t, tx.calls)
		})
	}
}

func TestLimitService_Usage(t *testing.T) {
	day := entity.MustParseDate("2025-06-01")
	ledger := newMemLedger()
	ledger.spend[ledgerKey("Electronics", day)] = 20000000
	ledger.spend[ledgerKey("Groceries", day)] = 150000
	ledger.spend[ledgerKey("Electronics", day.AddDays(-1))] = 99000000

	svc := NewLimitService(newMemLimitRepo(map[string]float64{"Electronics": 50000000, "Travel": 30000000}),
		ledger, &mockTxManager{}, fixedClock("2025-06-01"), &mockLogger{})

	usage, err := svc.Usage(context.Background(), entity.Date{})
	require.NoError(t, err)
	require.Len(t, usage, 3)

	assert.Equal(t, "Electronics", usage[0].Category)
	assert.Equal(t, 20000000.0, usage[0].Spent)
	assert.Equal(t, 30000000.0, usage[0].Remaining)
	assert.Equal(t, "Groceries", usage[1].Category)
	assert.Equal(t, 0.0, usage[1].Limit)
	assert.Equal(t, "Travel", usage[2].Category)
	assert.Equal(t, 30000000.0, usage[2].Remaining)
}

func TestLimitService_SeedKeepsExisting(t *testing.T) {
	repo := newMemLimitRepo(map[string]float64{"Electronics": 1})
	svc := NewLimitService(repo, newMemLedger(), &mockTxManager{}, nil, &mockLogger{})

	require.NoError(t, svc.Seed(context.Background(), map[string]float64{"Electronics": 50000000, "Travel": 30000000}))

	limits, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, limits, 2)
	assert.Equal(t, 1.0, limits[0].Limit)
	assert.Equal(t, 30000000.0, limits[1].Limit)
}
