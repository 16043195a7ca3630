package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// SpendLedgerRepository implements port.SpendLedger on an append-only table
type SpendLedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSpendLedgerRepository creates a new spend ledger repository
func NewSpendLedgerRepository(db *sql.DB, logger *zap.Logger) port.SpendLedger {
	return &SpendLedgerRepository{
		db:     db,
		logger: logger,
	}
}

// SpendOn sums the approved spend of category on day
func (r *SpendLedgerRepository) SpendOn(ctx context.Context, category string, day entity.Date) (float64, error) {
	var total float64
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM spend_ledger WHERE category = ? AND day = ?`,
		category, day.String(),
	).Scan(&total)
	if err != nil {
		r.logger.Error("Failed to sum spend",
			zap.String("category", category),
			zap.String("day", day.String()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to sum spend: %w", err)
	}
	return total, nil
}

// Add books amount against category on day
func (r *SpendLedgerRepository) Add(ctx context.Context, category string, day entity.Date, amount float64, submissionID string) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx,
		`INSERT INTO spend_ledger (category, day, amount, submission_id) VALUES (?, ?, ?, ?)`,
		category, day.String(), amount, submissionID,
	)
	if err != nil {
		r.logger.Error("Failed to book spend",
			zap.String("category", category),
			zap.String("submission_id", submissionID),
			zap.Error(err))
		return fmt.Errorf("failed to book spend: %w", err)
	}
	return nil
}

// UsageOn returns the spend of every category with bookings on day
func (r *SpendLedgerRepository) UsageOn(ctx context.Context, day entity.Date) (map[string]float64, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx,
		`SELECT category, SUM(amount) FROM spend_ledger WHERE day = ? GROUP BY category`,
		day.String(),
	)
	if err != nil {
		r.logger.Error("Failed to query usage", zap.String("day", day.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]float64)
	for rows.Next() {
		var (
			category string
			spent    float64
		)
		if err := rows.Scan(&category, &spent); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage[category] = spent
	}
	return usage, rows.Err()
}

func (r *SpendLedgerRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.SpendLedger = (*SpendLedgerRepository)(nil)
