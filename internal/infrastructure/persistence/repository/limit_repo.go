package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// DailyLimitRepository implements port.DailyLimitRepository
type DailyLimitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDailyLimitRepository creates a new daily limit repository
func NewDailyLimitRepository(db *sql.DB, logger *zap.Logger) port.DailyLimitRepository {
	return &DailyLimitRepository{
		db:     db,
		logger: logger,
	}
}

// List returns all limits ordered by category
func (r *DailyLimitRepository) List(ctx context.Context) ([]*entity.DailyLimit, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx,
		`SELECT category, limit_amount, updated_at FROM daily_limits ORDER BY category`)
	if err != nil {
		r.logger.Error("Failed to list daily limits", zap.Error(err))
		return nil, fmt.Errorf("failed to list daily limits: %w", err)
	}
	defer rows.Close()

	var limits []*entity.DailyLimit
	for rows.Next() {
		l, err := scanLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily limit: %w", err)
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

// Get retrieves the limit of one category
func (r *DailyLimitRepository) Get(ctx context.Context, category string) (*entity.DailyLimit, error) {
	l, err := scanLimit(r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT category, limit_amount, updated_at FROM daily_limits WHERE category = ?`, category))
	if isNoRows(err) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get daily limit", zap.String("category", category), zap.Error(err))
		return nil, fmt.Errorf("failed to get daily limit: %w", err)
	}
	return l, nil
}

// Upsert creates or replaces a category limit
func (r *DailyLimitRepository) Upsert(ctx context.Context, limit *entity.DailyLimit) error {
	if limit.UpdatedAt.IsZero() {
		limit.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO daily_limits (category, limit_amount, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			limit_amount = excluded.limit_amount,
			updated_at = excluded.updated_at
	`
	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, limit.Category, limit.Limit, limit.UpdatedAt); err != nil {
		r.logger.Error("Failed to upsert daily limit", zap.String("category", limit.Category), zap.Error(err))
		return fmt.Errorf("failed to upsert daily limit: %w", err)
	}
	return nil
}

// AppendHistory records a limit change
func (r *DailyLimitRepository) AppendHistory(ctx context.Context, change *entity.LimitChange) error {
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO daily_limit_history (category, old_limit, new_limit, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		change.Category,
		change.OldLimit,
		change.NewLimit,
		change.ChangedBy,
		change.ChangedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append limit history", zap.String("category", change.Category), zap.Error(err))
		return fmt.Errorf("failed to append limit history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	change.ID = id
	return nil
}

// History returns the most recent changes first, optionally for one category
func (r *DailyLimitRepository) History(ctx context.Context, category string, limit int) ([]*entity.LimitChange, error) {
	query := `
		SELECT id, category, old_limit, new_limit, changed_by, changed_at
		FROM daily_limit_history
		WHERE (? = '' OR category = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, category, category, limit)
	if err != nil {
		r.logger.Error("Failed to query limit history", zap.String("category", category), zap.Error(err))
		return nil, fmt.Errorf("failed to query limit history: %w", err)
	}
	defer rows.Close()

	var changes []*entity.LimitChange
	for rows.Next() {
		var c entity.LimitChange
		if err := rows.Scan(&c.ID, &c.Category, &c.OldLimit, &c.NewLimit, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit change: %w", err)
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

func scanLimit(s scanner) (*entity.DailyLimit, error) {
	var (
		l         entity.DailyLimit
		updatedAt sql.NullTime
	)
	if err := s.Scan(&l.Category, &l.Limit, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		l.UpdatedAt = updatedAt.Time
	}
	return &l, nil
}

func (r *DailyLimitRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.DailyLimitRepository = (*DailyLimitRepository)(nil)
