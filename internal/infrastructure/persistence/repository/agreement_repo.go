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

const agreementColumns = `
	id, vendor, category, item_name, price_per_unit, total_quantity, used_quantity,
	period_start, period_end, payment_terms, status, contract_address, created_at, updated_at`

// AgreementRepository implements port.AgreementRepository
type AgreementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAgreementRepository creates a new agreement repository
func NewAgreementRepository(db *sql.DB, logger *zap.Logger) port.AgreementRepository {
	return &AgreementRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an agreement by ID
func (r *AgreementRepository) Get(ctx context.Context, id string) (*entity.Agreement, error) {
	query := `SELECT` + agreementColumns + ` FROM agreements WHERE id = ?`

	a, err := scanAgreement(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get agreement", zap.String("agreement_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	return a, nil
}

// List returns agreements ordered by ID, filtered by status when not empty
func (r *AgreementRepository) List(ctx context.Context, status entity.AgreementStatus) ([]*entity.Agreement, error) {
	query := `SELECT` + agreementColumns + ` FROM agreements WHERE (? = '' OR status = ?) ORDER BY id`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, string(status), string(status))
	if err != nil {
		r.logger.Error("Failed to list agreements", zap.String("status", string(status)), zap.Error(err))
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	defer rows.Close()

	var agreements []*entity.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}

// Upsert inserts or replaces an agreement, keeping its original created_at
func (r *AgreementRepository) Upsert(ctx context.Context, a *entity.Agreement) error {
	query := `
		INSERT INTO agreements (
			id, vendor, category, item_name, price_per_unit, total_quantity, used_quantity,
			period_start, period_end, payment_terms, status, contract_address, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor = excluded.vendor,
			category = excluded.category,
			item_name = excluded.item_name,
			price_per_unit = excluded.price_per_unit,
			total_quantity = excluded.total_quantity,
			used_quantity = excluded.used_quantity,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			payment_terms = excluded.payment_terms,
			status = excluded.status,
			contract_address = excluded.contract_address,
			updated_at = excluded.updated_at
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		a.ID,
		a.Vendor,
		a.Category,
		a.ItemName,
		a.PricePerUnit,
		a.TotalQuantity,
		a.UsedQuantity,
		a.Period.Start.String(),
		a.Period.End.String(),
		string(a.PaymentTerms),
		string(a.Status),
		a.ContractAddress,
		time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert agreement", zap.String("agreement_id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert agreement: %w", err)
	}
	return nil
}

// ConsumeQuantity adds qty to the used quantity in a single guarded update
func (r *AgreementRepository) ConsumeQuantity(ctx context.Context, id string, qty float64) error {
	query := `
		UPDATE agreements
		SET used_quantity = used_quantity + ?, updated_at = ?
		WHERE id = ? AND used_quantity + ? <= total_quantity
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, qty, time.Now().UTC(), id, qty)
	if err != nil {
		r.logger.Error("Failed to consume agreement quantity",
			zap.String("agreement_id", id),
			zap.Float64("quantity", qty),
			zap.Error(err))
		return fmt.Errorf("failed to consume agreement quantity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Tell a missing agreement apart from an exhausted one
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return port.ErrInsufficientQuantity
}

// ExpireEnded marks active agreements whose period ended before day as expired
func (r *AgreementRepository) ExpireEnded(ctx context.Context, day entity.Date) ([]string, error) {
	exec := r.getExecutor(ctx)

	rows, err := exec.QueryContext(ctx,
		`SELECT id FROM agreements WHERE status = ? AND period_end < ? ORDER BY id`,
		string(entity.AgreementStatusActive), day.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query ended agreements: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan agreement id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		_, err := exec.ExecContext(ctx,
			`UPDATE agreements SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(entity.AgreementStatusExpired), time.Now().UTC(), id, string(entity.AgreementStatusActive))
		if err != nil {
			r.logger.Error("Failed to expire agreement", zap.String("agreement_id", id), zap.Error(err))
			return nil, fmt.Errorf("failed to expire agreement %s: %w", id, err)
		}
	}
	return ids, nil
}

func scanAgreement(s scanner) (*entity.Agreement, error) {
	var (
		a                  entity.Agreement
		start, end         string
		terms, status      string
		createdAt, updated sql.NullTime
	)

	err := s.Scan(
		&a.ID,
		&a.Vendor,
		&a.Category,
		&a.ItemName,
		&a.PricePerUnit,
		&a.TotalQuantity,
		&a.UsedQuantity,
		&start,
		&end,
		&terms,
		&status,
		&a.ContractAddress,
		&createdAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	if a.Period.Start, err = parseStoredDate(start); err != nil {
		return nil, err
	}
	if a.Period.End, err = parseStoredDate(end); err != nil {
		return nil, err
	}
	a.PaymentTerms = entity.PaymentTerms(terms)
	a.Status = entity.AgreementStatus(status)
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	if updated.Valid {
		a.UpdatedAt = updated.Time
	}
	return &a, nil
}

func (r *AgreementRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.AgreementRepository = (*AgreementRepository)(nil)
