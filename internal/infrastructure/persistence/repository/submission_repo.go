package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

const submissionColumns = `
	id, session_id, agreement_id, submitted_by, role, vendor, invoice_number, invoice_date,
	category, items_json, tax_amount, grand_total, extracted_total, confidence_score,
	confidence_reason, manually_verified, route, status, results_json,
	reviewed_by, review_note, reviewed_at, tx_hash, block_number, attested_at,
	created_at, updated_at`

// SubmissionRepository implements port.SubmissionRepository
type SubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sql.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new submission
func (r *SubmissionRepository) Create(ctx context.Context, sub *entity.Submission) error {
	items, err := json.Marshal(sub.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	results, err := json.Marshal(sub.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}

	query := `
		INSERT INTO submissions (
			id, session_id, agreement_id, submitted_by, role, vendor, invoice_number, invoice_date,
			category, items_json, tax_amount, grand_total, extracted_total, confidence_score,
			confidence_reason, manually_verified, route, status, results_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		sub.ID,
		sub.SessionID,
		sub.AgreementID,
		sub.SubmittedBy,
		string(sub.Role),
		sub.Vendor,
		sub.InvoiceNumber,
		sub.InvoiceDate.String(),
		sub.Category,
		string(items),
		sub.TaxAmount,
		sub.GrandTotal,
		sub.ExtractedTotal,
		sub.ConfidenceScore,
		sub.ConfidenceReason,
		sub.ManuallyVerified,
		string(sub.Route),
		string(sub.Status),
		string(results),
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create submission",
			zap.String("submission_id", sub.ID),
			zap.String("agreement_id", sub.AgreementID),
			zap.Error(err))
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*entity.Submission, error) {
	query := `SELECT` + submissionColumns + ` FROM submissions WHERE id = ?`

	sub, err := scanSubmission(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get submission", zap.String("submission_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// List returns submissions newest first, narrowed by filter
func (r *SubmissionRepository) List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AgreementID != "" {
		where = append(where, "agreement_id = ?")
		args = append(args, filter.AgreementID)
	}
	if !filter.From.IsZero() {
		where = append(where, "invoice_date >= ?")
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		where = append(where, "invoice_date <= ?")
		args = append(args, filter.To.String())
	}

	query := `SELECT` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list submissions", zap.Error(err))
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*entity.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateStatus persists the workflow fields of a submission whose stored status is still from
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, sub *entity.Submission, from entity.SubmissionStatus) error {
	sub.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE submissions
		SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?,
			tx_hash = ?, block_number = ?, attested_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		string(sub.Status),
		sub.ReviewedBy,
		sub.ReviewNote,
		nullTime(sub.ReviewedAt),
		sub.TxHash,
		sub.BlockNumber,
		nullTime(sub.AttestedAt),
		sub.UpdatedAt,
		sub.ID,
		string(from),
	)
	if err != nil {
		r.logger.Error("Failed to update submission status",
			zap.String("submission_id", sub.ID),
			zap.String("status", string(sub.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to update submission status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.getExecutor(ctx).QueryRowContext(ctx, `SELECT status FROM submissions WHERE id = ?`, sub.ID).Scan(&current)
	if isNoRows(err) {
		return port.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read submission status: %w", err)
	}

	r.logger.Warn("Submission status changed before update",
		zap.String("submission_id", sub.ID),
		zap.String("expected", string(from)),
		zap.String("current", current))
	return fmt.Errorf("%w: %s is %s, expected %s", port.ErrStaleStatus, sub.ID, current, from)
}

// SetAttestation stores the attestation record of a submission
func (r *SubmissionRepository) SetAttestation(ctx context.Context, att *entity.Attestation) error {
	query := `
		INSERT INTO attestations (submission_id, tx_hash, block_number, network, attested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(submission_id) DO UPDATE SET
			tx_hash = excluded.tx_hash,
			block_number = excluded.block_number,
			network = excluded.network,
			attested_at = excluded.attested_at
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		att.SubmissionID,
		att.TxHash,
		att.BlockNumber,
		att.Network,
		att.AttestedAt,
	)
	if err != nil {
		r.logger.Error("Failed to store attestation", zap.String("submission_id", att.SubmissionID), zap.Error(err))
		return fmt.Errorf("failed to store attestation: %w", err)
	}
	return nil
}

// LastBlockNumber returns the highest attested block, or zero
func (r *SubmissionRepository) LastBlockNumber(ctx context.Context) (int64, error) {
	var block int64
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(block_number), 0) FROM attestations`).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("failed to read last block number: %w", err)
	}
	return block, nil
}

func scanSubmission(s scanner) (*entity.Submission, error) {
	var (
		sub                    entity.Submission
		role, route, status    string
		invoiceDate            string
		items, results         string
		reviewedAt, attestedAt sql.NullTime
	)

	err := s.Scan(
		&sub.ID,
		&sub.SessionID,
		&sub.AgreementID,
		&sub.SubmittedBy,
		&role,
		&sub.Vendor,
		&sub.InvoiceNumber,
		&invoiceDate,
		&sub.Category,
		&items,
		&sub.TaxAmount,
		&sub.GrandTotal,
		&sub.ExtractedTotal,
		&sub.ConfidenceScore,
		&sub.ConfidenceReason,
		&sub.ManuallyVerified,
		&route,
		&status,
		&results,
		&sub.ReviewedBy,
		&sub.ReviewNote,
		&reviewedAt,
		&sub.TxHash,
		&sub.BlockNumber,
		&attestedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.InvoiceDate, err = parseStoredDate(invoiceDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &sub.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &sub.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}

	sub.Role = entity.Role(role)
	sub.Route = entity.Route(route)
	sub.Status = entity.SubmissionStatus(status)
	if reviewedAt.Valid {
		sub.ReviewedAt = &reviewedAt.Time
	}
	if attestedAt.Valid {
		sub.AttestedAt = &attestedAt.Time
	}
	return &sub, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *SubmissionRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.SubmissionRepository = (*SubmissionRepository)(nil)
