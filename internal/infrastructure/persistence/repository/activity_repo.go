package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// ActivityRepository implements port.ActivityRepository on the activity_log table
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sql.DB, logger *zap.Logger) port.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts activity. Dispatch retries may deliver the same event twice,
// so a duplicate event ID is skipped.
func (r *ActivityRepository) Append(ctx context.Context, activity *entity.Activity) error {
	payload := activity.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode activity payload: %w", err)
	}
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now().UTC()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, `
		INSERT INTO activity_log (event_id, event_type, subject_id, correlation_id, payload_json, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		activity.EventID,
		activity.EventType,
		activity.SubjectID,
		activity.CorrelationID,
		string(payloadJSON),
		activity.OccurredAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append activity",
			zap.String("event_id", activity.EventID),
			zap.String("subject_id", activity.SubjectID),
			zap.Error(err))
		return fmt.Errorf("failed to append activity: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		r.logger.Debug("Activity already recorded", zap.String("event_id", activity.EventID))
		return nil
	}
	activity.ID, _ = result.LastInsertId()
	return nil
}

// ListBySubject returns a subject's activity, oldest first
func (r *ActivityRepository) ListBySubject(ctx context.Context, subjectID string) ([]*entity.Activity, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `
		SELECT id, event_id, event_type, subject_id, correlation_id, payload_json, occurred_at
		FROM activity_log
		WHERE subject_id = ?
		ORDER BY occurred_at, id`,
		subjectID,
	)
	if err != nil {
		r.logger.Error("Failed to list activity", zap.String("subject_id", subjectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	activities := make([]*entity.Activity, 0)
	for rows.Next() {
		a, err := r.scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (r *ActivityRepository) scanActivity(row scanner) (*entity.Activity, error) {
	var (
		a       entity.Activity
		payload string
	)
	if err := row.Scan(&a.ID, &a.EventID, &a.EventType, &a.SubjectID, &a.CorrelationID, &payload, &a.OccurredAt); err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode activity payload: %w", err)
	}
	return &a, nil
}

func (r *ActivityRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

// Verify interface compliance
var _ port.ActivityRepository = (*ActivityRepository)(nil)
