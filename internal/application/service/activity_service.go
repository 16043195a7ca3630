package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/event"
)

// ActivityService keeps the event history shown next to a submission or session
type ActivityService interface {
	// Record stores evt. It has the dispatcher handler signature so it can be
	// subscribed to every event directly.
	Record(ctx context.Context, evt *event.Event) error
	List(ctx context.Context, subjectID string) ([]*entity.Activity, error)
}

type activityServiceImpl struct {
	repo   port.ActivityRepository
	logger Logger
}

// NewActivityService creates a new ActivityService
func NewActivityService(repo port.ActivityRepository, logger Logger) ActivityService {
	return &activityServiceImpl{repo: repo, logger: logger}
}

func (s *activityServiceImpl) Record(ctx context.Context, evt *event.Event) error {
	if evt == nil || evt.SubjectID == "" {
		return fmt.Errorf("activity needs an event with a subject")
	}

	activity := &entity.Activity{
		EventID:       evt.ID,
		EventType:     evt.Type.String(),
		SubjectID:     evt.SubjectID,
		CorrelationID: evt.CorrelationID,
		Payload:       evt.Payload,
		OccurredAt:    evt.Timestamp,
	}
	if err := s.repo.Append(ctx, activity); err != nil {
		s.logger.Error("Failed to record activity",
			"event_type", evt.Type,
			"subject_id", evt.SubjectID,
			"error", err)
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

func (s *activityServiceImpl) List(ctx context.Context, subjectID string) ([]*entity.Activity, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject", port.ErrNotFound)
	}
	activities, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return activities, nil
}
