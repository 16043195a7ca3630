package port

import (
	"context"
	"errors"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientQuantity is returned when consuming more than an agreement has left
	ErrInsufficientQuantity = errors.New("insufficient agreement quantity")

	// ErrStaleStatus is returned when a submission left the expected status before an update
	ErrStaleStatus = errors.New("submission status changed concurrently")
)

// AgreementRepository defines persistence operations for Agreement
type AgreementRepository interface {
	Get(ctx context.Context, id string) (*entity.Agreement, error)
	List(ctx context.Context, status entity.AgreementStatus) ([]*entity.Agreement, error)
	Upsert(ctx context.Context, agreement *entity.Agreement) error
	// ConsumeQuantity adds qty to the used quantity. It returns
	// ErrInsufficientQuantity without change when the total would be exceeded.
	ConsumeQuantity(ctx context.Context, id string, qty float64) error
	// ExpireEnded marks active agreements whose period ended before day as expired
	ExpireEnded(ctx context.Context, day entity.Date) ([]string, error)
}

// DailyLimitRepository defines persistence operations for DailyLimit
type DailyLimitRepository interface {
	List(ctx context.Context) ([]*entity.DailyLimit, error)
	Get(ctx context.Context, category string) (*entity.DailyLimit, error)
	Upsert(ctx context.Context, limit *entity.DailyLimit) error
	AppendHistory(ctx context.Context, change *entity.LimitChange) error
	History(ctx context.Context, category string, limit int) ([]*entity.LimitChange, error)
}

// SpendLedger records approved spend per category and day
type SpendLedger interface {
	SpendOn(ctx context.Context, category string, day entity.Date) (float64, error)
	Add(ctx context.Context, category string, day entity.Date, amount float64, submissionID string) error
	UsageOn(ctx context.Context, day entity.Date) (map[string]float64, error)
}

// ActivityRepository stores the event history of submissions and sessions
type ActivityRepository interface {
	// Append records activity. An event that was already recorded is ignored.
	Append(ctx context.Context, activity *entity.Activity) error
	// ListBySubject returns a subject's activity, oldest first
	ListBySubject(ctx context.Context, subjectID string) ([]*entity.Activity, error)
}

// SubmissionRepository defines persistence operations for Submission
type SubmissionRepository interface {
	Create(ctx context.Context, submission *entity.Submission) error
	Get(ctx context.Context, id string) (*entity.Submission, error)
	List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error)
	// UpdateStatus persists the workflow fields when the stored status is still
	// from, and returns ErrStaleStatus otherwise.
	UpdateStatus(ctx context.Context, submission *entity.Submission, from entity.SubmissionStatus) error
	SetAttestation(ctx context.Context, attestation *entity.Attestation) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
