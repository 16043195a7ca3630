package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// Worker names
const (
	AgreementExpiryWorkerName  = "AgreementExpiryWorker"
	SessionSweeperWorkerName   = "SessionSweeperWorker"
	ReceiptRetentionWorkerName = "ReceiptRetentionWorker"
	AttestationRetryWorkerName = "AttestationRetryWorker"
)

// AgreementExpirer marks agreements whose period has ended as expired
type AgreementExpirer interface {
	ExpireEnded(ctx context.Context) ([]string, error)
}

// SessionSweeper closes idle sessions
type SessionSweeper interface {
	SweepIdle(ctx context.Context) int
}

// ReceiptPruner removes stored receipts older than a cutoff
type ReceiptPruner interface {
	Prune(ctx context.Context, dir string, cutoff time.Time) (int, error)
}

// SubmissionAttester lists submissions and attests them
type SubmissionAttester interface {
	List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error)
	Attest(ctx context.Context, id string) (*entity.Submission, error)
}

// NewAgreementExpiryWorker expires ended agreements on every tick
func NewAgreementExpiryWorker(expirer AgreementExpirer, config PeriodicConfig, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker(AgreementExpiryWorkerName, config, func(ctx context.Context) (int, error) {
		ids, err := expirer.ExpireEnded(ctx)
		return len(ids), err
	}, logger)
}

// NewSessionSweeperWorker closes sessions idle past their TTL
func NewSessionSweeperWorker(sweeper SessionSweeper, config PeriodicConfig, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker(SessionSweeperWorkerName, config, func(ctx context.Context) (int, error) {
		return sweeper.SweepIdle(ctx), nil
	}, logger)
}

// NewReceiptRetentionWorker deletes receipts under dir older than retention
func NewReceiptRetentionWorker(pruner ReceiptPruner, dir string, retention time.Duration, config PeriodicConfig, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker(ReceiptRetentionWorkerName, config, func(ctx context.Context) (int, error) {
		return pruner.Prune(ctx, dir, time.Now().Add(-retention))
	}, logger)
}

// NewAttestationRetryWorker attests approved submissions whose earlier
// attestation failed. Failures are counted and retried on the next tick.
func NewAttestationRetryWorker(submissions SubmissionAttester, batchSize int, config PeriodicConfig, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker(AttestationRetryWorkerName, config, func(ctx context.Context) (int, error) {
		attested := 0
		var errs []error
		for _, status := range []entity.SubmissionStatus{entity.SubmissionStatusAutoApproved, entity.SubmissionStatusApproved} {
			pending, err := submissions.List(ctx, entity.SubmissionFilter{Status: status, Limit: batchSize})
			if err != nil {
				return attested, err
			}
			for _, sub := range pending {
				if ctx.Err() != nil {
					return attested, ctx.Err()
				}
				if _, err := submissions.Attest(ctx, sub.ID); err != nil {
					errs = append(errs, err)
					continue
				}
				attested++
			}
		}
		return attested, errors.Join(errs...)
	}, logger)
}
