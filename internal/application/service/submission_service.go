package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/agreement-validation/internal/application/dispatcher"
	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/event"
	"github.com/garyjia/agreement-validation/internal/domain/workflow"
)

var (
	// ErrSubmissionBlocked is returned when the gate does not allow a submission
	ErrSubmissionBlocked = errors.New("submission blocked")

	// ErrSubmissionNotFound is returned when a submission ID is unknown
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrAttestationDisabled is returned when no attestor is configured
	ErrAttestationDisabled = errors.New("attestation is disabled")
)

// BlockedError carries the gate decision that refused a submission
type BlockedError struct {
	Evaluation *Evaluation
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrSubmissionBlocked, e.Evaluation.Decision.Message, e.Evaluation.Decision.Reason)
}

func (e *BlockedError) Unwrap() error {
	return ErrSubmissionBlocked
}

// SubmitInput is the data handed off when a session submits
type SubmitInput struct {
	SessionID        string
	SubmittedBy      string
	Role             entity.Role
	Agreement        *entity.Agreement
	Invoice          *entity.ExtractedInvoice
	ManuallyVerified bool
}

// SubmissionService persists submissions and drives their lifecycle
type SubmissionService interface {
	Submit(ctx context.Context, in SubmitInput) (*entity.Submission, error)
	Approve(ctx context.Context, id, reviewer, note string) (*entity.Submission, error)
	Reject(ctx context.Context, id, reviewer, note string) (*entity.Submission, error)
	Attest(ctx context.Context, id string) (*entity.Submission, error)
	Get(ctx context.Context, id string) (*entity.Submission, error)
	List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error)
}

type submissionServiceImpl struct {
	submissionRepo port.SubmissionRepository
	agreementRepo  port.AgreementRepository
	ledger         port.SpendLedger
	txManager      port.TransactionManager
	validator      ValidationService
	attestor       port.Attestor
	dispatcher     dispatcher.Dispatcher
	clock          Clock
	logger         Logger
}

// NewSubmissionService creates a new SubmissionService. attestor may be nil,
// in which case approved submissions stay unattested.
func NewSubmissionService(
	submissionRepo port.SubmissionRepository,
	agreementRepo port.AgreementRepository,
	ledger port.SpendLedger,
	txManager port.TransactionManager,
	validator ValidationService,
	attestor port.Attestor,
	d dispatcher.Dispatcher,
	clock Clock,
	logger Logger,
) SubmissionService {
	if clock == nil {
		clock = defaultClock
	}
	return &submissionServiceImpl{
		submissionRepo: submissionRepo,
		agreementRepo:  agreementRepo,
		ledger:         ledger,
		txManager:      txManager,
		validator:      validator,
		attestor:       attestor,
		dispatcher:     d,
		clock:          clock,
		logger:         logger,
	}
}

// Submit re-evaluates the invoice and persists it when the gate allows.
// Auto-approved submissions book quantity and spend immediately and are attested;
// escalated ones wait for the CFO.
func (s *submissionServiceImpl) Submit(ctx context.Context, in SubmitInput) (*entity.Submission, error) {
	eval, err := s.validator.Evaluate(ctx, EvaluateInput{
		Agreement:        in.Agreement,
		Invoice:          in.Invoice,
		ManuallyVerified: in.ManuallyVerified,
	})
	if err != nil {
		return nil, err
	}
	if !eval.Decision.Allowed {
		s.logger.Info("Submission blocked", "session_id", in.SessionID, "reason", eval.Decision.Reason)
		return nil, &BlockedError{Evaluation: eval}
	}

	now := s.clock()
	sub := newSubmission(in, eval, now)

	trigger := workflow.TriggerAutoApprove
	if eval.Decision.Route == entity.RoutePendingCFOApproval {
		trigger = workflow.TriggerEscalate
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.submissionRepo.Create(txCtx, sub); err != nil {
			return fmt.Errorf("create submission: %w", err)
		}

		from := sub.Status
		next, err := workflow.Transition(sub, trigger)
		if err != nil {
			return err
		}
		sub.Status = next
		sub.UpdatedAt = now

		if sub.Status == entity.SubmissionStatusAutoApproved {
			if err := s.book(txCtx, sub, in.Agreement.Category, eval.Day); err != nil {
				return err
			}
		}

		return s.submissionRepo.UpdateStatus(txCtx, sub, from)
	})
	if err != nil {
		s.logger.Error("Failed to submit", "session_id", in.SessionID, "error", err)
		return nil, err
	}

	s.logger.Info("Submission created",
		"submission_id", sub.ID,
		"agreement_id", sub.AgreementID,
		"status", sub.Status,
		"grand_total", sub.GrandTotal,
	)

	s.publish(ctx, event.TypeSubmissionCreated, sub, nil)
	if sub.Status == entity.SubmissionStatusPendingCFO {
		s.publish(ctx, event.TypeSubmissionEscalated, sub, map[string]interface{}{
			"message": dailyLimitMessage(sub.Results),
		})
		return sub, nil
	}

	s.publish(ctx, event.TypeSubmissionAutoApproved, sub, nil)
	return s.attestQuietly(ctx, sub), nil
}

// Approve is the CFO accepting an escalated submission
func (s *submissionServiceImpl) Approve(ctx context.Context, id, reviewer, note string) (*entity.Submission, error) {
	sub, err := s.review(ctx, id, reviewer, note, workflow.TriggerApprove)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.TypeSubmissionApproved, sub, nil)
	return s.attestQuietly(ctx, sub), nil
}

// Reject is the CFO refusing an escalated submission
func (s *submissionServiceImpl) Reject(ctx context.Context, id, reviewer, note string) (*entity.Submission, error) {
	sub, err := s.review(ctx, id, reviewer, note, workflow.TriggerReject)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.TypeSubmissionRejected, sub, nil)
	return sub, nil
}

func (s *submissionServiceImpl) review(ctx context.Context, id, reviewer, note string, trigger workflow.Trigger) (*entity.Submission, error) {
	var sub *entity.Submission

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		sub, err = s.get(txCtx, id)
		if err != nil {
			return err
		}

		from := sub.Status
		sub.ReviewedBy = reviewer
		next, err := workflow.Transition(sub, trigger)
		if err != nil {
			return err
		}

		now := s.clock()
		sub.Status = next
		sub.ReviewNote = note
		sub.ReviewedAt = &now
		sub.UpdatedAt = now

		if sub.Status == entity.SubmissionStatusApproved {
			agreement, err := s.agreementRepo.Get(txCtx, sub.AgreementID)
			if err != nil {
				return fmt.Errorf("get agreement %s: %w", sub.AgreementID, err)
			}
			if err := s.book(txCtx, sub, agreement.Category, entity.DateOf(now)); err != nil {
				return err
			}
		}

		return s.submissionRepo.UpdateStatus(txCtx, sub, from)
	})
	if err != nil {
		s.logger.Error("Failed to review submission", "submission_id", id, "trigger", trigger, "error", err)
		return nil, err
	}

	s.logger.Info("Submission reviewed", "submission_id", id, "status", sub.Status, "reviewer", reviewer)
	return sub, nil
}

// Attest records an approved submission on the attestation ledger. The status
// is read and moved inside one transaction, so concurrent callers mint once.
func (s *submissionServiceImpl) Attest(ctx context.Context, id string) (*entity.Submission, error) {
	if s.attestor == nil {
		return nil, ErrAttestationDisabled
	}

	var (
		sub *entity.Submission
		att *entity.Attestation
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		sub, err = s.get(txCtx, id)
		if err != nil {
			return err
		}

		from := sub.Status
		if !workflow.Submissions.Permits(from, workflow.TriggerAttest) {
			return fmt.Errorf("%w: cannot %s a submission in %s", workflow.ErrInvalidTransition, workflow.TriggerAttest, from)
		}

		att, err = s.attestor.Attest(txCtx, sub)
		if err != nil {
			return fmt.Errorf("failed to attest submission %s: %w", id, err)
		}
		sub.TxHash = att.TxHash
		sub.BlockNumber = att.BlockNumber
		sub.AttestedAt = &att.AttestedAt

		next, err := workflow.Transition(sub, workflow.TriggerAttest)
		if err != nil {
			return err
		}
		sub.Status = next
		sub.UpdatedAt = s.clock()

		if err := s.submissionRepo.SetAttestation(txCtx, att); err != nil {
			return fmt.Errorf("store attestation: %w", err)
		}
		return s.submissionRepo.UpdateStatus(txCtx, sub, from)
	})
	if err != nil {
		s.logger.Error("Attestation failed", "submission_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("Submission attested", "submission_id", id, "tx_hash", att.TxHash, "block", att.BlockNumber)
	s.publish(ctx, event.TypeSubmissionAttested, sub, map[string]interface{}{
		"tx_hash":      att.TxHash,
		"block_number": att.BlockNumber,
	})
	return sub, nil
}

// Get retrieves a submission by ID
func (s *submissionServiceImpl) Get(ctx context.Context, id string) (*entity.Submission, error) {
	return s.get(ctx, id)
}

// List returns submissions matching filter, newest first
func (s *submissionServiceImpl) List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	subs, err := s.submissionRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list submissions", "error", err)
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

func (s *submissionServiceImpl) get(ctx context.Context, id string) (*entity.Submission, error) {
	sub, err := s.submissionRepo.Get(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return sub, nil
}

// book consumes agreement quantity and records the spend against the daily limit
func (s *submissionServiceImpl) book(ctx context.Context, sub *entity.Submission, category string, day entity.Date) error {
	if err := s.agreementRepo.ConsumeQuantity(ctx, sub.AgreementID, sub.TotalQuantity()); err != nil {
		return fmt.Errorf("consume quantity on %s: %w", sub.AgreementID, err)
	}
	if err := s.ledger.Add(ctx, category, day, sub.GrandTotal, sub.ID); err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}

// attestQuietly attests when an attestor is configured. Failures are logged and
// leave the submission approved so it can be attested later.
func (s *submissionServiceImpl) attestQuietly(ctx context.Context, sub *entity.Submission) *entity.Submission {
	if s.attestor == nil {
		return sub
	}
	attested, err := s.Attest(ctx, sub.ID)
	if err != nil {
		return sub
	}
	return attested
}

func (s *submissionServiceImpl) publish(ctx context.Context, t event.Type, sub *entity.Submission, extra map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	payload := map[string]interface{}{
		"agreement_id": sub.AgreementID,
		"vendor":       sub.Vendor,
		"status":       string(sub.Status),
		"grand_total":  sub.GrandTotal,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.dispatcher.Publish(context.WithoutCancel(ctx), event.NewEventWithCorrelation(t, sub.ID, payload, sub.ID))
}

func newSubmission(in SubmitInput, eval *Evaluation, now time.Time) *entity.Submission {
	inv := in.Invoice
	sub := &entity.Submission{
		ID:               uuid.NewString(),
		SessionID:        in.SessionID,
		AgreementID:      in.Agreement.ID,
		SubmittedBy:      in.SubmittedBy,
		Role:             in.Role,
		Vendor:           inv.Vendor,
		InvoiceNumber:    inv.InvoiceNumber,
		InvoiceDate:      inv.Date,
		Category:         inv.Category,
		Items:            append([]entity.LineItem(nil), inv.Items...),
		TaxAmount:        inv.TaxAmount,
		GrandTotal:       inv.GrandTotal(),
		ExtractedTotal:   inv.ExtractedTotal,
		ConfidenceScore:  inv.ConfidenceScore,
		ManuallyVerified: in.ManuallyVerified,
		Route:            eval.Decision.Route,
		Status:           entity.SubmissionStatusSubmitted,
		Results:          eval.Results,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sub.Category == "" {
		sub.Category = in.Agreement.Category
	}
	if inv.ConfidenceReason != nil {
		sub.ConfidenceReason = *inv.ConfidenceReason
	}
	return sub
}

func dailyLimitMessage(results []entity.ValidationResult) string {
	for _, r := range results {
		if r.Rule == entity.RuleDailyLimit {
			return r.Message
		}
	}
	return ""
}
