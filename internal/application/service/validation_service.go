package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/gate"
	"github.com/garyjia/agreement-validation/internal/domain/validation"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Clock returns the current time
type Clock func() time.Time

var defaultClock Clock = time.Now

// ValidationSettings are the tunable parameters of the rules and the gate
type ValidationSettings struct {
	Rules     validation.RuleSet
	Gate      gate.Gate
	Reconcile bool
}

// DefaultValidationSettings returns the default tolerances and threshold with
// reconciliation enabled
func DefaultValidationSettings() ValidationSettings {
	return ValidationSettings{
		Rules:     validation.DefaultRuleSet(),
		Gate:      gate.New(),
		Reconcile: true,
	}
}

// EvaluateInput is one evaluation request
type EvaluateInput struct {
	Agreement        *entity.Agreement
	Invoice          *entity.ExtractedInvoice
	ManuallyVerified bool
}

// Evaluation is the rule results and gate decision for one input
type Evaluation struct {
	Results  []entity.ValidationResult `json:"results"`
	Decision entity.SubmissionDecision `json:"decision"`
	Budget   entity.DailyBudget        `json:"-"`
	Day      entity.Date               `json:"day"`
}

// ValidationService evaluates invoices against agreements
type ValidationService interface {
	Evaluate(ctx context.Context, in EvaluateInput) (*Evaluation, error)
	Budget(ctx context.Context, category string, day entity.Date) (entity.DailyBudget, error)
	Today() entity.Date
}

type validationServiceImpl struct {
	limitRepo port.DailyLimitRepository
	ledger    port.SpendLedger
	settings  ValidationSettings
	clock     Clock
	logger    Logger
}

// NewValidationService creates a new ValidationService
func NewValidationService(
	limitRepo port.DailyLimitRepository,
	ledger port.SpendLedger,
	settings ValidationSettings,
	clock Clock,
	logger Logger,
) ValidationService {
	if clock == nil {
		clock = defaultClock
	}
	return &validationServiceImpl{
		limitRepo: limitRepo,
		ledger:    ledger,
		settings:  settings,
		clock:     clock,
		logger:    logger,
	}
}

// Today returns the service clock's current day
func (s *validationServiceImpl) Today() entity.Date {
	return entity.DateOf(s.clock())
}

// Evaluate loads the category budget and runs the rules and the gate.
// Missing agreement or invoice yields a blocked decision, not an error.
func (s *validationServiceImpl) Evaluate(ctx context.Context, in EvaluateInput) (*Evaluation, error) {
	today := s.Today()
	eval := &Evaluation{Day: today}

	if in.Agreement != nil && in.Invoice != nil {
		budget, err := s.Budget(ctx, in.Agreement.Category, today)
		if err != nil {
			return nil, err
		}
		eval.Budget = budget
		eval.Results = s.settings.Rules.Revalidate(in.Agreement, in.Invoice, budget, today)
		if s.settings.Reconcile {
			eval.Results = append(eval.Results, s.settings.Rules.Reconcile(in.Invoice))
		}
	}

	eval.Decision = s.settings.Gate.Evaluate(gate.Input{
		Agreement:        in.Agreement,
		Invoice:          in.Invoice,
		Results:          eval.Results,
		ManuallyVerified: in.ManuallyVerified,
	})

	return eval, nil
}

// Budget returns the category's limit and what has been spent on day
func (s *validationServiceImpl) Budget(ctx context.Context, category string, day entity.Date) (entity.DailyBudget, error) {
	budget := entity.DailyBudget{Category: category}

	limit, err := s.limitRepo.Get(ctx, category)
	switch {
	case err == nil:
		budget.Limit = limit.Limit
		budget.HasLimit = true
	case errors.Is(err, port.ErrNotFound):
	default:
		s.logger.Error("Failed to load daily limit", "category", category, "error", err)
		return budget, fmt.Errorf("failed to load daily limit for %s: %w", category, err)
	}

	spent, err := s.ledger.SpendOn(ctx, category, day)
	if err != nil {
		s.logger.Error("Failed to load daily spend", "category", category, "error", err)
		return budget, fmt.Errorf("failed to load daily spend for %s: %w", category, err)
	}
	budget.TodaySpend = spent

	return budget, nil
}
