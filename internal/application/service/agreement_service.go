package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

var (
	// ErrAgreementNotFound is returned when an agreement ID is unknown
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrAgreementNotSelectable is returned when a non-active agreement is selected
	ErrAgreementNotSelectable = errors.New("agreement is not active")
)

// AgreementService reads and maintains the agreement catalog
type AgreementService interface {
	List(ctx context.Context, status entity.AgreementStatus) ([]*entity.Agreement, error)
	Get(ctx context.Context, id string) (*entity.Agreement, error)
	// Selectable returns the agreement if invoices may be submitted against it
	Selectable(ctx context.Context, id string) (*entity.Agreement, error)
	Seed(ctx context.Context, agreements []*entity.Agreement) error
	ExpireEnded(ctx context.Context) ([]string, error)
}

type agreementServiceImpl struct {
	repo   port.AgreementRepository
	clock  Clock
	logger Logger
}

// NewAgreementService creates a new AgreementService
func NewAgreementService(repo port.AgreementRepository, clock Clock, logger Logger) AgreementService {
	if clock == nil {
		clock = defaultClock
	}
	return &agreementServiceImpl{repo: repo, clock: clock, logger: logger}
}

// List returns agreements, filtered by status when status is not empty
func (s *agreementServiceImpl) List(ctx context.Context, status entity.AgreementStatus) ([]*entity.Agreement, error) {
	agreements, err := s.repo.List(ctx, status)
	if err != nil {
		s.logger.Error("Failed to list agreements", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	return agreements, nil
}

// Get retrieves an agreement by ID
func (s *agreementServiceImpl) Get(ctx context.Context, id string) (*entity.Agreement, error) {
	agreement, err := s.repo.Get(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgreementNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to get agreement", "agreement_id", id, "error", err)
		return nil, fmt.Errorf("failed to get agreement %s: %w", id, err)
	}
	return agreement, nil
}

// Selectable retrieves an agreement and checks it is active
func (s *agreementServiceImpl) Selectable(ctx context.Context, id string) (*entity.Agreement, error) {
	agreement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !agreement.IsSelectable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAgreementNotSelectable, id, agreement.Status)
	}
	return agreement, nil
}

// Seed validates catalog agreements and stores the ones not yet known.
// Stored agreements keep their used quantity and status.
func (s *agreementServiceImpl) Seed(ctx context.Context, agreements []*entity.Agreement) error {
	seeded := 0
	for _, a := range agreements {
		if err := utils.ValidateStruct(a); err != nil {
			return fmt.Errorf("agreement %s: %w", a.ID, err)
		}
		_, err := s.repo.Get(ctx, a.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("failed to look up agreement %s: %w", a.ID, err)
		}
		if err := s.repo.Upsert(ctx, a); err != nil {
			return fmt.Errorf("failed to seed agreement %s: %w", a.ID, err)
		}
		seeded++
	}
	s.logger.Info("Agreement catalog seeded", "count", seeded, "known", len(agreements)-seeded)
	return nil
}

// ExpireEnded marks active agreements whose period is over as expired
func (s *agreementServiceImpl) ExpireEnded(ctx context.Context) ([]string, error) {
	today := entity.DateOf(s.clock())
	ids, err := s.repo.ExpireEnded(ctx, today)
	if err != nil {
		s.logger.Error("Failed to expire agreements", "day", today.String(), "error", err)
		return nil, fmt.Errorf("failed to expire agreements: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Info("Agreements expired", "count", len(ids), "ids", ids)
	}
	return ids, nil
}
