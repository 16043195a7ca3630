package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// ErrInvalidLimit is returned for negative or non-finite limits
var ErrInvalidLimit = errors.New("invalid daily limit")

// LimitService manages per-category daily spending limits
type LimitService interface {
	List(ctx context.Context) ([]*entity.DailyLimit, error)
	// Update sets the given limits and records one history entry per changed category
	Update(ctx context.Context, changedBy string, limits map[string]float64) ([]*entity.LimitChange, error)
	History(ctx context.Context, category string, limit int) ([]*entity.LimitChange, error)
	Usage(ctx context.Context, day entity.Date) ([]*entity.CategoryUsage, error)
	// Seed inserts limits for categories that have none yet
	Seed(ctx context.Context, defaults map[string]float64) error
}

type limitServiceImpl struct {
	limitRepo port.DailyLimitRepository
	ledger    port.SpendLedger
	txManager port.TransactionManager
	clock     Clock
	logger    Logger
}

// NewLimitService creates a new LimitService
func NewLimitService(
	limitRepo port.DailyLimitRepository,
	ledger port.SpendLedger,
	txManager port.TransactionManager,
	clock Clock,
	logger Logger,
) LimitService {
	if clock == nil {
		clock = defaultClock
	}
	return &limitServiceImpl{
		limitRepo: limitRepo,
		ledger:    ledger,
		txManager: txManager,
		clock:     clock,
		logger:    logger,
	}
}

// List returns every configured limit
func (s *limitServiceImpl) List(ctx context.Context) ([]*entity.DailyLimit, error) {
	limits, err := s.limitRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list daily limits", "error", err)
		return nil, fmt.Errorf("failed to list daily limits: %w", err)
	}
	return limits, nil
}

// Update applies all limits in one transaction. Unchanged values are skipped.
func (s *limitServiceImpl) Update(ctx context.Context, changedBy string, limits map[string]float64) ([]*entity.LimitChange, error) {
	categories := make([]string, 0, len(limits))
	for category, value := range limits {
		if strings.TrimSpace(category) == "" {
			return nil, fmt.Errorf("%w: empty category", ErrInvalidLimit)
		}
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("%w: %s = %v", ErrInvalidLimit, category, value)
		}
		categories = append(categories, category)
	}
	sort.Strings(categories)

	now := s.clock()
	var changes []*entity.LimitChange

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, category := range categories {
			newLimit := limits[category]

			var oldLimit float64
			existing, err := s.limitRepo.Get(txCtx, category)
			switch {
			case err == nil:
				oldLimit = existing.Limit
				if oldLimit == newLimit {
					continue
				}
			case errors.Is(err, port.ErrNotFound):
			default:
				return fmt.Errorf("get limit %s: %w", category, err)
			}

			if err := s.limitRepo.Upsert(txCtx, &entity.DailyLimit{Category: category, Limit: newLimit, UpdatedAt: now}); err != nil {
				return fmt.Errorf("upsert limit %s: %w", category, err)
			}

			change := &entity.LimitChange{
				Category:  category,
				OldLimit:  oldLimit,
				NewLimit:  newLimit,
				ChangedBy: changedBy,
				ChangedAt: now,
			}
			if err := s.limitRepo.AppendHistory(txCtx, change); err != nil {
				return fmt.Errorf("append limit history %s: %w", category, err)
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update daily limits", "changed_by", changedBy, "error", err)
		return nil, err
	}

	s.logger.Info("Daily limits updated", "changed_by", changedBy, "changes", len(changes))
	return changes, nil
}

// History returns the most recent changes, newest first. An empty category means all.
func (s *limitServiceImpl) History(ctx context.Context, category string, limit int) ([]*entity.LimitChange, error) {
	if limit <= 0 {
		limit = 50
	}
	history, err := s.limitRepo.History(ctx, category, limit)
	if err != nil {
		s.logger.Error("Failed to load limit history", "category", category, "error", err)
		return nil, fmt.Errorf("failed to load limit history: %w", err)
	}
	return history, nil
}

// Usage reports spend against limit per category on day. Categories that have
// spend but no limit are included with a zero limit.
func (s *limitServiceImpl) Usage(ctx context.Context, day entity.Date) ([]*entity.CategoryUsage, error) {
	if day.IsZero() {
		day = entity.DateOf(s.clock())
	}

	limits, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	spend, err := s.ledger.UsageOn(ctx, day)
	if err != nil {
		s.logger.Error("Failed to load daily usage", "day", day.String(), "error", err)
		return nil, fmt.Errorf("failed to load daily usage: %w", err)
	}

	byCategory := make(map[string]*entity.CategoryUsage, len(limits))
	for _, l := range limits {
		spent := spend[l.Category]
		byCategory[l.Category] = &entity.CategoryUsage{
			Category:  l.Category,
			Day:       day,
			Limit:     l.Limit,
			Spent:     spent,
			Remaining: math.Max(0, l.Limit-spent),
		}
	}
	for category, spent := range spend {
		if _, ok := byCategory[category]; !ok {
			byCategory[category] = &entity.CategoryUsage{Category: category, Day: day, Spent: spent}
		}
	}

	usage := make([]*entity.CategoryUsage, 0, len(byCategory))
	for _, u := range byCategory {
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Category < usage[j].Category })
	return usage, nil
}

// Seed stores defaults for categories without a limit. Existing limits are kept.
func (s *limitServiceImpl) Seed(ctx context.Context, defaults map[string]float64) error {
	now := s.clock()
	seeded := 0

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for category, value := range defaults {
			_, err := s.limitRepo.Get(txCtx, category)
			if err == nil {
				continue
			}
			if !errors.Is(err, port.ErrNotFound) {
				return fmt.Errorf("get limit %s: %w", category, err)
			}
			if err := s.limitRepo.Upsert(txCtx, &entity.DailyLimit{Category: category, Limit: value, UpdatedAt: now}); err != nil {
				return fmt.Errorf("seed limit %s: %w", category, err)
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if seeded > 0 {
		s.logger.Info("Daily limits seeded", "count", seeded, "at", now.Format(time.RFC3339))
	}
	return nil
}
