package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// ErrReportsDisabled is returned when no exporter is configured
var ErrReportsDisabled = errors.New("report export is not configured")

// Report is a rendered report ready for download
type Report struct {
	Filename    string
	ContentType string
	Content     []byte
	Rows        int
}

// ReportService exports submissions for auditors
type ReportService interface {
	Export(ctx context.Context, filter entity.SubmissionFilter) (*Report, error)
}

type reportServiceImpl struct {
	submissions SubmissionService
	limits      LimitService
	exporter    port.ReportExporter
	clock       Clock
	logger      Logger
}

// NewReportService creates a new ReportService
func NewReportService(submissions SubmissionService, limits LimitService, exporter port.ReportExporter, clock Clock, logger Logger) ReportService {
	if clock == nil {
		clock = defaultClock
	}
	return &reportServiceImpl{
		submissions: submissions,
		limits:      limits,
		exporter:    exporter,
		clock:       clock,
		logger:      logger,
	}
}

// Export renders the submissions matching filter together with the category
// usage of the filter's last day, or today when the filter is open-ended
func (s *reportServiceImpl) Export(ctx context.Context, filter entity.SubmissionFilter) (*Report, error) {
	if s.exporter == nil {
		return nil, ErrReportsDisabled
	}

	subs, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	day := filter.To
	if day.IsZero() {
		day = entity.DateOf(s.clock())
	}
	usage, err := s.limits.Usage(ctx, day)
	if err != nil {
		return nil, err
	}

	content, err := s.exporter.Export(ctx, subs, usage)
	if err != nil {
		s.logger.Error("Failed to export report", "rows", len(subs), "error", err)
		return nil, fmt.Errorf("failed to export report: %w", err)
	}

	report := &Report{
		Filename:    fmt.Sprintf("submissions_%s%s", day.Format("20060102"), s.exporter.Extension()),
		ContentType: s.exporter.ContentType(),
		Content:     content,
		Rows:        len(subs),
	}
	s.logger.Info("Report exported", "filename", report.Filename, "rows", report.Rows)
	return report, nil
}
