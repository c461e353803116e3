package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/export"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

// ErrInvalidQuery wraps malformed list parameters.
var ErrInvalidQuery = errors.New("invalid query")

type CreateReportInput struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body"`
	Summary      string   `json:"summary,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Category     string   `json:"category"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	Improvements string   `json:"improvements,omitempty"`
}

// ListQuery mirrors the GET /reports query string.
type ListQuery struct {
	Category  string
	From      string
	To        string
	NextToken string
	Q         string
	AuthorID  string
	Limit     int
}

type ListResult struct {
	Items     []domain.Report `json:"items"`
	NextToken string          `json:"nextToken,omitempty"`
}

type ReportsService struct {
	repo     repository.ReportsRepository
	taxonomy *category.Taxonomy
	clock    func() time.Time
	logger   *zap.Logger
}

func NewReportsService(repo repository.ReportsRepository, taxonomy *category.Taxonomy, logger *zap.Logger) *ReportsService {
	if taxonomy == nil {
		taxonomy = category.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportsService{repo: repo, taxonomy: taxonomy, clock: time.Now, logger: logger}
}

func (s *ReportsService) Create(ctx context.Context, userID string, input CreateReportInput) (*domain.Report, error) {
	createdAt := s.clock().UTC()
	if raw := strings.TrimSpace(input.CreatedAt); raw != "" {
		parsed, err := parseTimestamp(raw, false)
		if err != nil {
			return nil, fmt.Errorf("%w: createdAt: %v", ErrInvalidQuery, err)
		}
		createdAt = parsed.UTC()
	}

	report := &domain.Report{
		ReportID:     uuid.NewString(),
		UserID:       userID,
		Title:        strings.TrimSpace(input.Title),
		Body:         input.Body,
		Summary:      strings.TrimSpace(input.Summary),
		Tags:         input.Tags,
		Category:     strings.TrimSpace(input.Category),
		CreatedAt:    createdAt,
		Improvements: input.Improvements,
	}
	if err := s.repo.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.logger.Info("report created",
		zap.String("report_id", report.ReportID),
		zap.String("category", report.Category),
	)
	return report, nil
}

func (s *ReportsService) Get(ctx context.Context, reportID string) (*domain.Report, error) {
	return s.repo.GetReport(ctx, reportID)
}

func (s *ReportsService) List(ctx context.Context, callerID string, query ListQuery) (ListResult, error) {
	filter, err := s.buildFilter(callerID, query)
	if err != nil {
		return ListResult{}, err
	}
	page, err := s.repo.ListReports(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Items: page.Items}
	if page.Next != nil {
		result.NextToken = repository.EncodeCursor(*page.Next)
	}
	return result, nil
}

func (s *ReportsService) Count(ctx context.Context, callerID string, query ListQuery) (int, error) {
	filter, err := s.buildFilter(callerID, query)
	if err != nil {
		return 0, err
	}
	return s.repo.CountReports(ctx, filter)
}

// ListAll follows nextToken until every matching report is collected.
func (s *ReportsService) ListAll(ctx context.Context, callerID string, query ListQuery) ([]domain.Report, error) {
	filter, err := s.buildFilter(callerID, query)
	if err != nil {
		return nil, err
	}
	return collectReports(ctx, s.repo, filter)
}

func collectReports(ctx context.Context, repo repository.ReportsRepository, filter domain.ReportFilter) ([]domain.Report, error) {
	filter.Limit = repository.MaxListLimit

	reports := make([]domain.Report, 0)
	for {
		page, err := repo.ListReports(ctx, filter)
		if err != nil {
			return nil, err
		}
		reports = append(reports, page.Items...)
		if page.Next == nil {
			return reports, nil
		}
		filter.After = page.Next
	}
}

// Export writes the matching reports as an XLSX workbook.
func (s *ReportsService) Export(ctx context.Context, callerID string, query ListQuery, w io.Writer, location *time.Location) (int, error) {
	reports, err := s.ListAll(ctx, callerID, query)
	if err != nil {
		return 0, err
	}
	if err := export.WriteReports(w, reports, s.taxonomy, location); err != nil {
		return 0, err
	}
	return len(reports), nil
}

func (s *ReportsService) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteReportsBefore(ctx, before)
}

func (s *ReportsService) buildFilter(callerID string, query ListQuery) (domain.ReportFilter, error) {
	filter := domain.ReportFilter{
		Category: strings.TrimSpace(query.Category),
		Query:    strings.TrimSpace(query.Q),
		Limit:    query.Limit,
	}

	authorID := strings.TrimSpace(query.AuthorID)
	if authorID == "me" {
		authorID = callerID
	}
	filter.UserID = authorID

	if raw := strings.TrimSpace(query.From); raw != "" {
		from, err := parseTimestamp(raw, false)
		if err != nil {
			return domain.ReportFilter{}, fmt.Errorf("%w: from: %v", ErrInvalidQuery, err)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.To); raw != "" {
		to, err := parseTimestamp(raw, true)
		if err != nil {
			return domain.ReportFilter{}, fmt.Errorf("%w: to: %v", ErrInvalidQuery, err)
		}
		filter.To = &to
	}

	cursor, err := repository.DecodeCursor(query.NextToken)
	if err != nil {
		return domain.ReportFilter{}, err
	}
	filter.After = cursor
	return filter, nil
}

// parseTimestamp accepts RFC3339 or a bare YYYY-MM-DD date (UTC). A bare date
// used as an upper bound covers the whole day.
func parseTimestamp(value string, endOfDay bool) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", value)
	}
	if endOfDay {
		return parsed.Add(24*time.Hour - time.Nanosecond), nil
	}
	return parsed, nil
}
