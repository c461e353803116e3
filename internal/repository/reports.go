package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hiyari/incident-reports-back/internal/domain"
)

const (
	DefaultListLimit = 1000
	MaxListLimit     = 1000
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidToken = errors.New("invalid nextToken")
)

// ReportsRepository abstracts report persistence and query operations.
type ReportsRepository interface {
	CreateReport(ctx context.Context, report *domain.Report) error
	GetReport(ctx context.Context, reportID string) (*domain.Report, error)
	ListReports(ctx context.Context, filter domain.ReportFilter) (domain.ReportPage, error)
	CountReports(ctx context.Context, filter domain.ReportFilter) (int, error)
	DeleteReportsBefore(ctx context.Context, before time.Time) (int64, error)
}

// EncodeCursor renders a cursor as an opaque nextToken.
func EncodeCursor(cursor domain.ReportCursor) string {
	raw, _ := json.Marshal(cursor)
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeCursor(token string) (*domain.ReportCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var cursor domain.ReportCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, ErrInvalidToken
	}
	if cursor.ReportID == "" || cursor.CreatedAt.IsZero() {
		return nil, ErrInvalidToken
	}
	return &cursor, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// MemoryReportsRepository stores reports in memory for local development.
type MemoryReportsRepository struct {
	mu      sync.RWMutex
	reports map[string]domain.Report
}

func NewMemoryReportsRepository() *MemoryReportsRepository {
	return &MemoryReportsRepository{
		reports: make(map[string]domain.Report),
	}
}

func (r *MemoryReportsRepository) CreateReport(_ context.Context, report *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.ReportID] = report.Clone()
	return nil
}

func (r *MemoryReportsRepository) GetReport(_ context.Context, reportID string) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := report.Clone()
	return &clone, nil
}

func (r *MemoryReportsRepository) ListReports(
	_ context.Context,
	filter domain.ReportFilter,
) (domain.ReportPage, error) {
	limit := normalizeLimit(filter.Limit)
	matched := r.matching(filter)

	if filter.After != nil {
		start := len(matched)
		for i, report := range matched {
			if isAfterCursor(report, *filter.After) {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	page := domain.ReportPage{Items: make([]domain.Report, 0, min(limit, len(matched)))}
	for i, report := range matched {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			page.Next = &domain.ReportCursor{CreatedAt: last.CreatedAt, ReportID: last.ReportID}
			break
		}
		page.Items = append(page.Items, report)
	}
	return page, nil
}

func (r *MemoryReportsRepository) CountReports(_ context.Context, filter domain.ReportFilter) (int, error) {
	return len(r.matching(filter)), nil
}

func (r *MemoryReportsRepository) DeleteReportsBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, report := range r.reports {
		if report.CreatedAt.Before(before) {
			delete(r.reports, id)
			deleted++
		}
	}
	return deleted, nil
}

// matching returns the filtered reports, newest first.
func (r *MemoryReportsRepository) matching(filter domain.ReportFilter) []domain.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.TrimSpace(filter.Query)
	items := make([]domain.Report, 0)
	for _, report := range r.reports {
		if filter.Category != "" && report.Category != filter.Category {
			continue
		}
		if filter.UserID != "" && report.UserID != filter.UserID {
			continue
		}
		if filter.From != nil && report.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && report.CreatedAt.After(*filter.To) {
			continue
		}
		if query != "" && !strings.Contains(report.Title, query) && !strings.Contains(report.Body, query) {
			continue
		}
		items = append(items, report.Clone())
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ReportID > items[j].ReportID
	})
	return items
}

// isAfterCursor reports whether report sorts strictly after the cursor in
// newest-first order.
func isAfterCursor(report domain.Report, cursor domain.ReportCursor) bool {
	if report.CreatedAt.Equal(cursor.CreatedAt) {
		return report.ReportID < cursor.ReportID
	}
	return report.CreatedAt.Before(cursor.CreatedAt)
}
