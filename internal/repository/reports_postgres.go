package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reportsSchema = `
CREATE TABLE IF NOT EXISTS reports (
	report_id    TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	tags         TEXT[] NOT NULL DEFAULT '{}',
	category     TEXT NOT NULL,
	improvements TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_category_created_at_idx ON reports (category, created_at DESC);
CREATE INDEX IF NOT EXISTS reports_created_at_idx ON reports (created_at DESC, report_id DESC);
CREATE INDEX IF NOT EXISTS reports_user_id_idx ON reports (user_id);
`

const reportColumns = "report_id, user_id, title, body, summary, tags, category, improvements, created_at"

type PostgresReportsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresReportsRepository(ctx context.Context, databaseURL string) (*PostgresReportsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresReportsRepository{pool: pool}, nil
}

func (r *PostgresReportsRepository) Close() {
	r.pool.Close()
}

// EnsureSchema creates the reports table and its indexes when missing.
func (r *PostgresReportsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, reportsSchema); err != nil {
		return fmt.Errorf("ensure reports schema: %w", err)
	}
	return nil
}

func (r *PostgresReportsRepository) CreateReport(ctx context.Context, report *domain.Report) error {
	tags := report.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		report.ReportID,
		report.UserID,
		report.Title,
		report.Body,
		report.Summary,
		tags,
		report.Category,
		report.Improvements,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *PostgresReportsRepository) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+reportColumns+" FROM reports WHERE report_id = $1", reportID)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return report, nil
}

func (r *PostgresReportsRepository) ListReports(
	ctx context.Context,
	filter domain.ReportFilter,
) (domain.ReportPage, error) {
	limit := normalizeLimit(filter.Limit)
	where, args := buildReportFilters(filter, true)

	listQuery := fmt.Sprintf(
		`SELECT %s FROM reports %s
		ORDER BY created_at DESC, report_id DESC
		LIMIT $%d`,
		reportColumns,
		where,
		len(args)+1,
	)
	rows, err := r.pool.Query(ctx, listQuery, append(args, limit+1)...)
	if err != nil {
		return domain.ReportPage{}, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	page := domain.ReportPage{Items: make([]domain.Report, 0)}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return domain.ReportPage{}, fmt.Errorf("scan report: %w", err)
		}
		page.Items = append(page.Items, *report)
	}
	if err := rows.Err(); err != nil {
		return domain.ReportPage{}, fmt.Errorf("iterate reports: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		last := page.Items[limit-1]
		page.Next = &domain.ReportCursor{CreatedAt: last.CreatedAt, ReportID: last.ReportID}
	}
	return page, nil
}

func (r *PostgresReportsRepository) CountReports(ctx context.Context, filter domain.ReportFilter) (int, error) {
	where, args := buildReportFilters(filter, false)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reports "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return total, nil
}

func (r *PostgresReportsRepository) DeleteReportsBefore(ctx context.Context, before time.Time) (int64, error) {
	command, err := r.pool.Exec(ctx, "DELETE FROM reports WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("delete reports: %w", err)
	}
	return command.RowsAffected(), nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var report domain.Report
	if err := row.Scan(
		&report.ReportID,
		&report.UserID,
		&report.Title,
		&report.Body,
		&report.Summary,
		&report.Tags,
		&report.Category,
		&report.Improvements,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(report.Tags) == 0 {
		report.Tags = nil
	}
	report.CreatedAt = report.CreatedAt.UTC()
	return &report, nil
}

func buildReportFilters(filter domain.ReportFilter, withCursor bool) (string, []any) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 7)

	add := func(format string, values ...any) {
		placeholders := make([]any, len(values))
		for i, value := range values {
			args = append(args, value)
			placeholders[i] = len(args)
		}
		conditions = append(conditions, fmt.Sprintf(format, placeholders...))
	}

	if category := strings.TrimSpace(filter.Category); category != "" {
		add("category = $%d", category)
	}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		add("user_id = $%d", userID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		add("(strpos(title, $%d) > 0 OR strpos(body, $%d) > 0)", query, query)
	}
	if withCursor && filter.After != nil {
		add("(created_at, report_id) < ($%d, $%d)", filter.After.CreatedAt, filter.After.ReportID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
