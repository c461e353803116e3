package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

const (
	ScopeAll     = "all"
	ScopeMonth   = "month"
	ScopeCompany = "company"
	ScopeUser    = "user"
	ScopeToday   = "today"

	DefaultTopN = 10
)

var (
	ErrInvalidScope    = errors.New(`Invalid scope parameter. Use "all", "month", "company", "user", or "today"`)
	ErrInvalidTimezone = errors.New("invalid tz parameter")
)

var validScopes = map[string]struct{}{
	ScopeAll: {}, ScopeMonth: {}, ScopeCompany: {}, ScopeUser: {}, ScopeToday: {},
}

type StatsQuery struct {
	Scope string
	TopN  string
	TZ    string
}

type CategoryStat struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StatsResult struct {
	OK           bool           `json:"ok"`
	Scope        string         `json:"scope"`
	From         string         `json:"from,omitempty"`
	To           string         `json:"to,omitempty"`
	TotalReports int            `json:"totalReports"`
	ByCategory   []CategoryStat `json:"byCategory"`
	Advice       string         `json:"advice"`
	UpdatedAt    string         `json:"updatedAt"`
}

type StatsService struct {
	repo      repository.ReportsRepository
	taxonomy  *category.Taxonomy
	defaultTZ string
	clock     func() time.Time
}

func NewStatsService(repo repository.ReportsRepository, taxonomy *category.Taxonomy, defaultTZ string) *StatsService {
	if taxonomy == nil {
		taxonomy = category.Default()
	}
	if strings.TrimSpace(defaultTZ) == "" {
		defaultTZ = "Asia/Tokyo"
	}
	return &StatsService{repo: repo, taxonomy: taxonomy, defaultTZ: defaultTZ, clock: time.Now}
}

// CategoryStats counts reports per category for a scope.
func (s *StatsService) CategoryStats(ctx context.Context, callerID string, query StatsQuery) (StatsResult, error) {
	scope := strings.TrimSpace(query.Scope)
	if scope == "" {
		scope = ScopeAll
	}
	if _, ok := validScopes[scope]; !ok {
		return StatsResult{}, ErrInvalidScope
	}

	topN, err := strconv.Atoi(strings.TrimSpace(query.TopN))
	if err != nil || topN <= 0 {
		topN = DefaultTopN
	}

	tz := strings.TrimSpace(query.TZ)
	if tz == "" {
		tz = s.defaultTZ
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return StatsResult{}, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}

	now := s.clock().In(location)
	result := StatsResult{OK: true, Scope: scope}
	filter := domain.ReportFilter{}

	switch scope {
	case ScopeMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, location)
		last := first.AddDate(0, 1, -1)
		setDayRange(&filter, &result, first, last)
	case ScopeToday:
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location)
		setDayRange(&filter, &result, today, today)
	case ScopeUser:
		filter.UserID = callerID
	}

	reports, err := collectReports(ctx, s.repo, filter)
	if err != nil {
		return StatsResult{}, err
	}

	result.TotalReports = len(reports)
	result.ByCategory = s.countByCategory(reports, topN)
	result.Advice = Advice(result.ByCategory, scope, result.TotalReports)
	result.UpdatedAt = s.clock().UTC().Format(time.RFC3339Nano)
	return result, nil
}

func (s *StatsService) countByCategory(reports []domain.Report, topN int) []CategoryStat {
	counts := make(map[string]int)
	for _, report := range reports {
		if report.Category != "" {
			counts[report.Category]++
		}
	}

	stats := make([]CategoryStat, 0, len(counts))
	for code, count := range counts {
		stats = append(stats, CategoryStat{Code: code, Name: s.taxonomy.DisplayName(code), Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Code < stats[j].Code
	})
	if len(stats) > topN {
		stats = stats[:topN]
	}
	return stats
}

// setDayRange filters whole calendar days from first to last inclusive.
func setDayRange(filter *domain.ReportFilter, result *StatsResult, first, last time.Time) {
	from := first
	to := last.AddDate(0, 0, 1).Add(-time.Nanosecond)
	filter.From = &from
	filter.To = &to
	result.From = first.Format(time.DateOnly)
	result.To = last.Format(time.DateOnly)
}

// Advice renders the short guidance shown under the category chart.
func Advice(categories []CategoryStat, scope string, totalReports int) string {
	if len(categories) == 0 {
		scopeText := ""
		if scope == ScopeUser {
			scopeText = "あなたの"
		}
		return scopeText + "直近の傾向は確認中です。気づきがあれば短文でも構いません、まずは一件投稿してみましょう。"
	}

	var scopeText string
	switch scope {
	case ScopeMonth:
		scopeText = "今月は"
	case ScopeUser:
		scopeText = fmt.Sprintf("あなたは%d件の報告をされており、", totalReports)
	case ScopeCompany:
		scopeText = "全社では"
	default:
		scopeText = "これまでに"
	}
	return scopeText + categories[0].Name + "が多いので、関連手順の見直しとダブルチェックを徹底しましょう。報告が少ない領域は見落としの可能性もあるため、気づいたら積極的に共有しましょう。"
}
