package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

func newStatsFixture(t *testing.T) (*StatsService, []string) {
	t.Helper()
	taxonomy := category.Default()
	all := taxonomy.All()
	codes := []string{all[0].Code, all[1].Code, all[2].Code}

	repo := repository.NewMemoryReportsRepository()
	seed := []struct {
		user string
		code string
		at   time.Time
	}{
		{"u1", codes[0], time.Date(2025, 4, 10, 3, 0, 0, 0, time.UTC)},
		{"u1", codes[0], time.Date(2025, 4, 14, 16, 0, 0, 0, time.UTC)}, // 2025-04-15 01:00 JST
		{"u2", codes[1], time.Date(2025, 4, 15, 2, 0, 0, 0, time.UTC)},
		{"u2", codes[1], time.Date(2025, 3, 31, 14, 0, 0, 0, time.UTC)}, // 2025-03-31 23:00 JST
		{"u2", codes[1], time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"u1", codes[2], time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for i, item := range seed {
		require.NoError(t, repo.CreateReport(context.Background(), &domain.Report{
			ReportID:  string(rune('a' + i)),
			UserID:    item.user,
			Body:      "body",
			Category:  item.code,
			CreatedAt: item.at,
		}))
	}

	service := NewStatsService(repo, taxonomy, "Asia/Tokyo")
	service.clock = func() time.Time { return time.Date(2025, 4, 15, 3, 0, 0, 0, time.UTC) }
	return service, codes
}

func TestCategoryStatsScopes(t *testing.T) {
	service, codes := newStatsFixture(t)
	ctx := context.Background()

	all, err := service.CategoryStats(ctx, "u1", StatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, all.Scope)
	assert.Equal(t, 6, all.TotalReports)
	require.Len(t, all.ByCategory, 3)
	assert.Equal(t, codes[1], all.ByCategory[0].Code)
	assert.Equal(t, 3, all.ByCategory[0].Count)
	assert.Empty(t, all.From)

	month, err := service.CategoryStats(ctx, "u1", StatsQuery{Scope: "month"})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01", month.From)
	assert.Equal(t, "2025-04-30", month.To)
	assert.Equal(t, 3, month.TotalReports)
	assert.Equal(t, codes[0], month.ByCategory[0].Code)
	assert.True(t, len(month.Advice) > 0)

	today, err := service.CategoryStats(ctx, "u1", StatsQuery{Scope: "today"})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-15", today.From)
	assert.Equal(t, 2, today.TotalReports)

	user, err := service.CategoryStats(ctx, "u1", StatsQuery{Scope: "user", TopN: "1"})
	require.NoError(t, err)
	assert.Equal(t, 3, user.TotalReports)
	require.Len(t, user.ByCategory, 1)
	assert.Equal(t, codes[0], user.ByCategory[0].Code)
	assert.Contains(t, user.Advice, "あなたは3件の報告をされており、")
}

func TestCategoryStatsRejectsBadInput(t *testing.T) {
	service, _ := newStatsFixture(t)

	_, err := service.CategoryStats(context.Background(), "u1", StatsQuery{Scope: "week"})
	assert.True(t, errors.Is(err, ErrInvalidScope))

	_, err = service.CategoryStats(context.Background(), "u1", StatsQuery{TZ: "Mars/Olympus"})
	assert.True(t, errors.Is(err, ErrInvalidTimezone))
}

func TestAdvice(t *testing.T) {
	stats := []CategoryStat{{Code: "X", Name: "確認不足", Count: 3}}
	suffix := "確認不足が多いので、関連手順の見直しとダブルチェックを徹底しましょう。報告が少ない領域は見落としの可能性もあるため、気づいたら積極的に共有しましょう。"

	assert.Equal(t, "今月は"+suffix, Advice(stats, ScopeMonth, 3))
	assert.Equal(t, "あなたは7件の報告をされており、"+suffix, Advice(stats, ScopeUser, 7))
	assert.Equal(t, "全社では"+suffix, Advice(stats, ScopeCompany, 3))
	assert.Equal(t, "これまでに"+suffix, Advice(stats, ScopeToday, 3))
	assert.Equal(t, "あなたの直近の傾向は確認中です。気づきがあれば短文でも構いません、まずは一件投稿してみましょう。", Advice(nil, ScopeUser, 0))
	assert.Equal(t, "直近の傾向は確認中です。気づきがあれば短文でも構いません、まずは一件投稿してみましょう。", Advice(nil, ScopeAll, 0))
}
