package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

func TestCalculateLevel(t *testing.T) {
	cases := []struct {
		xp   int
		want LevelInfo
	}{
		{0, LevelInfo{Level: 1, Name: "ひよっこ", Progress: 0, Remaining: 5, CurrentXP: 0, NextLevelXP: 5}},
		{4, LevelInfo{Level: 1, Name: "ひよっこ", Progress: 80, Remaining: 1, CurrentXP: 4, NextLevelXP: 5}},
		{5, LevelInfo{Level: 2, Name: "たねまき", Progress: 0, Remaining: 10, CurrentXP: 5, NextLevelXP: 15}},
		{7, LevelInfo{Level: 2, Name: "たねまき", Progress: 20, Remaining: 8, CurrentXP: 7, NextLevelXP: 15}},
		{499, LevelInfo{Level: 8, Name: "先導者", Progress: 100, Remaining: 1, CurrentXP: 499, NextLevelXP: 500}},
		{500, LevelInfo{Level: 9, Name: "伝道師", Progress: 100, Remaining: 0, CurrentXP: 500, NextLevelXP: 500}},
		{1200, LevelInfo{Level: 9, Name: "伝道師", Progress: 100, Remaining: 0, CurrentXP: 1200, NextLevelXP: 1200}},
		{-3, LevelInfo{Level: 1, Name: "ひよっこ", Progress: 0, Remaining: 5, CurrentXP: 0, NextLevelXP: 5}},
	}

	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, CalculateLevel(tc.xp)); diff != "" {
			t.Errorf("CalculateLevel(%d) mismatch (-want +got):\n%s", tc.xp, diff)
		}
	}
}

func TestLevelServiceCountsOwnReports(t *testing.T) {
	repo := repository.NewMemoryReportsRepository()
	ctx := context.Background()
	for i, userID := range []string{"me", "me", "other", "me", "me", "me"} {
		report := &domain.Report{
			ReportID:  string(rune('a' + i)),
			UserID:    userID,
			Body:      "b",
			Category:  "WHY_COMM_001",
			CreatedAt: time.Date(2025, 1, 1, i, 0, 0, 0, time.UTC),
		}
		if err := repo.CreateReport(ctx, report); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	info, err := NewLevelService(repo).ForUser(ctx, "me")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if info.Level != 2 || info.CurrentXP != 5 {
		t.Fatalf("expected level 2 with 5 xp, got %+v", info)
	}
}
