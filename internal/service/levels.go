package service

import (
	"context"
	"math"

	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

// LevelNames are indexed by level-1.
var LevelNames = []string{
	"ひよっこ",
	"たねまき",
	"見習い",
	"研究者",
	"冒険者",
	"達人",
	"師範",
	"先導者",
	"伝道師",
}

// StepNeed[i] reports are needed to go from level i+1 to level i+2.
var StepNeed = []int{5, 10, 15, 20, 30, 70, 150, 200}

type LevelInfo struct {
	Level       int    `json:"level"`
	Name        string `json:"name"`
	Progress    int    `json:"progress"`
	Remaining   int    `json:"remaining"`
	CurrentXP   int    `json:"currentXp"`
	NextLevelXP int    `json:"nextLevelXp"`
}

// CalculateLevel maps experience points (one per report) to a level.
func CalculateLevel(xp int) LevelInfo {
	if xp < 0 {
		xp = 0
	}

	level := 1
	accumulated := 0
	for _, step := range StepNeed {
		if xp < accumulated+step {
			break
		}
		accumulated += step
		level++
	}

	if level > len(StepNeed) {
		return LevelInfo{
			Level:       len(StepNeed) + 1,
			Name:        levelName(len(StepNeed) + 1),
			Progress:    100,
			Remaining:   0,
			CurrentXP:   xp,
			NextLevelXP: xp,
		}
	}

	step := StepNeed[level-1]
	current := xp - accumulated
	progress := int(math.Round(float64(current) / float64(step) * 100))
	return LevelInfo{
		Level:       level,
		Name:        levelName(level),
		Progress:    min(100, progress),
		Remaining:   max(0, step-current),
		CurrentXP:   xp,
		NextLevelXP: accumulated + step,
	}
}

func levelName(level int) string {
	return LevelNames[min(level-1, len(LevelNames)-1)]
}

// LevelService derives a reporter's level from their report count.
type LevelService struct {
	repo repository.ReportsRepository
}

func NewLevelService(repo repository.ReportsRepository) *LevelService {
	return &LevelService{repo: repo}
}

func (s *LevelService) ForUser(ctx context.Context, userID string) (LevelInfo, error) {
	xp, err := s.repo.CountReports(ctx, domain.ReportFilter{UserID: userID})
	if err != nil {
		return LevelInfo{}, err
	}
	return CalculateLevel(xp), nil
}
