package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPreprocessShortTextFromStdin(t *testing.T) {
	out, err := execute(t, "短い報告です。", "preprocess")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Direct processing (7 chars)\n"), out)
	assert.Contains(t, out, "短い報告です。")
}

func TestPreprocessLongTextReduces(t *testing.T) {
	text := strings.Repeat("重要な障害が発生した。", 100)
	out, err := execute(t, text, "preprocess", "--max-direct-length", "300", "--chunk-size", "200", "--chunk-overlap", "20", "--summary-length", "150")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Preprocessed: 1100 -> "), out)
	assert.Contains(t, out, "chunks: ")
}

func TestImportDemoWithoutDatabasePrintsJSONLines(t *testing.T) {
	out, err := execute(t, "", "import-demo", "--count", "3", "--user", "ops")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var report domain.Report
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &report))
	assert.Equal(t, "ops", report.UserID)
	assert.NotEmpty(t, report.ReportID)
}

func TestDemoReportsSpreadOverDays(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	reports := demoReports(category.Default(), 4, "u", 3, now)

	require.Len(t, reports, 4)
	assert.Equal(t, now, reports[0].CreatedAt)
	assert.Equal(t, now.Add(-72*time.Hour), reports[3].CreatedAt)
	assert.NotEqual(t, reports[0].Category, reports[1].Category)
	for _, report := range reports {
		assert.True(t, category.Default().Valid(report.Category))
	}
}

func TestCleanupRequiresDatabase(t *testing.T) {
	_, err := execute(t, "", "cleanup", "--before", "2024-01-01")
	assert.ErrorIs(t, err, errDatabaseRequired)

	_, err = execute(t, "", "cleanup", "--before", "last week")
	assert.ErrorContains(t, err, "--before")
}

func TestLoadReportsPercentiles(t *testing.T) {
	out, err := execute(t, "", "load", "--total", "12", "--concurrency", "4", "--latency", "5ms", "--content-length", "50")
	require.NoError(t, err)

	var result runResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Results, 1)
	scenario := result.Results[0]
	assert.Equal(t, 12, scenario.Total)
	assert.Equal(t, 12, scenario.Success)
	assert.Equal(t, map[string]int{"200": 12}, scenario.StatusCounts)
	assert.LessOrEqual(t, scenario.P50MS, scenario.P99MS)
	assert.Equal(t, 0, result.Admission.Running)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, percentile(values, 0.50))
	assert.Equal(t, 10.0, percentile(values, 0.95))
	assert.Equal(t, 10.0, percentile(values, 1))
	assert.Equal(t, 0.0, percentile(nil, 0.5))
}
