package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteReports(t *testing.T) {
	taxonomy := category.Default()
	code := taxonomy.All()[0].Code
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	reports := []domain.Report{{
		ReportID:  "r-1",
		UserID:    "u-1",
		Title:     "誤送信",
		Body:      "宛先を確認せずに送信した",
		Tags:      []string{"mail", "check"},
		Category:  code,
		CreatedAt: time.Date(2025, 4, 1, 0, 30, 0, 0, time.UTC),
	}}

	var buffer bytes.Buffer
	require.NoError(t, WriteReports(&buffer, reports, taxonomy, tokyo))

	workbook, err := excelize.OpenReader(&buffer)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "r-1", rows[1][0])
	assert.Equal(t, "2025-04-01 09:30:00", rows[1][1])
	assert.Equal(t, taxonomy.DisplayName(code), rows[1][2])
	assert.Equal(t, code, rows[1][3])
	assert.Equal(t, "mail, check", rows[1][9])
}

func TestWriteReportsEmpty(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, WriteReports(&buffer, nil, category.Default(), nil))

	workbook, err := excelize.OpenReader(&buffer)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
