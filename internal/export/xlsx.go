// Package export renders reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Reports"

var headers = []string{
	"Report ID",
	"Created At",
	"Category",
	"Category Code",
	"Group",
	"Title",
	"Body",
	"Summary",
	"Improvements",
	"Tags",
	"User ID",
}

// WriteReports writes one row per report. Times are rendered in location.
func WriteReports(w io.Writer, reports []domain.Report, taxonomy *category.Taxonomy, location *time.Location) error {
	if location == nil {
		location = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for index, report := range reports {
		row := index + 2
		values := []any{
			report.ReportID,
			report.CreatedAt.In(location).Format("2006-01-02 15:04:05"),
			taxonomy.DisplayName(report.Category),
			report.Category,
			taxonomy.Group(report.Category),
			report.Title,
			report.Body,
			report.Summary,
			report.Improvements,
			strings.Join(report.Tags, ", "),
			report.UserID,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "B", 20)
	_ = f.SetColWidth(SheetName, "C", "E", 24)
	_ = f.SetColWidth(SheetName, "F", "F", 32)
	_ = f.SetColWidth(SheetName, "G", "I", 60)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
