// Package report renders auditor reports as Excel workbooks
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

const (
	// SheetSubmissions lists one row per submission
	SheetSubmissions = "Submissions"
	// SheetUsage lists each category's spend against its daily limit
	SheetUsage = "Daily Usage"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var submissionHeaders = []string{
	"Submission ID",
	"Created At",
	"Agreement",
	"Vendor",
	"Invoice Number",
	"Invoice Date",
	"Category",
	"Quantity",
	"Grand Total (Rp)",
	"Confidence",
	"Route",
	"Status",
	"Audit Status",
	"Reviewed By",
	"Tx Hash",
	"Block",
}

var usageHeaders = []string{
	"Category",
	"Day",
	"Daily Limit (Rp)",
	"Spent (Rp)",
	"Remaining (Rp)",
}

// ExcelExporter implements port.ReportExporter with excelize
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// ContentType returns the xlsx MIME type
func (e *ExcelExporter) ContentType() string {
	return xlsxContentType
}

// Extension returns the file extension including the dot
func (e *ExcelExporter) Extension() string {
	return ".xlsx"
}

// Export writes submissions and usage into a two-sheet workbook
func (e *ExcelExporter) Export(ctx context.Context, submissions []*entity.Submission, usage []*entity.CategoryUsage) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	// The default sheet is renamed rather than deleted so the workbook is never empty
	if err := f.SetSheetName(f.GetSheetName(0), SheetSubmissions); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetUsage); err != nil {
		return nil, fmt.Errorf("failed to create usage sheet: %w", err)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeHeader(f, SheetSubmissions, submissionHeaders, header); err != nil {
		return nil, err
	}
	for i, sub := range submissions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i + 2
		values := []interface{}{
			sub.ID,
			sub.CreatedAt.UTC().Format(time.RFC3339),
			sub.AgreementID,
			sub.Vendor,
			sub.InvoiceNumber,
			sub.InvoiceDate.String(),
			sub.Category,
			sub.TotalQuantity(),
			sub.GrandTotal,
			sub.ConfidenceScore,
			string(sub.Route),
			string(sub.Status),
			sub.AuditStatus(),
			sub.ReviewedBy,
			sub.TxHash,
			blockCell(sub.BlockNumber),
		}
		if err := writeRow(f, SheetSubmissions, row, values); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(SheetSubmissions, cell(9, row), cell(9, row), money); err != nil {
			return nil, err
		}
	}

	if err := writeHeader(f, SheetUsage, usageHeaders, header); err != nil {
		return nil, err
	}
	for i, u := range usage {
		row := i + 2
		values := []interface{}{u.Category, u.Day.String(), u.Limit, u.Spent, u.Remaining}
		if err := writeRow(f, SheetUsage, row, values); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(SheetUsage, cell(3, row), cell(5, row), money); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SheetSubmissions, "A", "A", 38)
	_ = f.SetColWidth(SheetSubmissions, "B", "B", 22)
	_ = f.SetColWidth(SheetSubmissions, "C", "G", 18)
	_ = f.SetColWidth(SheetSubmissions, "I", "I", 18)
	_ = f.SetColWidth(SheetSubmissions, "K", "L", 22)
	_ = f.SetColWidth(SheetSubmissions, "O", "O", 68)
	_ = f.SetColWidth(SheetUsage, "A", "A", 24)
	_ = f.SetColWidth(SheetUsage, "B", "E", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Report workbook written",
		zap.Int("submissions", len(submissions)),
		zap.Int("categories", len(usage)),
		zap.Duration("elapsed", time.Since(start)))
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		if err := f.SetCellValue(sheet, cell(i+1, 1), h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	return f.SetCellStyle(sheet, cell(1, 1), cell(len(headers), 1), style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		if err := f.SetCellValue(sheet, cell(col+1, row), v); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func blockCell(block int64) interface{} {
	if block == 0 {
		return ""
	}
	return block
}

// Verify interface compliance
var _ port.ReportExporter = (*ExcelExporter)(nil)
