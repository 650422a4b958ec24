package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names, one per memory family
const (
	SheetVendorPatterns  = "Vendor Patterns"
	SheetCorrectionRules = "Correction Rules"
	SheetResolutions     = "Resolutions"
)

const snapshotTimeLayout = "20060102T150405Z"

var (
	vendorPatternHeader = []interface{}{
		"ID", "Vendor", "Type", "Key", "Value", "Confidence",
		"Times Applied", "Times Successful", "Times Failed", "Version", "Last Applied", "Updated",
	}
	correctionRuleHeader = []interface{}{
		"ID", "Vendor", "Correction Type", "Rule", "Confidence",
		"Times Applied", "Times Successful", "Times Failed", "Source Invoices", "Created",
	}
	resolutionHeader = []interface{}{
		"ID", "Invoice", "Vendor", "Issue Type", "Issue Description", "Human Action",
		"Corrections", "Prior Confidence", "Created",
	}
)

// MemoryReportExporter renders learned memory as an XLSX workbook
type MemoryReportExporter interface {
	BuildWorkbook(ctx context.Context) ([]byte, error)
	// SaveSnapshot writes the workbook to the report store and returns its location
	SaveSnapshot(ctx context.Context) (string, error)
}

type memoryReportExporterImpl struct {
	patterns PatternStore
	reports  port.ReportStore
	logger   Logger
	now      func() time.Time
}

// NewMemoryReportExporter creates a new MemoryReportExporter
func NewMemoryReportExporter(patterns PatternStore, reports port.ReportStore, logger Logger) MemoryReportExporter {
	return &memoryReportExporterImpl{
		patterns: patterns,
		reports:  reports,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// BuildWorkbook implements MemoryReportExporter
func (x *memoryReportExporterImpl) BuildWorkbook(ctx context.Context) ([]byte, error) {
	snapshot, err := x.patterns.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	vendorRows := make([][]interface{}, 0, len(snapshot.VendorPatterns))
	for _, p := range snapshot.VendorPatterns {
		lastApplied := ""
		if p.LastAppliedAt != nil {
			lastApplied = p.LastAppliedAt.Format(time.RFC3339)
		}
		vendorRows = append(vendorRows, []interface{}{
			p.ID, p.Vendor, string(p.Type), p.Key, x.encode(p.Value), p.Confidence,
			p.TimesApplied, p.TimesSuccessful, p.TimesFailed, p.Version, lastApplied,
			p.UpdatedAt.Format(time.RFC3339),
		})
	}

	ruleRows := make([][]interface{}, 0, len(snapshot.CorrectionPatterns))
	for _, r := range snapshot.CorrectionPatterns {
		vendor := "(global)"
		if r.Vendor != nil {
			vendor = *r.Vendor
		}
		ruleRows = append(ruleRows, []interface{}{
			r.ID, vendor, string(r.CorrectionType), x.encodeRule(r), r.Confidence,
			r.TimesApplied, r.TimesSuccessful, r.TimesFailed, strings.Join(r.SourceInvoiceIDs, ", "),
			r.CreatedAt.Format(time.RFC3339),
		})
	}

	resolutionRows := make([][]interface{}, 0, len(snapshot.Resolutions))
	for _, r := range snapshot.Resolutions {
		resolutionRows = append(resolutionRows, []interface{}{
			r.ID, r.InvoiceID, r.Vendor, string(r.IssueType), r.IssueDescription, r.HumanAction,
			x.encode(r.CorrectionApplied), r.Context.PriorConfidence, r.CreatedAt.Format(time.RFC3339),
		})
	}

	if err := x.writeSheet(f, SheetVendorPatterns, vendorPatternHeader, vendorRows); err != nil {
		return nil, err
	}
	if err := x.writeSheet(f, SheetCorrectionRules, correctionRuleHeader, ruleRows); err != nil {
		return nil, err
	}
	if err := x.writeSheet(f, SheetResolutions, resolutionHeader, resolutionRows); err != nil {
		return nil, err
	}

	if idx, err := f.GetSheetIndex(SheetVendorPatterns); err == nil {
		f.SetActiveSheet(idx)
	}
	// Default sheet created by NewFile
	if err := f.DeleteSheet("Sheet1"); err != nil {
		x.logger.Warn("Failed to remove default sheet", "error", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveSnapshot implements MemoryReportExporter
func (x *memoryReportExporterImpl) SaveSnapshot(ctx context.Context) (string, error) {
	content, err := x.BuildWorkbook(ctx)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("memory-%s.xlsx", x.now().Format(snapshotTimeLayout))
	location, err := x.reports.Save(ctx, name, content)
	if err != nil {
		return "", fmt.Errorf("failed to save memory snapshot: %w", err)
	}

	x.logger.Info("Memory snapshot saved", "location", location, "size", len(content))
	return location, nil
}

func (x *memoryReportExporterImpl) writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, sheet, err)
		}
	}
	return nil
}

// encodeRule renders condition and action envelopes
func (x *memoryReportExporterImpl) encodeRule(r *entity.CorrectionPattern) string {
	condition, err := entity.EncodeCondition(r.Condition)
	if err != nil {
		x.logger.Warn("Failed to encode rule condition", "rule_id", r.ID, "error", err)
	}
	action, err := entity.EncodeAction(r.Action)
	if err != nil {
		x.logger.Warn("Failed to encode rule action", "rule_id", r.ID, "error", err)
	}
	return fmt.Sprintf("if %s then %s", condition, action)
}

// encode renders a structured value as compact JSON for a single cell
func (x *memoryReportExporterImpl) encode(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		x.logger.Warn("Failed to encode cell value", "error", err)
		return ""
	}
	return string(raw)
}
