package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/and161185/clinical-insight/internal/model"
)

// SheetName is the worksheet holding the case list.
const SheetName = "Cases"

var sheetHeaders = []string{
	"Case ID", "Created", "Patient ID", "Patient name", "Summary",
	"Files", "Confidence", "Overall assessment",
}

// CasesXLSX writes one row per case.
func CasesXLSX(w io.Writer, cases []model.ClinicalCase) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range sheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}

	for idx, c := range cases {
		row := idx + 2
		values := []any{
			c.ID.String(),
			c.CreatedAt.UTC().Format("2006-01-02 15:04"),
			c.PatientID,
			c.PatientName,
			c.PatientSummary,
			len(c.UploadedFiles),
			"",
			"",
		}
		if c.ConfidenceScore != nil {
			values[6] = *c.ConfidenceScore
		}
		if c.AnalysisResult != nil {
			values[7] = c.AnalysisResult.OverallAssessment
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	widths := map[string]float64{"A": 38, "B": 17, "C": 12, "D": 20, "E": 60, "F": 8, "G": 11, "H": 60}
	for col, wd := range widths {
		if err := f.SetColWidth(SheetName, col, col, wd); err != nil {
			return err
		}
	}
	return f.Write(w)
}
