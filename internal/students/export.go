package students

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/paperdash/internal/analytics"
	"github.com/pavelanni/paperdash/internal/model"
)

const (
	summarySheet = "Students"
	resultsSheet = "Results"
)

// WriteXLSX writes the roster as a workbook: one sheet of per-student
// statistics and, when the backend sent raw rows, one sheet of results.
func WriteXLSX(w io.Writer, r model.Roster) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("export roster: %w", err)
	}
	headers := []any{"Student ID", "Name", "Papers", "Average score", "Easy", "Medium", "Hard", "Status"}
	if err := f.SetSheetRow(summarySheet, "A1", &headers); err != nil {
		return fmt.Errorf("export roster: %w", err)
	}
	for i, s := range Summaries(r) {
		var b model.Breakdown
		if len(r.Rows) > 0 {
			b = analytics.StudentFallback(r.Rows, s.StudentID).DifficultyBreakdown
		}
		row := []any{s.StudentID, s.Name, s.TotalPapers, round2(s.AverageScore), b.Easy, b.Medium, b.Hard, s.Status}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("export roster: %w", err)
		}
	}

	if len(r.Rows) > 0 {
		if _, err := f.NewSheet(resultsSheet); err != nil {
			return fmt.Errorf("export roster: %w", err)
		}
		headers := []any{"Result ID", "Student ID", "Paper ID", "Marks obtained", "Max marks", "Score %", "Created"}
		if err := f.SetSheetRow(resultsSheet, "A1", &headers); err != nil {
			return fmt.Errorf("export roster: %w", err)
		}
		for i, row := range r.Rows {
			created := ""
			if row.CreatedAt != nil {
				created = row.CreatedAt.Format("2006-01-02 15:04")
			}
			vals := []any{row.ResultID, row.StudentID, row.PaperID, row.MarksObtained, row.MaxMarks, round2(row.Score()), created}
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(resultsSheet, cell, &vals); err != nil {
				return fmt.Errorf("export roster: %w", err)
			}
		}
	}

	fleet := analytics.Fleet(r.Rows)
	if len(r.Rows) == 0 {
		fleet.Students = len(r.Summaries)
	}
	idx, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(idx)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "Student results",
		Description: fmt.Sprintf("%d students, %d results, average %.1f%%", fleet.Students, fleet.Results, fleet.AverageScore),
	}); err != nil {
		return fmt.Errorf("export roster: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export roster: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
