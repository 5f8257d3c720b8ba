package students

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/paperdash/internal/model"
)

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*f = flexFloat(v)
	return nil
}

type rowWire struct {
	ResultID            model.FlexID `json:"result_id"`
	ID                  model.FlexID `json:"id"`
	StudentID           model.FlexID `json:"student_id"`
	PaperID             model.FlexID `json:"paper_id"`
	MarksObtained       flexFloat    `json:"marks_obtained"`
	MaxMarks            flexFloat    `json:"max_marks"`
	DifficultyBreakdown struct {
		Easy   flexFloat `json:"easy"`
		Medium flexFloat `json:"medium"`
		Hard   flexFloat `json:"hard"`
	} `json:"difficulty_breakdown"`
	CreatedAt string `json:"created_at"`
}

type summaryWire struct {
	StudentID    model.FlexID `json:"student_id"`
	ID           model.FlexID `json:"id"`
	Name         string       `json:"name"`
	StudentName  string       `json:"student_name"`
	TotalPapers  flexFloat    `json:"total_papers"`
	AverageScore flexFloat    `json:"average_score"`
	Status       string       `json:"status"`
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"}

// DecodeRoster reads GET /students. The body is a list (optionally wrapped
// in students/data/items/results) of either result rows or aggregated
// per-student summaries; the first element decides which.
func DecodeRoster(raw []byte) (model.Roster, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.Roster{}, nil
	}
	if raw[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return model.Roster{}, fmt.Errorf("decode roster: %w", err)
		}
		raw = nil
		for _, key := range []string{"students", "data", "items", "results"} {
			if v, ok := wrapped[key]; ok {
				raw = v
				break
			}
		}
		if raw == nil {
			return model.Roster{}, fmt.Errorf("decode roster: unexpected shape")
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return model.Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	if len(items) == 0 {
		return model.Roster{}, nil
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &first); err != nil {
		return model.Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	_, hasMarks := first["marks_obtained"]
	_, hasMax := first["max_marks"]
	if hasMarks || hasMax {
		return decodeRows(items)
	}
	return decodeSummaries(items)
}

func decodeRows(items []json.RawMessage) (model.Roster, error) {
	rows := make([]model.StudentResultRow, 0, len(items))
	for i, item := range items {
		var w rowWire
		if err := json.Unmarshal(item, &w); err != nil {
			return model.Roster{}, fmt.Errorf("decode roster row %d: %w", i, err)
		}
		row := model.StudentResultRow{
			ResultID:      string(w.ResultID),
			StudentID:     string(w.StudentID),
			PaperID:       string(w.PaperID),
			MarksObtained: float64(w.MarksObtained),
			MaxMarks:      float64(w.MaxMarks),
			DifficultyBreakdown: model.Breakdown{
				Easy:   float64(w.DifficultyBreakdown.Easy),
				Medium: float64(w.DifficultyBreakdown.Medium),
				Hard:   float64(w.DifficultyBreakdown.Hard),
			},
		}
		if row.ResultID == "" {
			row.ResultID = string(w.ID)
		}
		if t, ok := parseTime(w.CreatedAt); ok {
			row.CreatedAt = &t
		}
		rows = append(rows, row)
	}
	return model.Roster{Rows: rows}, nil
}

func decodeSummaries(items []json.RawMessage) (model.Roster, error) {
	sums := make([]model.StudentSummary, 0, len(items))
	for i, item := range items {
		var w summaryWire
		if err := json.Unmarshal(item, &w); err != nil {
			return model.Roster{}, fmt.Errorf("decode roster summary %d: %w", i, err)
		}
		s := model.StudentSummary{
			StudentID:    string(w.StudentID),
			Name:         w.Name,
			TotalPapers:  int(w.TotalPapers),
			AverageScore: float64(w.AverageScore),
			Status:       w.Status,
		}
		if s.StudentID == "" {
			s.StudentID = string(w.ID)
		}
		if s.Name == "" {
			s.Name = w.StudentName
		}
		sums = append(sums, s)
	}
	return model.Roster{Summaries: sums}, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
