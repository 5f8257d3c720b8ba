package model

import "time"

// Breakdown holds per-difficulty numbers for a student result.
type Breakdown struct {
	Easy   float64 `json:"easy" yaml:"easy"`
	Medium float64 `json:"medium" yaml:"medium"`
	Hard   float64 `json:"hard" yaml:"hard"`
}

// Add returns the element-wise sum of b and o.
func (b Breakdown) Add(o Breakdown) Breakdown {
	return Breakdown{Easy: b.Easy + o.Easy, Medium: b.Medium + o.Medium, Hard: b.Hard + o.Hard}
}

// StudentResultRow is one uploaded result of one student on one paper.
type StudentResultRow struct {
	ResultID            string     `json:"result_id" yaml:"result_id"`
	StudentID           string     `json:"student_id" yaml:"student_id"`
	PaperID             string     `json:"paper_id" yaml:"paper_id"`
	MarksObtained       float64    `json:"marks_obtained" yaml:"marks_obtained"`
	MaxMarks            float64    `json:"max_marks" yaml:"max_marks"`
	DifficultyBreakdown Breakdown  `json:"difficulty_breakdown" yaml:"difficulty_breakdown"`
	CreatedAt           *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Score returns marks obtained as a percentage of max marks, or 0 when
// max marks is not positive.
func (r StudentResultRow) Score() float64 {
	if r.MaxMarks <= 0 {
		return 0
	}
	return r.MarksObtained / r.MaxMarks * 100
}

// StudentSummary is the already-aggregated per-student shape some
// backends return from the roster endpoint.
type StudentSummary struct {
	StudentID    string  `json:"student_id" yaml:"student_id"`
	Name         string  `json:"name,omitempty" yaml:"name,omitempty"`
	TotalPapers  int     `json:"total_papers" yaml:"total_papers"`
	AverageScore float64 `json:"average_score" yaml:"average_score"`
	// Status is only set when the backend supplied one.
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

// TrendPoint is one paper score in a student's performance trend.
type TrendPoint struct {
	PaperID string  `json:"paper_id" yaml:"paper_id"`
	Score   float64 `json:"score" yaml:"score"`
}

// AnalyticsSource tells where a StudentAnalytics value came from.
type AnalyticsSource string

const (
	SourceBackend AnalyticsSource = "backend"
	SourceLocal   AnalyticsSource = "local"
)

// StudentAnalytics is the per-student statistics view.
type StudentAnalytics struct {
	StudentID           string          `json:"student_id" yaml:"student_id"`
	TotalPapers         int             `json:"total_papers" yaml:"total_papers"`
	AverageScore        float64         `json:"average_score" yaml:"average_score"`
	DifficultyBreakdown Breakdown       `json:"difficulty_breakdown" yaml:"difficulty_breakdown"`
	PerformanceTrend    []TrendPoint    `json:"performance_trend" yaml:"performance_trend"`
	Source              AnalyticsSource `json:"source" yaml:"source"`
}

// Roster is what the students view works from: raw rows, or aggregated
// summaries when the backend already grouped them.
type Roster struct {
	Rows      []StudentResultRow `json:"rows,omitempty" yaml:"rows,omitempty"`
	Summaries []StudentSummary   `json:"summaries,omitempty" yaml:"summaries,omitempty"`
}

// FleetStats are statistics across all students in a roster.
type FleetStats struct {
	Students     int     `json:"students" yaml:"students"`
	Papers       int     `json:"papers" yaml:"papers"`
	Results      int     `json:"results" yaml:"results"`
	AverageScore float64 `json:"average_score" yaml:"average_score"`
}
