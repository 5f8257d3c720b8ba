package analytics

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/pavelanni/paperdash/internal/model"
)

func counts(t *testing.T, raw string) model.Counts {
	t.Helper()
	var c model.Counts
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	return c
}

func TestFormatChartDataKeepsOrder(t *testing.T) {
	got := FormatChartData(counts(t, `{"Hard": 2, "Easy": 5, "Medium": 3}`))
	want := []model.ChartPoint{{Name: "Hard", Value: 2}, {Name: "Easy", Value: 5}, {Name: "Medium", Value: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := FormatChartData(nil); len(got) != 0 {
		t.Errorf("nil counts gave %v", got)
	}
}

func TestFormatRadialData(t *testing.T) {
	raw := `{"a": 10, "b": 5, "c": 0, "d": 1, "e": 1, "f": 1, "g": 1, "h": 1, "i": 2.5}`
	got := FormatRadialData(counts(t, raw))

	if len(got) != 9 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Percent != 100 || got[1].Percent != 50 || got[2].Percent != 0 || got[8].Percent != 25 {
		t.Errorf("percents = %v %v %v %v", got[0].Percent, got[1].Percent, got[2].Percent, got[8].Percent)
	}
	if got[8].Color != Palette[0] || got[3].Color != Palette[3] {
		t.Errorf("colors not assigned by position modulo palette: %q %q", got[8].Color, got[3].Color)
	}
}

func TestFormatRadialDataAllZero(t *testing.T) {
	for _, p := range FormatRadialData(counts(t, `{"x": 0, "y": 0}`)) {
		if p.Percent != 0 || math.IsNaN(p.Percent) {
			t.Errorf("%s percent = %v, want 0", p.Name, p.Percent)
		}
	}
}

func TestFromPaper(t *testing.T) {
	p := &model.PaperDetail{
		Questions: []model.Question{
			{Difficulty: "easy", BloomLevel: "remember", Marks: 2, Topic: "Optics"},
			{Difficulty: "hard", BloomLevel: "apply", Marks: 8},
			{Difficulty: "easy", BloomLevel: "apply", Marks: 3, Topic: "Optics"},
		},
		Stats: model.PaperStats{
			ByDifficulty: map[model.Difficulty]int{"easy": 2, "medium": 0, "hard": 1},
			ByBloom:      map[model.BloomLevel]int{"remember": 1, "apply": 2},
		},
	}
	a := FromPaper(p)

	if got := FormatChartData(a.DifficultyDistribution); !reflect.DeepEqual(got, []model.ChartPoint{{Name: "Easy", Value: 2}, {Name: "Medium", Value: 0}, {Name: "Hard", Value: 1}}) {
		t.Errorf("difficulty = %v", got)
	}
	if len(a.BloomTaxonomy) != 6 {
		t.Errorf("bloom has %d entries", len(a.BloomTaxonomy))
	}
	if got := FormatChartData(a.TopicCoverage); !reflect.DeepEqual(got, []model.ChartPoint{{Name: "Optics", Value: 2}, {Name: "General", Value: 1}}) {
		t.Errorf("topics = %v", got)
	}
	if v, _ := a.MarksAllocation.Get("Easy"); v != 5 {
		t.Errorf("easy marks = %v", v)
	}
}

func rows() []model.StudentResultRow {
	return []model.StudentResultRow{
		{StudentID: "s1", PaperID: "p1", MarksObtained: 40, MaxMarks: 50, DifficultyBreakdown: model.Breakdown{Easy: 10, Medium: 20, Hard: 10}},
		{StudentID: "s2", PaperID: "p1", MarksObtained: 25, MaxMarks: 50},
		{StudentID: "s1", PaperID: "p2", MarksObtained: 30, MaxMarks: 60, DifficultyBreakdown: model.Breakdown{Easy: 5, Medium: 15, Hard: 10}},
		{StudentID: "s1", PaperID: "p3", MarksObtained: 7, MaxMarks: 0},
	}
}

func TestStudentFallback(t *testing.T) {
	got := StudentFallback(rows(), "s1")
	want := model.StudentAnalytics{
		StudentID:           "s1",
		TotalPapers:         3,
		AverageScore:        (80.0 + 50.0 + 0.0) / 3,
		DifficultyBreakdown: model.Breakdown{Easy: 15, Medium: 35, Hard: 20},
		PerformanceTrend:    []model.TrendPoint{{PaperID: "p1", Score: 80}, {PaperID: "p2", Score: 50}, {PaperID: "p3", Score: 0}},
		Source:              model.SourceLocal,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

// A student with no rows yields zeros, never NaN.
func TestStudentFallbackNoRows(t *testing.T) {
	for _, rs := range [][]model.StudentResultRow{nil, rows()} {
		got := StudentFallback(rs, "nobody")
		if got.TotalPapers != 0 || got.AverageScore != 0 || math.IsNaN(got.AverageScore) {
			t.Errorf("got %+v", got)
		}
		if len(got.PerformanceTrend) != 0 {
			t.Errorf("trend = %v", got.PerformanceTrend)
		}
	}
}

func TestSummariesAndFleet(t *testing.T) {
	sums := Summaries(rows())
	if len(sums) != 2 || sums[0].StudentID != "s1" || sums[1].StudentID != "s2" {
		t.Fatalf("summaries = %+v", sums)
	}
	if sums[1].AverageScore != 50 || sums[1].Status != "" {
		t.Errorf("s2 = %+v", sums[1])
	}

	fl := Fleet(rows())
	want := model.FleetStats{Students: 2, Papers: 3, Results: 4, AverageScore: (80.0 + 50 + 50 + 0) / 4}
	if fl != want {
		t.Errorf("fleet = %+v, want %+v", fl, want)
	}
	if Fleet(nil) != (model.FleetStats{}) {
		t.Error("empty fleet should be zero")
	}
}
