// Package analytics shapes numbers for charts and derives student
// statistics locally when the backend cannot.
package analytics

import (
	"strings"

	"github.com/pavelanni/paperdash/internal/model"
)

// Palette is the fixed radial-chart palette, assigned by position.
var Palette = []string{
	"#6366f1", "#22c55e", "#f59e0b", "#ef4444",
	"#06b6d4", "#a855f7", "#ec4899", "#84cc16",
}

// FormatChartData converts counts to chart points in insertion order.
func FormatChartData(c model.Counts) []model.ChartPoint {
	out := make([]model.ChartPoint, 0, len(c))
	for _, e := range c {
		out = append(out, model.ChartPoint{Name: e.Name, Value: e.Value})
	}
	return out
}

// FormatRadialData is FormatChartData plus each value as a percentage of
// the largest value and a palette colour by position.
func FormatRadialData(c model.Counts) []model.RadialPoint {
	var top float64
	for _, e := range c {
		if e.Value > top {
			top = e.Value
		}
	}
	out := make([]model.RadialPoint, 0, len(c))
	for i, e := range c {
		p := model.RadialPoint{Name: e.Name, Value: e.Value, Color: Palette[i%len(Palette)]}
		if top > 0 {
			p.Percent = e.Value / top * 100
		}
		out = append(out, p)
	}
	return out
}

// Chart names used by Charts and the views.
const (
	ChartDifficulty = "difficulty_distribution"
	ChartBloom      = "bloom_taxonomy"
	ChartTopics     = "topic_coverage"
	ChartMarks      = "marks_allocation"
)

// Charts formats all four series of a paper analytics payload.
func Charts(a *model.PaperAnalytics) map[string][]model.ChartPoint {
	if a == nil {
		return map[string][]model.ChartPoint{}
	}
	return map[string][]model.ChartPoint{
		ChartDifficulty: FormatChartData(a.DifficultyDistribution),
		ChartBloom:      FormatChartData(a.BloomTaxonomy),
		ChartTopics:     FormatChartData(a.TopicCoverage),
		ChartMarks:      FormatChartData(a.MarksAllocation),
	}
}

// FromPaper derives analytics from a normalized paper, for when the
// analytics endpoint fails but the paper itself loaded.
func FromPaper(p *model.PaperDetail) *model.PaperAnalytics {
	a := &model.PaperAnalytics{}
	for _, d := range model.Difficulties {
		a.DifficultyDistribution.Set(titleCase(string(d)), float64(p.Stats.ByDifficulty[d]))
	}
	for _, b := range model.BloomLevels {
		a.BloomTaxonomy.Set(titleCase(string(b)), float64(p.Stats.ByBloom[b]))
	}
	for _, q := range p.Questions {
		topic := q.Topic
		if topic == "" {
			topic = "General"
		}
		v, _ := a.TopicCoverage.Get(topic)
		a.TopicCoverage.Set(topic, v+1)

		d := titleCase(string(q.Difficulty))
		if d == "" {
			continue
		}
		m, _ := a.MarksAllocation.Get(d)
		a.MarksAllocation.Set(d, m+q.Marks)
	}
	return a
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
