package paper

import (
	"strings"

	"github.com/pavelanni/paperdash/internal/model"
)

// Filter keeps history entries whose subject name or id contains query
// (case-insensitive) and, when engine is set, whose engine matches it.
// Order is preserved.
func Filter(entries []model.PaperSummary, query string, engine model.Engine) []model.PaperSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.PaperSummary, 0, len(entries))
	for _, e := range entries {
		if engine != "" && !strings.EqualFold(e.AIEngine, string(engine)) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.SubjectName), q) &&
			!strings.Contains(strings.ToLower(e.ID), q) {
			continue
		}
		out = append(out, e)
	}
	return out
}
