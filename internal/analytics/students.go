package analytics

import "github.com/pavelanni/paperdash/internal/model"

// StudentFallback computes one student's statistics from roster rows.
// Rows with max marks of zero score 0; no rows means average 0.
func StudentFallback(rows []model.StudentResultRow, studentID string) model.StudentAnalytics {
	a := model.StudentAnalytics{
		StudentID:        studentID,
		PerformanceTrend: []model.TrendPoint{},
		Source:           model.SourceLocal,
	}
	var sum float64
	for _, r := range rows {
		if r.StudentID != studentID {
			continue
		}
		score := r.Score()
		a.TotalPapers++
		sum += score
		a.DifficultyBreakdown = a.DifficultyBreakdown.Add(r.DifficultyBreakdown)
		a.PerformanceTrend = append(a.PerformanceTrend, model.TrendPoint{PaperID: r.PaperID, Score: score})
	}
	if a.TotalPapers > 0 {
		a.AverageScore = sum / float64(a.TotalPapers)
	}
	return a
}

// HasStudent reports whether any row belongs to studentID.
func HasStudent(rows []model.StudentResultRow, studentID string) bool {
	for _, r := range rows {
		if r.StudentID == studentID {
			return true
		}
	}
	return false
}

// StudentIDs lists distinct student ids in first-seen order.
func StudentIDs(rows []model.StudentResultRow) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range rows {
		if !seen[r.StudentID] {
			seen[r.StudentID] = true
			ids = append(ids, r.StudentID)
		}
	}
	return ids
}

// Summaries aggregates rows into one summary per student, in first-seen
// order. Status is left empty: it is never derived locally.
func Summaries(rows []model.StudentResultRow) []model.StudentSummary {
	ids := StudentIDs(rows)
	out := make([]model.StudentSummary, 0, len(ids))
	for _, id := range ids {
		a := StudentFallback(rows, id)
		out = append(out, model.StudentSummary{
			StudentID:    id,
			TotalPapers:  a.TotalPapers,
			AverageScore: a.AverageScore,
		})
	}
	return out
}

// Fleet computes roster-wide statistics. The average is over all rows.
func Fleet(rows []model.StudentResultRow) model.FleetStats {
	papers := make(map[string]bool)
	var sum float64
	for _, r := range rows {
		papers[r.PaperID] = true
		sum += r.Score()
	}
	st := model.FleetStats{
		Students: len(StudentIDs(rows)),
		Papers:   len(papers),
		Results:  len(rows),
	}
	if len(rows) > 0 {
		st.AverageScore = sum / float64(len(rows))
	}
	return st
}
