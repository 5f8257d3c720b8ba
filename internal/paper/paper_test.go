package paper

import (
	"reflect"
	"testing"

	"github.com/pavelanni/paperdash/internal/model"
)

func mustNormalize(t *testing.T, raw string) *model.PaperDetail {
	t.Helper()
	p, err := Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return p
}

func texts(qs []model.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func TestNormalizeNestedSections(t *testing.T) {
	p := mustNormalize(t, `{
		"id": 12, "title": "Midterm",
		"sections": [
			{"name": "A", "questions": [{"text": "a1", "difficulty": "easy", "marks": 2}, {"text": "a2", "marks": 3}]},
			{"name": "B", "questions": []},
			{"name": "C", "questions": [{"question_text": "c1", "difficulty": "Hard", "bloom_level": "apply", "marks": "5"}]}
		]
	}`)

	if p.Shape != ShapeSectioned {
		t.Errorf("Shape = %q, want %q", p.Shape, ShapeSectioned)
	}
	if p.ID != "12" || p.Title != "Midterm" {
		t.Errorf("header = %q/%q", p.ID, p.Title)
	}
	if got, want := texts(p.Questions), []string{"a1", "a2", "c1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("questions = %v, want %v", got, want)
	}
	for i, q := range p.Questions {
		if q.Number != i+1 {
			t.Errorf("question %d numbered %d", i, q.Number)
		}
	}
	if p.Questions[2].Difficulty != model.DifficultyHard || p.Questions[2].Marks != 5 {
		t.Errorf("c1 = %+v", p.Questions[2])
	}
	// Nested questions are taken as they come: no defaults.
	if p.Questions[1].Difficulty != "" {
		t.Errorf("a2 difficulty = %q, want empty", p.Questions[1].Difficulty)
	}
}

func TestNormalizeSectionsAsQuestions(t *testing.T) {
	p := mustNormalize(t, `{"sections": [
		{"text": "s1", "difficulty": "easy", "marks": 4},
		{"question": "s2", "marks": 6, "bloom": "evaluate"},
		{"text": "s3"}
	]}`)

	if p.Shape != ShapeSectionedFlat {
		t.Errorf("Shape = %q, want %q", p.Shape, ShapeSectionedFlat)
	}
	want := []model.Question{
		{Number: 1, Text: "s1", Difficulty: model.DifficultyEasy, BloomLevel: model.BloomUnderstand, Marks: 4},
		{Number: 2, Text: "s2", Difficulty: model.DifficultyMedium, BloomLevel: model.BloomEvaluate, Marks: 6},
		{Number: 3, Text: "s3", Difficulty: model.DifficultyMedium, BloomLevel: model.BloomUnderstand},
	}
	if !reflect.DeepEqual(p.Questions, want) {
		t.Errorf("questions =\n%+v\nwant\n%+v", p.Questions, want)
	}
}

func TestNormalizeFlatQuestions(t *testing.T) {
	p := mustNormalize(t, `{"questions": [
		{"question_number": 3, "text": "third", "difficulty": "hard", "bloom_level": "create", "marks": 10, "topic": "Optics"},
		{"question_number": 1, "text": "first", "difficulty": "easy", "bloom_level": "remember", "marks": 1},
		{"text": "unnumbered", "difficulty": "medium", "marks": 2}
	]}`)

	if p.Shape != ShapeFlat {
		t.Errorf("Shape = %q, want %q", p.Shape, ShapeFlat)
	}
	if got, want := texts(p.Questions), []string{"third", "first", "unnumbered"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order changed: %v", got)
	}
	if got := []int{p.Questions[0].Number, p.Questions[1].Number, p.Questions[2].Number}; !reflect.DeepEqual(got, []int{3, 1, 3}) {
		t.Errorf("numbers = %v", got)
	}
	if p.Questions[0].Topic != "Optics" {
		t.Errorf("topic = %q", p.Questions[0].Topic)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, raw := range []string{`{}`, `{"sections": []}`, `{"questions": null}`, `null`} {
		t.Run(raw, func(t *testing.T) {
			p := mustNormalize(t, raw)
			if p.Shape != ShapeEmpty || len(p.Questions) != 0 {
				t.Errorf("got shape %q with %d questions", p.Shape, len(p.Questions))
			}
			if p.Stats.AverageMarks != 0 {
				t.Errorf("AverageMarks = %v, want 0", p.Stats.AverageMarks)
			}
		})
	}
}

func TestNormalizeInvalid(t *testing.T) {
	if _, err := Normalize([]byte(`[1,2]`)); err == nil {
		t.Error("expected error for non-object payload")
	}
}

func TestStats(t *testing.T) {
	qs := []model.Question{
		{Difficulty: model.DifficultyEasy, BloomLevel: model.BloomRemember, Marks: 2},
		{Difficulty: model.DifficultyEasy, BloomLevel: model.BloomApply, Marks: 3},
		{Difficulty: model.DifficultyHard, BloomLevel: model.BloomApply, Marks: 10},
	}
	st := Stats(qs)

	if st.TotalMarks != 15 || st.TotalQuestions != 3 || st.AverageMarks != 5 {
		t.Errorf("totals = %+v", st)
	}
	wantDiff := map[model.Difficulty]int{"easy": 2, "medium": 0, "hard": 1}
	if !reflect.DeepEqual(st.ByDifficulty, wantDiff) {
		t.Errorf("ByDifficulty = %v", st.ByDifficulty)
	}
	if len(st.ByBloom) != 6 || st.ByBloom[model.BloomApply] != 2 || st.ByBloom[model.BloomCreate] != 0 {
		t.Errorf("ByBloom = %v", st.ByBloom)
	}
}

func TestFilter(t *testing.T) {
	entries := []model.PaperSummary{
		{ID: "p-1", SubjectName: "Physics", AIEngine: "llm"},
		{ID: "p-2", SubjectName: "Chemistry", AIEngine: "HYBRID"},
		{ID: "phys-3", SubjectName: "", AIEngine: "hybrid"},
		{ID: "p-4", SubjectName: "Applied Physics", AIEngine: "rules"},
	}
	ids := func(es []model.PaperSummary) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		query  string
		engine model.Engine
		want   []string
	}{
		{"no filter", "", "", []string{"p-1", "p-2", "phys-3", "p-4"}},
		{"subject substring", "PHYS", "", []string{"p-1", "phys-3", "p-4"}},
		{"engine only", "", model.EngineHybrid, []string{"p-2", "phys-3"}},
		{"both", "phys", model.EngineHybrid, []string{"phys-3"}},
		{"no match", "biology", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(entries, tt.query, tt.engine))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter(%q, %q) = %v, want %v", tt.query, tt.engine, got, tt.want)
			}
		})
	}
}
