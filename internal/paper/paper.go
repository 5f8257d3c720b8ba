// Package paper turns backend paper payloads into a flat question list.
//
// The backend answers GET /paper/{id} in one of two undocumented shapes:
// a top-level "questions" array, or a "sections" array whose elements
// either nest their own "questions" or are themselves questions.
package paper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/paperdash/internal/model"
)

// Shapes a payload can resolve to.
const (
	ShapeSectioned     = "sectioned"      // sections with nested questions
	ShapeSectionedFlat = "sectioned-flat" // each section is a question
	ShapeFlat          = "flat"           // top-level questions
	ShapeEmpty         = "empty"
)

type object = map[string]any

// Normalize decodes a paper payload and resolves it to one ordered question
// sequence plus stats. Resolution looks at sections[0] first, then the
// top-level questions array, and yields an empty paper otherwise.
func Normalize(raw []byte) (*model.PaperDetail, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc object
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	if doc == nil {
		doc = object{}
	}

	p := &model.PaperDetail{
		ID:          str(doc, "id", "paper_id"),
		Title:       str(doc, "title", "paper_title", "name"),
		SubjectName: str(doc, "subject_name", "subject"),
	}
	p.Shape, p.Questions = resolve(doc)
	p.Stats = Stats(p.Questions)
	return p, nil
}

func resolve(doc object) (string, []model.Question) {
	sections := objects(doc["sections"])
	if len(sections) > 0 {
		if _, nested := sections[0]["questions"].([]any); nested {
			var qs []model.Question
			for _, s := range sections {
				for _, q := range objects(s["questions"]) {
					qs = append(qs, question(q, len(qs)+1, false))
				}
			}
			return ShapeSectioned, qs
		}
		qs := make([]model.Question, 0, len(sections))
		for i, s := range sections {
			qs = append(qs, question(s, i+1, true))
		}
		return ShapeSectionedFlat, qs
	}

	if items := objects(doc["questions"]); len(items) > 0 {
		qs := make([]model.Question, 0, len(items))
		for i, q := range items {
			qs = append(qs, question(q, i+1, false))
		}
		return ShapeFlat, qs
	}
	return ShapeEmpty, []model.Question{}
}

// question maps one backend object. withDefaults fills difficulty "medium"
// and bloom "understand" for sections standing in for questions.
func question(o object, pos int, withDefaults bool) model.Question {
	q := model.Question{
		Number:     pos,
		Text:       str(o, "text", "question_text", "question"),
		Difficulty: model.Difficulty(strings.ToLower(str(o, "difficulty", "difficulty_level"))),
		BloomLevel: model.BloomLevel(strings.ToLower(str(o, "bloom", "bloom_level", "bloomLevel", "bloom_taxonomy"))),
		Marks:      num(o, "marks", "max_marks"),
		Topic:      str(o, "topic", "topic_name"),
	}
	if n := num(o, "number", "question_number"); n > 0 {
		q.Number = int(n)
	}
	if withDefaults {
		if q.Difficulty == "" {
			q.Difficulty = model.DifficultyMedium
		}
		if q.BloomLevel == "" {
			q.BloomLevel = model.BloomUnderstand
		}
	}
	return q
}

// Stats summarizes qs. Every difficulty and bloom level is present in the
// maps even when its count is zero.
func Stats(qs []model.Question) model.PaperStats {
	st := model.PaperStats{
		TotalQuestions: len(qs),
		ByDifficulty:   make(map[model.Difficulty]int, len(model.Difficulties)),
		ByBloom:        make(map[model.BloomLevel]int, len(model.BloomLevels)),
	}
	for _, d := range model.Difficulties {
		st.ByDifficulty[d] = 0
	}
	for _, b := range model.BloomLevels {
		st.ByBloom[b] = 0
	}
	for _, q := range qs {
		st.TotalMarks += q.Marks
		if q.Difficulty != "" {
			st.ByDifficulty[q.Difficulty]++
		}
		if q.BloomLevel != "" {
			st.ByBloom[q.BloomLevel]++
		}
	}
	if len(qs) > 0 {
		st.AverageMarks = st.TotalMarks / float64(len(qs))
	}
	return st
}

func objects(v any) []object {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]object, 0, len(arr))
	for _, item := range arr {
		if o, ok := item.(object); ok {
			out = append(out, o)
		}
	}
	return out
}

func str(o object, keys ...string) string {
	for _, k := range keys {
		switch v := o[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func num(o object, keys ...string) float64 {
	for _, k := range keys {
		switch v := o[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
