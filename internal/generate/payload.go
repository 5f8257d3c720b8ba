package generate

import (
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/paperdash/internal/model"
)

// tenthsPayload is the contract where difficulty is sent in tenths of ten
// with enum-cased keys and engine name.
type tenthsPayload struct {
	SubjectID              int64               `json:"subject_id"`
	UnitTopics             map[string][]string `json:"unit_topics,omitempty"`
	AIEngine               string              `json:"ai_engine"`
	DifficultyDistribution map[string]int      `json:"difficulty_distribution"`
	MarksPerDifficulty     map[string]int      `json:"marks_per_difficulty,omitempty"`
	TotalMarks             int                 `json:"total_marks"`
}

// percentPayload is the contract where difficulty is sent as integer
// percentages with lowercase keys.
type percentPayload struct {
	SubjectID              int64          `json:"subject_id"`
	UnitID                 int64          `json:"unit_id,omitempty"`
	TopicID                int64          `json:"topic_id,omitempty"`
	AIEngine               string         `json:"ai_engine"`
	DifficultyDistribution map[string]int `json:"difficulty_distribution"`
	MarksPerDifficulty     map[string]int `json:"marks_per_difficulty,omitempty"`
	TotalMarks             int            `json:"total_marks"`
}

// Payload renders req in the given wire format.
func Payload(format model.PayloadFormat, req model.GenerationRequest) (any, error) {
	switch format {
	case model.PayloadTenths:
		return tenthsPayload{
			SubjectID:              req.SubjectID,
			UnitTopics:             req.UnitTopics,
			AIEngine:               strings.ToUpper(string(req.Engine)),
			DifficultyDistribution: tenths(req.Distribution),
			MarksPerDifficulty:     marksByKey(req.MarksPerDifficulty, enumKey),
			TotalMarks:             req.TotalMarks,
		}, nil
	case model.PayloadPercent:
		return percentPayload{
			SubjectID: req.SubjectID,
			UnitID:    req.UnitID,
			TopicID:   req.TopicID,
			AIEngine:  strings.ToLower(string(req.Engine)),
			DifficultyDistribution: map[string]int{
				string(model.DifficultyEasy):   req.Distribution.Easy,
				string(model.DifficultyMedium): req.Distribution.Medium,
				string(model.DifficultyHard):   req.Distribution.Hard,
			},
			MarksPerDifficulty: marksByKey(req.MarksPerDifficulty, func(d model.Difficulty) string { return string(d) }),
			TotalMarks:         req.TotalMarks,
		}, nil
	}
	return nil, fmt.Errorf("unknown payload format %q", format)
}

// tenths divides each percentage by ten and rounds to the nearest integer:
// {30,50,20} becomes {Easy:3, Medium:5, Hard:2}.
func tenths(d model.Distribution) map[string]int {
	out := make(map[string]int, 3)
	for _, diff := range model.Difficulties {
		out[enumKey(diff)] = int(math.Round(float64(d.Get(diff)) / 10))
	}
	return out
}

func enumKey(d model.Difficulty) string {
	s := string(d)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func marksByKey(m map[model.Difficulty]int, key func(model.Difficulty) string) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for d, v := range m {
		out[key(d)] = v
	}
	return out
}
