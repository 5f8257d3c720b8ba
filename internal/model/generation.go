package model

import (
	"fmt"
	"strings"
)

// Engine selects the backend generation strategy.
type Engine string

const (
	EngineLLM    Engine = "llm"
	EngineHybrid Engine = "hybrid"
	EngineRules  Engine = "rules"
)

// Engines lists the selectable engines in display order.
var Engines = []Engine{EngineLLM, EngineHybrid, EngineRules}

// ParseEngine accepts an engine name in any case.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Engines {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// PayloadFormat picks which of the two known generation contracts is sent.
type PayloadFormat string

const (
	// PayloadTenths sends difficulty as tenths-of-ten with enum-cased keys.
	PayloadTenths PayloadFormat = "tenths"
	// PayloadPercent sends difficulty as integer percentages with lowercase keys.
	PayloadPercent PayloadFormat = "percent"
)

// ParsePayloadFormat validates a payload format name.
func ParsePayloadFormat(s string) (PayloadFormat, error) {
	switch f := PayloadFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case PayloadTenths, PayloadPercent:
		return f, nil
	}
	return "", fmt.Errorf("unknown payload format %q (want tenths or percent)", s)
}

// GenerationRequest is everything needed to ask the backend for a paper.
// It is built once per submit and never mutated afterwards.
type GenerationRequest struct {
	SubjectID          int64
	UnitID             int64
	TopicID            int64
	UnitTopics         map[string][]string
	Engine             Engine
	Distribution       Distribution
	MarksPerDifficulty map[Difficulty]int
	TotalMarks         int
}
