package model

import (
	"fmt"
	"math"
)

// Distribution is the target percentage split across difficulty levels.
type Distribution struct {
	Easy   int `json:"easy" yaml:"easy"`
	Medium int `json:"medium" yaml:"medium"`
	Hard   int `json:"hard" yaml:"hard"`
}

// DefaultDistribution is the split offered before the user touches anything.
func DefaultDistribution() Distribution {
	return Distribution{Easy: 30, Medium: 50, Hard: 20}
}

// Get returns the percentage for d.
func (dist Distribution) Get(d Difficulty) int {
	switch d {
	case DifficultyEasy:
		return dist.Easy
	case DifficultyMedium:
		return dist.Medium
	case DifficultyHard:
		return dist.Hard
	}
	return 0
}

func (dist *Distribution) put(d Difficulty, v int) {
	switch d {
	case DifficultyEasy:
		dist.Easy = v
	case DifficultyMedium:
		dist.Medium = v
	case DifficultyHard:
		dist.Hard = v
	}
}

// Sum returns easy+medium+hard.
func (dist Distribution) Sum() int {
	return dist.Easy + dist.Medium + dist.Hard
}

// Set assigns v to dimension d and rebalances the other two so the three
// sum to roughly 100, keeping the ratio between the untouched dimensions.
// If both untouched dimensions were zero the remainder is split evenly.
// Rounding may leave the sum off by one or two; that is not corrected.
func (dist *Distribution) Set(d Difficulty, v int) error {
	if d != DifficultyEasy && d != DifficultyMedium && d != DifficultyHard {
		return fmt.Errorf("unknown difficulty %q", d)
	}
	v = max(0, min(100, v))

	var others []Difficulty
	for _, o := range Difficulties {
		if o != d {
			others = append(others, o)
		}
	}

	remaining := float64(100 - v)
	otherTotal := float64(dist.Get(others[0]) + dist.Get(others[1]))

	dist.put(d, v)
	for _, o := range others {
		if otherTotal > 0 {
			dist.put(o, int(math.Round(float64(dist.Get(o))*remaining/otherTotal)))
		} else {
			dist.put(o, int(math.Round(remaining/2)))
		}
	}
	return nil
}

// Validate reports whether every value is within [0,100] and the sum is
// within the accepted rounding drift of 100.
func (dist Distribution) Validate() error {
	for _, d := range Difficulties {
		if v := dist.Get(d); v < 0 || v > 100 {
			return fmt.Errorf("%s percentage %d out of range", d, v)
		}
	}
	if s := dist.Sum(); s < 98 || s > 102 {
		return fmt.Errorf("difficulty percentages sum to %d, want 100", s)
	}
	return nil
}
