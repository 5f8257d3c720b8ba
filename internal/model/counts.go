package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CountEntry is one category of a Counts map.
type CountEntry struct {
	Name  string
	Value float64
}

// Counts is a {category -> count} mapping that remembers the order in
// which categories appeared in the JSON document.
type Counts []CountEntry

// Get returns the value for name and whether it exists.
func (c Counts) Get(name string) (float64, bool) {
	for _, e := range c {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Set updates name in place or appends it.
func (c *Counts) Set(name string, v float64) {
	for i := range *c {
		if (*c)[i].Name == name {
			(*c)[i].Value = v
			return
		}
	}
	*c = append(*c, CountEntry{Name: name, Value: v})
}

// UnmarshalJSON decodes an object while keeping key order. Null decodes to
// an empty Counts. Values must be numbers or numeric strings.
func (c *Counts) UnmarshalJSON(data []byte) error {
	*c = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("counts: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("counts: value for %q: %w", key, err)
		}
		v, err := parseCount(raw)
		if err != nil {
			return fmt.Errorf("counts: value for %q: %w", key, err)
		}
		c.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON writes the entries as an object in stored order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(e.Value, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseCount(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	return strconv.ParseFloat(string(raw), 64)
}

// PaperAnalytics is the analytics payload for one paper.
type PaperAnalytics struct {
	DifficultyDistribution Counts `json:"difficulty_distribution"`
	BloomTaxonomy          Counts `json:"bloom_taxonomy"`
	TopicCoverage          Counts `json:"topic_coverage"`
	MarksAllocation        Counts `json:"marks_allocation"`
}

// ChartPoint is one bar/slice of a chart.
type ChartPoint struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// RadialPoint is one ring of a radial chart.
type RadialPoint struct {
	Name    string  `json:"name" yaml:"name"`
	Value   float64 `json:"value" yaml:"value"`
	Percent float64 `json:"percent" yaml:"percent"`
	Color   string  `json:"color" yaml:"color"`
}
