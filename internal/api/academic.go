package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/paperdash/internal/model"
)

// optionFields lists, per level, where the backend keeps an option's id,
// its display name and its ordinal number. Keys are tried in order.
var optionFields = map[model.Level]struct {
	id, name, number []string
}{
	model.LevelYear:     {[]string{"year_id", "id"}, []string{"year_name", "name"}, []string{"year_number", "year"}},
	model.LevelSemester: {[]string{"semester_id", "id"}, []string{"semester_name", "name"}, []string{"semester_number", "semester"}},
	model.LevelSubject:  {[]string{"subject_id", "id"}, []string{"subject_name", "name"}, nil},
	model.LevelUnit:     {[]string{"unit_id", "id"}, []string{"unit_name", "name"}, []string{"unit_number"}},
	model.LevelTopic:    {[]string{"topic_id", "id"}, []string{"topic_name", "name"}, nil},
}

// Years lists academic years.
func (c *Client) Years(ctx context.Context) ([]model.SelectOption, error) {
	return c.Options(ctx, model.LevelYear, 0)
}

// Semesters lists semesters of a year.
func (c *Client) Semesters(ctx context.Context, yearID int64) ([]model.SelectOption, error) {
	return c.Options(ctx, model.LevelSemester, yearID)
}

// Subjects lists subjects of a semester.
func (c *Client) Subjects(ctx context.Context, semesterID int64) ([]model.SelectOption, error) {
	return c.Options(ctx, model.LevelSubject, semesterID)
}

// Units lists units of a subject.
func (c *Client) Units(ctx context.Context, subjectID int64) ([]model.SelectOption, error) {
	return c.Options(ctx, model.LevelUnit, subjectID)
}

// Topics lists topics of a unit.
func (c *Client) Topics(ctx context.Context, unitID int64) ([]model.SelectOption, error) {
	return c.Options(ctx, model.LevelTopic, unitID)
}

// Options fetches the options of level under parentID (ignored for years)
// and normalizes them.
func (c *Client) Options(ctx context.Context, level model.Level, parentID int64) ([]model.SelectOption, error) {
	var path string
	switch level {
	case model.LevelYear:
		path = "/academic/years"
	case model.LevelSemester:
		path = fmt.Sprintf("/academic/semesters/%d", parentID)
	case model.LevelSubject:
		path = fmt.Sprintf("/academic/subjects/%d", parentID)
	case model.LevelUnit:
		path = fmt.Sprintf("/academic/units/%d", parentID)
	case model.LevelTopic:
		path = fmt.Sprintf("/academic/topics/%d", parentID)
	default:
		return nil, fmt.Errorf("unknown level %v", level)
	}

	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("get %ss: %w", level, err)
	}
	opts, err := NormalizeOptions(level, raw)
	if err != nil {
		return nil, fmt.Errorf("get %ss: %w", level, err)
	}
	return opts, nil
}

// NormalizeOptions turns a backend array of option-like objects into
// SelectOptions. Entries without a usable id are dropped, the first entry
// wins on duplicate ids, and a missing name is synthesized from the
// level's ordinal number or the id ("Semester 1").
func NormalizeOptions(level model.Level, data []byte) ([]model.SelectOption, error) {
	fields, ok := optionFields[level]
	if !ok {
		return nil, fmt.Errorf("unknown level %v", level)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s options: %w", level, err)
	}

	seen := make(map[int64]bool, len(items))
	opts := make([]model.SelectOption, 0, len(items))
	for _, item := range items {
		id, ok := firstInt(item, fields.id)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		name := firstString(item, fields.name)
		if name == "" {
			if n, ok := firstInt(item, fields.number); ok {
				name = fmt.Sprintf("%s %d", level.Label(), n)
			} else {
				name = fmt.Sprintf("%s %d", level.Label(), id)
			}
		}
		opts = append(opts, model.SelectOption{ID: id, Name: name})
	}
	return opts, nil
}

func firstInt(item map[string]any, keys []string) (int64, bool) {
	for _, k := range keys {
		if v, ok := toInt64(item[k]); ok {
			return v, true
		}
	}
	return 0, false
}

func firstString(item map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
