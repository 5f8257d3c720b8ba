package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/paperdash/internal/model"
)

// Generate submits a generation payload and returns the new paper id,
// taken from paper_id or, failing that, id.
func (c *Client) Generate(ctx context.Context, payload any) (string, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, "/paper/generate", payload, &raw); err != nil {
		return "", fmt.Errorf("generate paper: %w", err)
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return "", fmt.Errorf("generate paper: %w", err)
	}
	for _, key := range []string{"paper_id", "id"} {
		if id := idString(obj[key]); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate paper: response has no paper id")
}

// History lists generated papers, newest first as the backend sends them.
func (c *Client) History(ctx context.Context) ([]model.PaperSummary, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/paper/history", &raw); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	entries, err := decodeHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return entries, nil
}

// Paper returns the raw paper document; see package paper for its shapes.
func (c *Client) Paper(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/paper/"+url.PathEscape(id), &raw); err != nil {
		return nil, fmt.Errorf("get paper %s: %w", id, err)
	}
	return raw, nil
}

// DownloadURL is the PDF location for a paper. It is handed to the user's
// browser, never fetched by this client.
func (c *Client) DownloadURL(id string) string {
	return c.URL("/paper/download/" + url.PathEscape(id))
}

func decodeHistory(data []byte) ([]model.PaperSummary, error) {
	data = bytes.TrimSpace(data)
	// Some deployments wrap the list: {"papers": [...]}.
	if len(data) > 0 && data[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		data = nil
		for _, key := range []string{"papers", "data", "items"} {
			if v, ok := wrapped[key]; ok {
				data = v
				break
			}
		}
		if data == nil {
			return nil, fmt.Errorf("unexpected history shape")
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	entries := make([]model.PaperSummary, 0, len(items))
	for _, it := range items {
		id := idString(it["id"])
		if id == "" {
			id = idString(it["paper_id"])
		}
		if id == "" {
			continue
		}
		e := model.PaperSummary{
			ID:          id,
			SubjectName: firstString(it, []string{"subject_name", "subject"}),
			AIEngine:    firstString(it, []string{"ai_engine", "engine"}),
		}
		if ts, ok := parseTime(it["created_at"]); ok {
			e.CreatedAt = &ts
		}
		if m, ok := toFloat(it["total_marks"]); ok {
			e.TotalMarks = &m
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return obj, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		return strings.TrimSpace(id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
