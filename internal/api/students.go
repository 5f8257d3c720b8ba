package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pavelanni/paperdash/internal/model"
)

// UploadResult is the backend's reply to a CSV import.
type UploadResult struct {
	Message  string `json:"message"`
	Imported int    `json:"imported"`
}

// Students returns the raw roster document; see package students for
// the row and summary shapes it may take.
func (c *Client) Students(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/students", &raw); err != nil {
		return nil, fmt.Errorf("get students: %w", err)
	}
	return raw, nil
}

// UploadStudentsCSV posts a results file as multipart field "file".
func (c *Client) UploadStudentsCSV(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("upload students: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("upload students: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload students: %w", err)
	}

	var res UploadResult
	if err := c.do(ctx, http.MethodPost, "/students/upload", &buf, mw.FormDataContentType(), &res); err != nil {
		return nil, fmt.Errorf("upload students: %w", err)
	}
	return &res, nil
}

type studentAnalyticsWire struct {
	StudentID           model.FlexID    `json:"student_id"`
	TotalPapers         int             `json:"total_papers"`
	AverageScore        float64         `json:"average_score"`
	DifficultyBreakdown model.Breakdown `json:"difficulty_breakdown"`
	PerformanceTrend    []struct {
		PaperID model.FlexID `json:"paper_id"`
		Score   float64      `json:"score"`
	} `json:"performance_trend"`
}

// StudentAnalytics asks the backend for one student's aggregate.
func (c *Client) StudentAnalytics(ctx context.Context, studentID string) (*model.StudentAnalytics, error) {
	var w studentAnalyticsWire
	if err := c.getJSON(ctx, "/students/"+url.PathEscape(studentID)+"/analytics", &w); err != nil {
		return nil, fmt.Errorf("get analytics for student %s: %w", studentID, err)
	}
	sa := &model.StudentAnalytics{
		StudentID:           string(w.StudentID),
		TotalPapers:         w.TotalPapers,
		AverageScore:        w.AverageScore,
		DifficultyBreakdown: w.DifficultyBreakdown,
		PerformanceTrend:    make([]model.TrendPoint, 0, len(w.PerformanceTrend)),
		Source:              model.SourceBackend,
	}
	if sa.StudentID == "" {
		sa.StudentID = studentID
	}
	for _, p := range w.PerformanceTrend {
		sa.PerformanceTrend = append(sa.PerformanceTrend, model.TrendPoint{PaperID: string(p.PaperID), Score: p.Score})
	}
	return sa, nil
}
