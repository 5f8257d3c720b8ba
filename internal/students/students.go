// Package students manages the uploaded results roster: CSV import,
// roster loading and per-student analytics with a local fallback.
package students

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pavelanni/paperdash/internal/analytics"
	"github.com/pavelanni/paperdash/internal/api"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
)

// MaxUploadSize caps a results file.
const MaxUploadSize = 10 << 20

// ExpectedColumns are the header columns the backend's results import
// reads.
var ExpectedColumns = []string{"student_id", "paper_id", "marks_obtained", "max_marks"}

// Message ids for upload rejections and warnings.
const (
	MsgCSVOnly          = "CSVOnly"
	MsgCSVUnreadable    = "CSVUnreadable"
	MsgCSVMissingColumn = "CSVMissingColumn"
	MsgUploadRepeated   = "UploadRepeated"
)

// ErrNoData means there is nothing to show for a student: the backend
// aggregate failed and the roster has no rows for them.
var ErrNoData = errors.New("no results for student")

// ValidationError rejects an upload before anything is sent.
type ValidationError struct {
	MessageID string
	Detail    string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid upload (%s): %s", e.MessageID, e.Detail)
	}
	return "invalid upload: " + e.MessageID
}

// Backend is the part of the API client the service needs.
type Backend interface {
	Students(ctx context.Context) (json.RawMessage, error)
	UploadStudentsCSV(ctx context.Context, filename string, r io.Reader) (*api.UploadResult, error)
	StudentAnalytics(ctx context.Context, studentID string) (*model.StudentAnalytics, error)
}

// UploadLog remembers the hash of the last upload per file name so a
// repeated upload can be reported.
// *store.Store satisfies it.
type UploadLog interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Service holds the roster loaded for one view.
type Service struct {
	api     Backend
	uploads UploadLog

	mu     sync.Mutex
	roster model.Roster
	loaded bool
}

// New creates a service. uploads may be nil, which disables repeat
// reporting.
func New(b Backend, uploads UploadLog) *Service {
	return &Service{api: b, uploads: uploads}
}

// Reload fetches the roster from the backend.
func (s *Service) Reload(ctx context.Context) (model.Roster, error) {
	raw, err := s.api.Students(ctx)
	if err != nil {
		return model.Roster{}, err
	}
	roster, err := DecodeRoster(raw)
	if err != nil {
		return model.Roster{}, err
	}
	s.mu.Lock()
	s.roster = roster
	s.loaded = true
	s.mu.Unlock()
	slog.Debug("roster loaded", "rows", len(roster.Rows), "summaries", len(roster.Summaries))
	return roster, nil
}

// Roster returns the last loaded roster.
func (s *Service) Roster() model.Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster
}

// CheckName rejects a file whose name does not end in .csv. It is the
// only check that stops an upload before it reaches the backend.
func CheckName(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return &ValidationError{MessageID: MsgCSVOnly, Detail: name}
	}
	return nil
}

// MissingColumns lists the expected header columns that data lacks. An
// unreadable header lacks all of them. The backend owns the CSV schema, so
// the result is only reported, never enforced.
func MissingColumns(data []byte) []string {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return slices.Clone(ExpectedColumns)
	}
	have := make(map[string]bool, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		have[strings.ToLower(strings.TrimSpace(col))] = true
	}
	var missing []string
	for _, col := range ExpectedColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// Upload is the backend's answer to an upload plus what was noticed
// about the file locally.
type Upload struct {
	*api.UploadResult
	// Repeat is set when the same content was uploaded under this name
	// before. It is sent again anyway.
	Repeat bool
	// MissingColumns are expected header columns the file lacks.
	MissingColumns []string
}

// Notes renders the local warnings about an upload in the request's
// language.
func (u *Upload) Notes(ctx context.Context) []string {
	var notes []string
	if u.Repeat {
		notes = append(notes, appI18n.T(ctx, MsgUploadRepeated))
	}
	if len(u.MissingColumns) > 0 {
		notes = append(notes, appI18n.Td(ctx, MsgCSVMissingColumn,
			map[string]any{"Columns": strings.Join(u.MissingColumns, ", ")}))
	}
	return notes
}

// UploadCSV uploads a results file and reloads the roster. Only a name
// without the .csv extension or a file over MaxUploadSize is rejected
// locally; everything else is left to the backend.
func (s *Service) UploadCSV(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxUploadSize {
		return nil, &ValidationError{MessageID: MsgCSVUnreadable, Detail: "file too large"}
	}

	up := &Upload{MissingColumns: MissingColumns(data)}
	if len(up.MissingColumns) > 0 {
		slog.Warn("results file lacks expected columns", "file", name, "missing", up.MissingColumns)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := "upload:" + filepath.Base(name)
	if s.uploads != nil {
		prev, err := s.uploads.GetValue(key)
		if err != nil {
			slog.Warn("failed to check upload log", "file", name, "error", err)
		}
		up.Repeat = prev == hash
	}

	res, err := s.api.UploadStudentsCSV(ctx, filepath.Base(name), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	up.UploadResult = res
	slog.Info("results uploaded", "file", name, "imported", res.Imported, "repeat", up.Repeat)
	if s.uploads != nil {
		if err := s.uploads.SetValue(key, hash); err != nil {
			slog.Warn("failed to record upload", "file", name, "error", err)
		}
	}

	if _, err := s.Reload(ctx); err != nil {
		return up, fmt.Errorf("reload roster: %w", err)
	}
	return up, nil
}

// ViewAnalytics returns the backend aggregate for a student, or a local
// fallback computed from the roster when the backend call fails. A 401 is
// never masked by the fallback. ErrNoData is returned when neither source
// has anything.
func (s *Service) ViewAnalytics(ctx context.Context, studentID string) (*model.StudentAnalytics, error) {
	sa, err := s.api.StudentAnalytics(ctx, studentID)
	if err == nil {
		return sa, nil
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return nil, err
	}
	slog.Warn("backend analytics unavailable, using local fallback", "student_id", studentID, "error", err)

	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		if _, rerr := s.Reload(ctx); rerr != nil {
			slog.Warn("failed to load roster for fallback", "error", rerr)
		}
	}

	roster := s.Roster()
	if analytics.HasStudent(roster.Rows, studentID) {
		local := analytics.StudentFallback(roster.Rows, studentID)
		return &local, nil
	}
	for _, sum := range roster.Summaries {
		if sum.StudentID == studentID {
			return &model.StudentAnalytics{
				StudentID:        studentID,
				TotalPapers:      sum.TotalPapers,
				AverageScore:     sum.AverageScore,
				PerformanceTrend: []model.TrendPoint{},
				Source:           model.SourceLocal,
			}, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", studentID, ErrNoData)
}

// Summaries returns one summary per student: the backend's own when it
// sent the aggregated shape, otherwise derived from rows.
func Summaries(r model.Roster) []model.StudentSummary {
	if len(r.Rows) == 0 {
		return r.Summaries
	}
	return analytics.Summaries(r.Rows)
}
