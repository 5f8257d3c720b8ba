package model

import (
	"context"
	"fmt"
	"time"
)

// Identity describes the signed-in user as far as the dashboard knows it.
// It is read from the access token claims and is never verified locally.
type Identity struct {
	Subject   string
	ExpiresAt *time.Time
}

type identityCtxKey struct{}

// ContextWithIdentity stores the signed-in identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the signed-in identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the difficulty levels in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// BloomLevel is a cognitive-demand category tagged on a question.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// BloomLevels lists the taxonomy from lowest to highest demand.
var BloomLevels = []BloomLevel{
	BloomRemember, BloomUnderstand, BloomApply,
	BloomAnalyze, BloomEvaluate, BloomCreate,
}

// Level identifies one step of the academic hierarchy.
type Level int

const (
	LevelYear Level = iota
	LevelSemester
	LevelSubject
	LevelUnit
	LevelTopic
)

// Levels lists the hierarchy from root to leaf.
var Levels = []Level{LevelYear, LevelSemester, LevelSubject, LevelUnit, LevelTopic}

func (l Level) String() string {
	switch l {
	case LevelYear:
		return "year"
	case LevelSemester:
		return "semester"
	case LevelSubject:
		return "subject"
	case LevelUnit:
		return "unit"
	case LevelTopic:
		return "topic"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Label is the human prefix used when an option name has to be synthesized.
func (l Level) Label() string {
	switch l {
	case LevelYear:
		return "Year"
	case LevelSemester:
		return "Semester"
	case LevelSubject:
		return "Subject"
	case LevelUnit:
		return "Unit"
	case LevelTopic:
		return "Topic"
	}
	return "Option"
}

// ParseLevel maps a level name (year, semester, ...) to a Level.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// SelectOption is one entry of a hierarchy dropdown.
type SelectOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Selection holds the chosen id per hierarchy level. Zero means unselected.
type Selection struct {
	Year     int64 `json:"year,omitempty"`
	Semester int64 `json:"semester,omitempty"`
	Subject  int64 `json:"subject,omitempty"`
	Unit     int64 `json:"unit,omitempty"`
	Topic    int64 `json:"topic,omitempty"`
}

// Get returns the selected id at level l.
func (s Selection) Get(l Level) int64 {
	switch l {
	case LevelYear:
		return s.Year
	case LevelSemester:
		return s.Semester
	case LevelSubject:
		return s.Subject
	case LevelUnit:
		return s.Unit
	case LevelTopic:
		return s.Topic
	}
	return 0
}

// With returns a copy of s with level l set to id.
func (s Selection) With(l Level, id int64) Selection {
	switch l {
	case LevelYear:
		s.Year = id
	case LevelSemester:
		s.Semester = id
	case LevelSubject:
		s.Subject = id
	case LevelUnit:
		s.Unit = id
	case LevelTopic:
		s.Topic = id
	}
	return s
}

// PaperSummary is one row of the paper history list.
type PaperSummary struct {
	ID          string     `json:"id" yaml:"id"`
	SubjectName string     `json:"subject_name,omitempty" yaml:"subject_name,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	TotalMarks  *float64   `json:"total_marks,omitempty" yaml:"total_marks,omitempty"`
	AIEngine    string     `json:"ai_engine,omitempty" yaml:"ai_engine,omitempty"`
}

// Question is a single normalized question of a paper.
type Question struct {
	Number     int        `json:"number" yaml:"number"`
	Text       string     `json:"text" yaml:"text"`
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`
	BloomLevel BloomLevel `json:"bloom_level" yaml:"bloom_level"`
	Marks      float64    `json:"marks" yaml:"marks"`
	Topic      string     `json:"topic,omitempty" yaml:"topic,omitempty"`
}

// PaperStats summarizes a flat question sequence.
type PaperStats struct {
	TotalMarks     float64            `json:"total_marks" yaml:"total_marks"`
	TotalQuestions int                `json:"total_questions" yaml:"total_questions"`
	AverageMarks   float64            `json:"average_marks" yaml:"average_marks"`
	ByDifficulty   map[Difficulty]int `json:"by_difficulty" yaml:"by_difficulty"`
	ByBloom        map[BloomLevel]int `json:"by_bloom" yaml:"by_bloom"`
}

// PaperDetail is a paper after shape normalization.
type PaperDetail struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title,omitempty" yaml:"title,omitempty"`
	SubjectName string     `json:"subject_name,omitempty" yaml:"subject_name,omitempty"`
	Shape       string     `json:"shape" yaml:"shape"`
	Questions   []Question `json:"questions" yaml:"questions"`
	Stats       PaperStats `json:"stats" yaml:"stats"`
}

// DashboardConfig holds runtime dashboard parameters set via CLI flags.
type DashboardConfig struct {
	BasePath         string        // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies    bool          // Set Secure flag on cookies (disable for local dev)
	PayloadFormat    PayloadFormat // Generation payload contract (tenths, percent)
	RequireUnitTopic bool          // Unit and topic are mandatory for generation
	DefaultEngine    Engine
	TotalMarks       int
}
