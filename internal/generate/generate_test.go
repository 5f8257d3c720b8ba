package generate

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/model"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []any
	id       string
	err      error
	delay    time.Duration
}

func (f *fakeSubmitter) Generate(_ context.Context, payload any) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.id, f.err
}

func (f *fakeSubmitter) DownloadURL(id string) string {
	return "http://backend/api/paper/download/" + id
}

func baseState() State {
	return State{
		Selection:    model.Selection{Year: 1, Semester: 2, Subject: 7, Unit: 3, Topic: 9},
		UnitName:     "Kinematics",
		TopicName:    "Projectiles",
		Engine:       model.EngineHybrid,
		Distribution: model.DefaultDistribution(),
		TotalMarks:   50,
	}
}

func encode(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		mutate func(*State)
		wantID string
	}{
		{"no subject", false, func(s *State) { s.Selection = model.Selection{Year: 1, Semester: 2} }, MsgSubjectRequired},
		{"strict without topic", true, func(s *State) { s.Selection.Topic = 0 }, MsgUnitTopicRequired},
		{"strict without unit", true, func(s *State) { s.Selection.Unit, s.Selection.Topic = 0, 0 }, MsgUnitTopicRequired},
		{"bad distribution", false, func(s *State) { s.Distribution = model.Distribution{Easy: 90, Medium: 90} }, MsgDistributionSum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{id: "p1"}
			g := New(sub, Config{RequireUnitTopic: tt.strict})
			st := baseState()
			tt.mutate(&st)

			_, err := g.Generate(context.Background(), st)
			require.Error(t, err)
			id, ok := IsValidation(err)
			assert.True(t, ok)
			assert.Equal(t, tt.wantID, id)
			assert.Empty(t, sub.payloads, "nothing may be sent on validation failure")
		})
	}
}

func TestLenientModeAllowsSubjectOnly(t *testing.T) {
	sub := &fakeSubmitter{id: "p1"}
	g := New(sub, Config{})
	st := baseState()
	st.Selection.Unit, st.Selection.Topic = 0, 0

	res, err := g.Generate(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "p1", res.PaperID)
	got := encode(t, sub.payloads[0])
	assert.NotContains(t, got, "unit_topics")
}

// {30,50,20} is sent as {Easy:3, Medium:5, Hard:2} in the tenths contract.
func TestTenthsPayload(t *testing.T) {
	sub := &fakeSubmitter{id: "42"}
	g := New(sub, Config{Format: model.PayloadTenths})
	st := baseState()
	st.MarksPerDifficulty = map[model.Difficulty]int{model.DifficultyEasy: 1, model.DifficultyHard: 5}

	_, err := g.Generate(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, sub.payloads, 1)

	got := encode(t, sub.payloads[0])
	assert.Equal(t, map[string]any{"Easy": 3.0, "Medium": 5.0, "Hard": 2.0}, got["difficulty_distribution"])
	assert.Equal(t, "HYBRID", got["ai_engine"])
	assert.Equal(t, 7.0, got["subject_id"])
	assert.Equal(t, 50.0, got["total_marks"])
	assert.Equal(t, map[string]any{"Kinematics": []any{"Projectiles"}}, got["unit_topics"])
	assert.Equal(t, map[string]any{"Easy": 1.0, "Hard": 5.0}, got["marks_per_difficulty"])
	assert.NotContains(t, got, "unit_id")
}

func TestPercentPayload(t *testing.T) {
	sub := &fakeSubmitter{id: "42"}
	g := New(sub, Config{Format: model.PayloadPercent})

	_, err := g.Generate(context.Background(), baseState())
	require.NoError(t, err)

	got := encode(t, sub.payloads[0])
	assert.Equal(t, map[string]any{"easy": 30.0, "medium": 50.0, "hard": 20.0}, got["difficulty_distribution"])
	assert.Equal(t, "hybrid", got["ai_engine"])
	assert.Equal(t, 3.0, got["unit_id"])
	assert.Equal(t, 9.0, got["topic_id"])
	assert.NotContains(t, got, "marks_per_difficulty")
}

func TestTenthsRounding(t *testing.T) {
	tests := []struct {
		in   model.Distribution
		want map[string]int
	}{
		{model.Distribution{Easy: 30, Medium: 50, Hard: 20}, map[string]int{"Easy": 3, "Medium": 5, "Hard": 2}},
		{model.Distribution{Easy: 35, Medium: 44, Hard: 21}, map[string]int{"Easy": 4, "Medium": 4, "Hard": 2}},
		{model.Distribution{Easy: 0, Medium: 100, Hard: 0}, map[string]int{"Easy": 0, "Medium": 10, "Hard": 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tenths(tt.in), "distribution %+v", tt.in)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := Payload("binary", model.GenerationRequest{})
	assert.Error(t, err)
}

func TestResultPaths(t *testing.T) {
	g := New(&fakeSubmitter{id: "abc"}, Config{})
	res, err := g.Generate(context.Background(), baseState())
	require.NoError(t, err)
	assert.Equal(t, &Result{
		PaperID:       "abc",
		DetailPath:    "/papers/abc",
		AnalyticsPath: "/papers/abc/analytics",
		DownloadURL:   "http://backend/api/paper/download/abc",
	}, res)
}

func TestProgressCappedThenSnaps(t *testing.T) {
	sub := &fakeSubmitter{id: "p", delay: 60 * time.Millisecond}
	var mu sync.Mutex
	var seen []int
	g := New(sub, Config{TickInterval: time.Millisecond},
		WithRand(rand.New(rand.NewPCG(3, 4))),
		WithProgress(func(p int) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		}))

	_, err := g.Generate(context.Background(), baseState())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	prev := 0
	for _, p := range seen[:len(seen)-1] {
		assert.LessOrEqual(t, p, 90)
		assert.GreaterOrEqual(t, p, prev, "progress must not go backwards")
		prev = p
	}
}

func TestFailureNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Subject has no questions"}`))
	}))
	defer srv.Close()

	c, err := api.New(srv.URL + "/api")
	require.NoError(t, err)
	var last int
	g := New(c, Config{}, WithProgress(func(p int) { last = p }))

	_, err = g.Generate(context.Background(), baseState())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Subject has no questions", FailureMessage(err))
	assert.Equal(t, 0, last)
	_, isValidation := IsValidation(err)
	assert.False(t, isValidation)
}

func TestFailureWithoutMessage(t *testing.T) {
	g := New(&fakeSubmitter{err: errors.New("connection refused")}, Config{})
	_, err := g.Generate(context.Background(), baseState())
	require.Error(t, err)
	assert.Empty(t, FailureMessage(err))
}
