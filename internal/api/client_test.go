package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/paperdash/internal/model"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
}

func TestBearerTokenAndRequestID(t *testing.T) {
	var gotAuth, gotReqID, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	}, WithTokenSource(staticToken("tok123")))

	_, err := c.Years(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.NotEmpty(t, gotReqID)
	assert.Equal(t, "/api/academic/years", gotPath)
}

func TestNoTokenNoAuthorizationHeader(t *testing.T) {
	var hadAuth bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`[]`))
	}, WithTokenSource(staticToken("")))

	_, err := c.History(context.Background())
	require.NoError(t, err)
	assert.False(t, hadAuth)
}

func TestContextTokenOverridesSource(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}, WithTokenSource(staticToken("cli-token")))

	_, err := c.History(ContextWithToken(context.Background(), "browser-token"))
	require.NoError(t, err)
	_, err = c.History(context.Background())
	require.NoError(t, err)
	// An empty context token means signed out, not "use the source".
	_, err = c.History(ContextWithToken(context.Background(), ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer browser-token", "Bearer cli-token", ""}, got)
}

func TestUnauthorizedRunsHookForAnyCall(t *testing.T) {
	var hookCalls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	}, OnUnauthorized(func() { hookCalls.Add(1) }))

	_, err := c.History(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Not authenticated", Message(err))

	_, err = c.PaperAnalytics(context.Background(), "5")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(2), hookCalls.Load())
}

func TestErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"Subject not found"}`, "Subject not found"},
		{"detail list", `{"detail":[{"msg":"field required"},{"msg":"bad value"}]}`, "field required; bad value"},
		{"message", `{"message":"Generation failed"}`, "Generation failed"},
		{"error", `{"error":"boom"}`, "boom"},
		{"plain text", `Internal Server Error`, ""},
		{"unknown keys", `{"status":"bad"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Generate(context.Background(), map[string]any{})
			require.Error(t, err)
			assert.Equal(t, tt.want, Message(err))
			assert.False(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(base + "/api")
	require.NoError(t, err)
	_, err = c.History(context.Background())
	require.Error(t, err)
	assert.Equal(t, "", Message(err))
}

func TestLoginJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		_, _ = w.Write([]byte(`{"access_token":"jwt-1","token_type":"bearer"}`))
	})

	tok, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok)
}

func TestLoginFallsBackToFormOn422(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Content-Type") == "application/json" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":[{"msg":"field required"}]}`))
			return
		}
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))
		_, _ = w.Write([]byte(`{"access_token":"jwt-form"}`))
	})

	tok, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-form", tok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoginSecondFailurePropagates(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"still wrong"}`))
	})

	_, err := c.Login(context.Background(), "alice", "secret")
	require.Error(t, err)
	assert.Equal(t, "still wrong", Message(err))
	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
}

func TestLoginNoRetryOnOtherErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Login(context.Background(), "alice", "secret")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNormalizeOptions(t *testing.T) {
	tests := []struct {
		name  string
		level model.Level
		body  string
		want  []model.SelectOption
	}{
		{
			"semester number",
			model.LevelSemester,
			`[{"semester_id":1,"semester_number":1}]`,
			[]model.SelectOption{{ID: 1, Name: "Semester 1"}},
		},
		{
			"subject names and string ids",
			model.LevelSubject,
			`[{"subject_id":"7","subject_name":"Physics"},{"subject_id":8}]`,
			[]model.SelectOption{{ID: 7, Name: "Physics"}, {ID: 8, Name: "Subject 8"}},
		},
		{
			"generic id and name",
			model.LevelTopic,
			`[{"id":3,"name":"Kinematics"}]`,
			[]model.SelectOption{{ID: 3, Name: "Kinematics"}},
		},
		{
			"duplicates and missing ids dropped",
			model.LevelUnit,
			`[{"unit_id":1,"unit_name":"Intro"},{"unit_id":1,"unit_name":"Again"},{"unit_name":"No id"}]`,
			[]model.SelectOption{{ID: 1, Name: "Intro"}},
		},
		{
			"year number",
			model.LevelYear,
			`[{"year_id":2,"year_number":3}]`,
			[]model.SelectOption{{ID: 2, Name: "Year 3"}},
		},
		{"null", model.LevelYear, `null`, []model.SelectOption{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeOptions(tt.level, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsPaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()
	_, _ = c.Semesters(ctx, 1)
	_, _ = c.Subjects(ctx, 2)
	_, _ = c.Units(ctx, 3)
	_, _ = c.Topics(ctx, 4)
	assert.Equal(t, []string{
		"/api/academic/semesters/1",
		"/api/academic/subjects/2",
		"/api/academic/units/3",
		"/api/academic/topics/4",
	}, paths)
}

func TestGenerateReturnsPaperID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"paper_id number", `{"paper_id": 42}`, "42"},
		{"id string", `{"id": "abc"}`, "abc"},
		{"paper_id preferred", `{"paper_id": 1, "id": 2}`, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/paper/generate", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			id, err := c.Generate(context.Background(), map[string]any{"subject_id": 1})
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	_, err := c.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestHistoryShapes(t *testing.T) {
	bodies := []string{
		`[{"id":1,"subject_name":"Physics","created_at":"2024-03-01T10:00:00Z","total_marks":100,"ai_engine":"llm"},{"subject_name":"no id"}]`,
		`{"papers":[{"paper_id":"1","subject":"Physics","created_at":"2024-03-01 10:00:00","total_marks":100,"engine":"llm"}]}`,
	}
	for _, body := range bodies {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		got, err := c.History(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "Physics", got[0].SubjectName)
		assert.Equal(t, "llm", got[0].AIEngine)
		require.NotNil(t, got[0].TotalMarks)
		assert.Equal(t, 100.0, *got[0].TotalMarks)
		require.NotNil(t, got[0].CreatedAt)
		assert.Equal(t, 2024, got[0].CreatedAt.Year())
	}
}

func TestDownloadURLIsNotFetched(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	u := c.DownloadURL("12")
	assert.True(t, strings.HasSuffix(u, "/api/paper/download/12"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestUploadStudentsCSV(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/students/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "results.csv", hdr.Filename)
		assert.Equal(t, "student_id,paper_id\n", string(data))
		_, _ = w.Write([]byte(`{"message":"ok","imported":3}`))
	})

	res, err := c.UploadStudentsCSV(context.Background(), "results.csv", strings.NewReader("student_id,paper_id\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
}

func TestStudentAnalyticsFlexibleIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/students/s1/analytics", r.URL.Path)
		_, _ = w.Write([]byte(`{"total_papers":2,"average_score":75,"difficulty_breakdown":{"easy":5,"medium":3,"hard":1},"performance_trend":[{"paper_id":10,"score":70},{"paper_id":"11","score":80}]}`))
	})

	sa, err := c.StudentAnalytics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sa.StudentID)
	assert.Equal(t, model.SourceBackend, sa.Source)
	assert.Equal(t, []model.TrendPoint{{PaperID: "10", Score: 70}, {PaperID: "11", Score: 80}}, sa.PerformanceTrend)
}
