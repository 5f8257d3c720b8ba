package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/paperdash/internal/api"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/session"
	"github.com/pavelanni/paperdash/internal/store"
)

const testCSRF = "test-csrf-token"

type testEnv struct {
	router   http.Handler
	browsers *session.Browsers
	store    *store.Store
	backend  *httptest.Server
	// cookie is the session cookie sent with every request; nil means a
	// browser that never signed in.
	cookie *http.Cookie
}

// newTestEnv wires a handler against a fake backend served by mux.
func newTestEnv(t *testing.T, mux *http.ServeMux) *testEnv {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))

	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	browsers := session.NewBrowsers(st)
	client, err := api.New(backend.URL + "/api")
	require.NoError(t, err)

	h, err := New(client, browsers, st, model.DashboardConfig{})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{router: r, browsers: browsers, store: st, backend: backend}
}

// signIn starts a browser session for this env's cookie.
func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	e.signInWith(t, "opaque-token")
}

func (e *testEnv) signInWith(t *testing.T, token string) {
	t.Helper()
	b, err := e.browsers.Start(token, e.backend.URL+"/api")
	require.NoError(t, err)
	e.cookie = &http.Cookie{Name: sessionCookieName, Value: b.ID}
}

// otherBrowser shares the server but starts without a session cookie.
func (e *testEnv) otherBrowser() *testEnv {
	other := *e
	other.cookie = nil
	return &other
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return e.serve(req)
}

func (e *testEnv) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	return e.serve(req)
}

// upload posts one file to the results upload form.
func (e *testEnv) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("csrf_token", testCSRF))
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/students/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	return e.serve(req)
}

// sessionCookie returns the session cookie set by rec, if any.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func academicMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/academic/years", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"year_id":1,"year_name":"2024"}]`))
	})
	mux.HandleFunc("GET /api/academic/semesters/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"semester_id":2,"semester_number":1}]`))
	})
	mux.HandleFunc("GET /api/academic/subjects/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"subject_id":3,"subject_name":"Physics"}]`))
	})
	mux.HandleFunc("GET /api/academic/units/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"unit_id":4,"unit_name":"Mechanics"}]`))
	})
	mux.HandleFunc("GET /api/academic/topics/4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"topic_id":5,"topic_name":"Kinematics"}]`))
	})
	return mux
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, model.DashboardConfig{})
	assert.Error(t, err)
}

func TestUnauthenticatedRedirects(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())

	rec := env.get("/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = env.get("/history", "HX-Request", "true")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
}

func TestLoginPageSetsCSRFCookie(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	rec := env.get("/login")
	require.Equal(t, http.StatusOK, rec.Code)

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName && c.Value != "" {
			found = true
			assert.Contains(t, rec.Body.String(), c.Value)
		}
	}
	assert.True(t, found, "csrf cookie not set")
}

func TestLoginStartsBrowserSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "teacher" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	})
	env := newTestEnv(t, mux)

	rec := env.postForm("/login", url.Values{"username": {"teacher"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")
	assert.Nil(t, sessionCookie(rec))

	rec = env.postForm("/login", url.Values{"username": {"teacher"}, "password": {"secret"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	b, err := env.browsers.Lookup(cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "tok-1", b.Token)

	// The CLI's stored token is a separate thing.
	saved, err := env.store.LoadToken()
	require.NoError(t, err)
	assert.Nil(t, saved)

	env.cookie = cookie
	rec = env.get("/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestPostWithoutCSRFIsForbidden(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a&password=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	env.signIn(t)

	id := env.cookie.Value

	rec := env.postForm("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	b, err := env.browsers.Lookup(id)
	require.NoError(t, err)
	assert.Nil(t, b)

	rec = env.get("/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSignInIsPerBrowser(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	env.signIn(t)

	rec := env.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)

	// A browser without the cookie is still a stranger.
	stranger := env.otherBrowser()
	rec = stranger.get("/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	rec = stranger.get("/login")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = stranger.get("/", "Cookie", sessionCookieName+"=forged")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestLogoutLeavesOtherBrowsersSignedIn(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	env.signIn(t)
	second := env.otherBrowser()
	second.signInWith(t, "second-token")

	rec := env.postForm("/logout", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = second.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEachBrowserSendsItsOwnToken(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/paper/history", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})
	env := newTestEnv(t, mux)
	env.signInWith(t, "token-a")
	second := env.otherBrowser()
	second.signInWith(t, "token-b")

	require.Equal(t, http.StatusOK, env.get("/history").Code)
	require.Equal(t, http.StatusOK, second.get("/history").Code)
	assert.Equal(t, []string{"Bearer token-a", "Bearer token-b"}, seen)
}

func TestGeneratePageReplaysCascade(t *testing.T) {
	env := newTestEnv(t, academicMux())
	env.signIn(t)

	rec := env.get("/generate?year=1&semester=2&subject=3")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Semester 1")
	assert.Contains(t, body, "Physics")
	assert.Contains(t, body, "Mechanics")
	assert.Contains(t, body, `<option value="3" selected>Physics</option>`)
}

func TestGenerateAdjustRebalances(t *testing.T) {
	env := newTestEnv(t, academicMux())
	env.signIn(t)

	// Easy moved from 30 to 50; medium and hard keep their 50:20 ratio.
	rec := env.get("/generate?easy=50&medium=50&hard=20&adjust=easy")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="easy" value="50"`)
	assert.Contains(t, body, `name="medium" value="36"`)
	assert.Contains(t, body, `name="hard" value="14"`)
}

func TestGenerateValidationSkipsBackend(t *testing.T) {
	var calls atomic.Int32
	mux := academicMux()
	mux.HandleFunc("POST /api/paper/generate", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"paper_id":1}`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.postForm("/generate", url.Values{"year": {"1"}, "easy": {"30"}, "medium": {"50"}, "hard": {"20"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please select a subject")
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerateSuccessRedirects(t *testing.T) {
	var payload map[string]any
	mux := academicMux()
	mux.HandleFunc("POST /api/paper/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"paper_id":42}`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.postForm("/generate", url.Values{
		"year": {"1"}, "semester": {"2"}, "subject": {"3"}, "unit": {"4"}, "topic": {"5"},
		"engine": {"hybrid"}, "easy": {"30"}, "medium": {"50"}, "hard": {"20"}, "total_marks": {"80"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/papers/42?generated=1", rec.Header().Get("Location"))

	require.NotNil(t, payload)
	assert.Equal(t, float64(3), payload["subject_id"])
	assert.Equal(t, "HYBRID", payload["ai_engine"])
	assert.Equal(t, float64(80), payload["total_marks"])
	assert.Equal(t, map[string]any{"Easy": float64(3), "Medium": float64(5), "Hard": float64(2)},
		payload["difficulty_distribution"])
	assert.Equal(t, map[string]any{"Mechanics": []any{"Kinematics"}}, payload["unit_topics"])

	prefs, err := env.store.GetPreferences()
	require.NoError(t, err)
	assert.Equal(t, model.EngineHybrid, prefs.Engine)
}

func TestGenerateBackendErrorShowsDetail(t *testing.T) {
	mux := academicMux()
	mux.HandleFunc("POST /api/paper/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Not enough questions in bank"}`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.postForm("/generate", url.Values{
		"year": {"1"}, "semester": {"2"}, "subject": {"3"},
		"easy": {"30"}, "medium": {"50"}, "hard": {"20"},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not enough questions in bank")
}

func TestDownloadRedirectsToBackend(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	env.signIn(t)

	rec := env.get("/papers/7/download")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, env.backend.URL+"/api/paper/download/7", rec.Header().Get("Location"))
}

func TestPaperPageNormalizesSections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/paper/9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paper_id":9,"title":"Midterm","sections":[{"questions":[
			{"question_text":"Define velocity","difficulty":"Easy","bloom_level":"remember","marks":2}]}]}`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.get("/papers/9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Midterm")
	assert.Contains(t, rec.Body.String(), "Define velocity")
}

func TestAnalyticsFallsBackToPaper(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/analytics/paper/9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /api/paper/9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"questions":[{"text":"Q1","difficulty":"hard","marks":5}]}`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.get("/papers/9/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hard")
	assert.Contains(t, rec.Body.String(), "computed from the paper itself")
}

func TestBackendUnauthorizedEndsThatBrowserOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/paper/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	env := newTestEnv(t, mux)
	env.signInWith(t, "revoked")
	id := env.cookie.Value
	second := env.otherBrowser()
	second.signInWith(t, "valid")

	rec := env.get("/history")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?expired=1", rec.Header().Get("Location"))
	b, err := env.browsers.Lookup(id)
	require.NoError(t, err)
	assert.Nil(t, b)

	rec = env.get("/history", "HX-Request", "true")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = second.get("/history")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func uploadMux(uploads *atomic.Int32) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/students", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /api/students/upload", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		_, _ = w.Write([]byte(`{"imported":1}`))
	})
	return mux
}

func TestUploadRejectsNonCSV(t *testing.T) {
	var uploads atomic.Int32
	env := newTestEnv(t, uploadMux(&uploads))
	env.signIn(t)

	rec := env.upload(t, "results.txt", []byte("student_id,paper_id,marks_obtained,max_marks\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Only .csv files")
	assert.Equal(t, int32(0), uploads.Load())
}

func TestUploadSendsRepeatsAndOtherHeaders(t *testing.T) {
	var uploads atomic.Int32
	env := newTestEnv(t, uploadMux(&uploads))
	env.signIn(t)
	content := []byte("student_id,paper_id,marks_obtained,max_marks\nS1,10,40,50\n")

	rec := env.upload(t, "r.csv", content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.upload(t, "r.csv", content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "uploaded before and has been sent again")
	assert.Equal(t, int32(2), uploads.Load())

	rec = env.upload(t, "other.csv", []byte("student,paper,score\nS1,10,80\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "The header has no")
	assert.Equal(t, int32(3), uploads.Load())
}

func TestUploadOverLimitIsRefusedBeforeParsing(t *testing.T) {
	var uploads atomic.Int32
	env := newTestEnv(t, uploadMux(&uploads))
	env.signIn(t)

	big := bytes.Repeat([]byte("S1,10,40,50\n"), maxUploadBody/12+1)
	rec := env.upload(t, "big.csv", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, int32(0), uploads.Load())
}

func TestStudentFallsBackToRoster(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/students/s1/analytics", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /api/students", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"student_id":"s1","paper_id":"p1","marks_obtained":40,"max_marks":50}]`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.get("/students/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "80%")

	rec = env.get("/students/nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No results recorded for this student")
}

func TestExportStudentsWorkbook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/students", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"student_id":"s1","paper_id":"p1","marks_obtained":40,"max_marks":50}]`))
	})
	env := newTestEnv(t, mux)
	env.signIn(t)

	rec := env.get("/students/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}
