package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/paperdash/internal/analytics"
	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/handler/views"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/students"
)

func (h *Handler) studentService() *students.Service {
	return students.New(h.api, h.store)
}

func (h *Handler) renderStudents(w http.ResponseWriter, r *http.Request, status int, svc *students.Service, notice *views.Notice) {
	roster, err := svc.Reload(r.Context())
	if err != nil {
		n, done := h.backendFailed(w, r, err, "students")
		if done {
			return
		}
		if notice == nil {
			notice = n
		}
	}
	render(w, r, status, views.StudentsPage(views.StudentsData{
		Summaries: students.Summaries(roster),
		Fleet:     analytics.Fleet(roster.Rows),
		Notice:    notice,
	}))
}

func (h *Handler) handleStudents(w http.ResponseWriter, r *http.Request) {
	h.renderStudents(w, r, http.StatusOK, h.studentService(), nil)
}

func (h *Handler) handleUploadStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc := h.studentService()

	// csrfMiddleware has already parsed the capped body.
	if err := r.ParseMultipartForm(students.MaxUploadSize); err != nil {
		h.renderStudents(w, r, http.StatusBadRequest, svc,
			&views.Notice{Kind: "error", Text: appI18n.T(ctx, students.MsgCSVUnreadable)})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderStudents(w, r, http.StatusBadRequest, svc,
			&views.Notice{Kind: "error", Text: appI18n.T(ctx, students.MsgCSVOnly)})
		return
	}
	defer file.Close()

	res, err := svc.UploadCSV(ctx, header.Filename, file)
	var verr *students.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Info("upload rejected", "file", header.Filename, "reason", verr.MessageID)
		h.renderStudents(w, r, http.StatusUnprocessableEntity, svc,
			&views.Notice{Kind: "error", Text: appI18n.T(ctx, verr.MessageID)})
		return
	case errors.Is(err, api.ErrUnauthorized):
		h.sessionExpired(w, r)
		return
	case err != nil && res == nil:
		slog.Error("upload failed", "file", header.Filename, "error", err)
		h.renderStudents(w, r, http.StatusBadGateway, svc, errorNotice(ctx, err, "LoadFailed"))
		return
	}

	text := appI18n.Tp(ctx, "ResultsImported", res.Imported)
	if res.Message != "" && res.Imported == 0 {
		text = res.Message
	}
	kind := "success"
	if notes := res.Notes(ctx); len(notes) > 0 {
		kind = "info"
		text += " " + strings.Join(notes, " ")
	}
	h.renderStudents(w, r, http.StatusOK, svc, &views.Notice{Kind: kind, Text: text})
}

// handleExportStudents streams the roster as an xlsx workbook.
func (h *Handler) handleExportStudents(w http.ResponseWriter, r *http.Request) {
	roster, err := h.studentService().Reload(r.Context())
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			h.sessionExpired(w, r)
			return
		}
		slog.Error("failed to load roster for export", "error", err)
		http.Error(w, "failed to load students", http.StatusBadGateway)
		return
	}

	filename := "students-" + time.Now().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := students.WriteXLSX(w, roster); err != nil {
		slog.Error("failed to write workbook", "error", err)
	}
}

func (h *Handler) handleStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "studentID")
	a, err := h.studentService().ViewAnalytics(r.Context(), id)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		h.sessionExpired(w, r)
		return
	case errors.Is(err, students.ErrNoData):
		render(w, r, http.StatusOK, views.StudentPage(id, nil, nil))
		return
	case err != nil:
		slog.Error("student analytics failed", "student_id", id, "error", err)
		render(w, r, http.StatusBadGateway, views.StudentPage(id, nil, errorNotice(r.Context(), err, "LoadFailed")))
		return
	}
	render(w, r, http.StatusOK, views.StudentPage(id, a, nil))
}
