package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/handler/views"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/session"
	"github.com/pavelanni/paperdash/internal/students"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

// maxUploadBody caps a multipart request: one results file plus form
// overhead.
const maxUploadBody = students.MaxUploadSize + 1<<20

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware issues a fresh token on every safe request and checks the
// double-submitted form value on everything else. Multipart bodies are
// capped before the form is parsed for the token.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if isMultipart(r) {
				r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
				if err := r.ParseMultipartForm(students.MaxUploadSize); err != nil {
					var tooBig *http.MaxBytesError
					if errors.As(err, &tooBig) {
						slog.Warn("request body too large", "path", r.URL.Path, "limit", tooBig.Limit)
						http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
						return
					}
					slog.Warn("unreadable multipart body", "path", r.URL.Path, "error", err)
				}
			}
			formToken := r.Header.Get("X-CSRF-Token")
			if formToken == "" {
				formToken = r.FormValue("csrf_token")
			}
			if formToken == "" {
				slog.Warn("CSRF form token missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// requireAuth lets the request through only when its session cookie names
// a live browser session. The browser's own backend token rides on the
// request context to every API call.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := h.browser(r)
		if b == nil {
			h.redirectToLogin(w, r)
			return
		}
		id := b.Identity
		if id == nil {
			id = &model.Identity{}
		}
		ctx := model.ContextWithIdentity(r.Context(), id)
		ctx = api.ContextWithToken(ctx, b.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// browser returns the session named by the request's cookie, or nil.
func (h *Handler) browser(r *http.Request) *session.Browser {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	b, err := h.browsers.Lookup(cookie.Value)
	if err != nil {
		slog.Error("failed to look up browser session", "error", err)
		return nil
	}
	return b
}

// endBrowser signs out the requesting browser only.
func (h *Handler) endBrowser(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.browsers.End(cookie.Value); err != nil {
			slog.Error("failed to end browser session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	h.sendToLogin(w, r, h.path("/login"))
}

// sessionExpired is used when the backend answered 401 to this browser's
// token.
func (h *Handler) sessionExpired(w http.ResponseWriter, r *http.Request) {
	slog.Warn("backend rejected the browser's token, signing it out", "path", r.URL.Path)
	h.endBrowser(w, r)
	h.sendToLogin(w, r, h.path("/login")+"?expired=1")
}

func (h *Handler) sendToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.browser(r) != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	msg := ""
	if r.URL.Query().Get("expired") != "" {
		msg = appI18n.T(r.Context(), "SessionExpired")
	}
	render(w, r, http.StatusOK, views.LoginPage(msg))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		h.renderLoginError(w, r, nil)
		return
	}

	token, err := h.api.Login(r.Context(), username, password)
	if err != nil {
		slog.Warn("login rejected", "username", username, "error", err)
		h.renderLoginError(w, r, err)
		return
	}
	if err := h.browsers.Cleanup(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}
	b, err := h.browsers.Start(token, h.api.BaseURL())
	if errors.Is(err, session.ErrTokenExpired) {
		slog.Warn("backend issued an expired token", "username", username)
		h.renderLoginError(w, r, nil)
		return
	}
	if err != nil {
		slog.Error("failed to store session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    b.ID,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("signed in", "username", username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.endBrowser(w, r)
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

// renderLoginError shows the backend's own reason when it gave one.
func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request, err error) {
	msg := appI18n.T(r.Context(), "LoginError")
	if err != nil && !errors.Is(err, api.ErrUnauthorized) {
		if m := api.Message(err); m != "" {
			msg = m
		}
	}
	render(w, r, http.StatusUnauthorized, views.LoginPage(msg))
}
