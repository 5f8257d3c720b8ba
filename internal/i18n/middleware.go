package i18n

import (
	"net/http"
	"time"
)

// LangCookie remembers a language chosen with ?lang=.
const LangCookie = "paperdash_lang"

// Middleware puts a localizer into every request context. A ?lang= query
// parameter wins and is remembered in a cookie; then the cookie; then
// lang, where "auto" means negotiating from Accept-Language.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := ""
			if q := r.URL.Query().Get("lang"); q != "" {
				chosen = Match(q)
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    chosen,
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			} else if c, err := r.Cookie(LangCookie); err == nil && c.Value != "" {
				chosen = Match(c.Value)
			} else if lang == "auto" {
				chosen = Match(r.Header.Get("Accept-Language"))
			} else {
				chosen = lang
			}
			ctx := WithLanguage(r.Context(), chosen)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
