// Package views renders the dashboard pages as templ components.
package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
)

// Notice is a message shown above page content.
type Notice struct {
	Kind string // info, error, success
	Text string
}

func t(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func tp(ctx context.Context, id string, n int) string { return appI18n.Tp(ctx, id, n) }

func td(ctx context.Context, id string, data map[string]any) string {
	return appI18n.Td(ctx, id, data)
}

// link resolves an app path against the base path and sanitizes it.
func link(ctx context.Context, path string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + path)
}

func csrfToken(ctx context.Context) string { return model.CSRFTokenFromContext(ctx) }

func signedIn(ctx context.Context) *model.Identity { return model.IdentityFromContext(ctx) }

func formatFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}

// barStyle is the inline style of one chart bar; percent is clamped to 0..100.
func barStyle(percent float64, color string) templ.SafeCSS {
	percent = min(max(percent, 0), 100)
	return templ.SafeCSS(fmt.Sprintf("width:%.1f%%;background:%s", percent, color))
}

func labelOr(ctx context.Context, msgID, fallback string) string {
	if msgID == "" {
		return fallback
	}
	return appI18n.T(ctx, msgID)
}

func fleetSummary(ctx context.Context, f model.FleetStats) string {
	return td(ctx, "FleetSummary", map[string]any{
		"Students": f.Students,
		"Papers":   f.Papers,
		"Average":  formatFloat(f.AverageScore),
	})
}

// hasStatus reports whether any roster row carries a status column.
func hasStatus(rows []model.StudentSummary) bool {
	for _, s := range rows {
		if s.Status != "" {
			return true
		}
	}
	return false
}
