// Package handler contains the HTTP handlers: server-rendered pages, form
// posts and the JSON API.
//
// Handlers only translate between HTTP and the AuthStateStore of the
// request's browser session; they hold no auth logic of their own.
package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/sakif/auth-demo/internal/model"
)

// PageHandler renders the landing and dashboard pages.
// Templates are parsed once at startup.
type PageHandler struct {
	landing        *template.Template
	dashboard      *template.Template
	sessions       Sessions
	allowedDomains []string
	logger         *slog.Logger
}

// NewPageHandler parses the templates in files: base.html plus one page
// template each for landing.html and dashboard.html, each defining
// "content". allowedDomains is shown as a hint on the signup form.
func NewPageHandler(files fs.FS, sessions Sessions, allowedDomains []string, logger *slog.Logger) (*PageHandler, error) {
	landing, err := template.ParseFS(files, "base.html", "landing.html")
	if err != nil {
		return nil, fmt.Errorf("parsing landing templates: %w", err)
	}
	dashboard, err := template.ParseFS(files, "base.html", "dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parsing dashboard templates: %w", err)
	}

	return &PageHandler{
		landing:        landing,
		dashboard:      dashboard,
		sessions:       sessions,
		allowedDomains: allowedDomains,
		logger:         logger,
	}, nil
}

// LandingPage is the data of landing.html.
type LandingPage struct {
	Title          string
	State          model.AuthState
	Signup         bool
	ConfirmNotice  bool
	AllowedDomains []string
}

// DashboardPage is the data of dashboard.html.
type DashboardPage struct {
	Title string
	State model.AuthState
	model.Dashboard
	Bars []Bar
}

// Bar is a chart point scaled for the CSS bar chart.
type Bar struct {
	model.ChartPoint
	Percent int // revenue as a share of the highest month
}

// HandleLanding serves GET /. A signed-in visitor goes straight to the
// dashboard.
func (h *PageHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	st, ok := storeFor(w, r, h.sessions, h.logger)
	if !ok {
		return
	}

	state := st.State()
	if state.User != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	h.render(w, h.landing, LandingPage{
		Title:          "Welcome Back",
		State:          state,
		Signup:         r.URL.Query().Get("mode") == "signup",
		ConfirmNotice:  r.URL.Query().Get("notice") == "confirm",
		AllowedDomains: h.allowedDomains,
	})
}

// HandleDashboard serves GET /dashboard, sending anonymous visitors to /.
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	st, ok := storeFor(w, r, h.sessions, h.logger)
	if !ok {
		return
	}

	state := st.State()
	if state.User == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := MockDashboard(state.User)
	h.render(w, h.dashboard, DashboardPage{
		Title:     "Dashboard",
		State:     state,
		Dashboard: data,
		Bars:      chartBars(data.Chart),
	})
}

func chartBars(points []model.ChartPoint) []Bar {
	top := 0
	for _, p := range points {
		top = max(top, p.Revenue)
	}

	bars := make([]Bar, len(points))
	for i, p := range points {
		bars[i] = Bar{ChartPoint: p}
		if top > 0 {
			bars[i].Percent = p.Revenue * 100 / top
		}
	}
	return bars
}

func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
