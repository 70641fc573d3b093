package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/model"
)

// MockDashboard returns the fixed demo figures shown to a signed-in user.
// Nothing here is computed; the page exists to have something behind the
// login.
func MockDashboard(user *model.User) model.Dashboard {
	return model.Dashboard{
		User: user,
		Metrics: []model.MetricCard{
			{Label: "Total Revenue", Value: "$18,060", Change: "+12% from last month", Tone: "green"},
			{Label: "Active Users", Value: "2,609", Change: "+8% from last week", Tone: "blue"},
			{Label: "Growth Rate", Value: "24.7%", Change: "+3.2% from last month", Tone: "purple"},
			{Label: "This Month", Value: "573", Change: "+19% from last month", Tone: "orange"},
		},
		Chart: []model.ChartPoint{
			{Month: "Jan", Revenue: 4000, Users: 240},
			{Month: "Feb", Revenue: 3000, Users: 139},
			{Month: "Mar", Revenue: 5000, Users: 980},
			{Month: "Apr", Revenue: 2780, Users: 390},
			{Month: "May", Revenue: 1890, Users: 480},
			{Month: "Jun", Revenue: 2390, Users: 380},
		},
		Activity: []model.Activity{
			{ID: 1, Action: "User Registration", Time: "2 minutes ago", Status: "success"},
			{ID: 2, Action: "Payment Processed", Time: "5 minutes ago", Status: "success"},
			{ID: 3, Action: "Profile Updated", Time: "1 hour ago", Status: "info"},
			{ID: 4, Action: "Login Attempt", Time: "2 hours ago", Status: "warning"},
			{ID: 5, Action: "Data Export", Time: "1 day ago", Status: "success"},
		},
	}
}

// DashboardHandler serves the dashboard data as JSON.
type DashboardHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

func NewDashboardHandler(sessions Sessions, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, logger: logger}
}

// HandleDashboard handles GET /api/dashboard. 401 without a signed-in user.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	st, ok := storeFor(w, r, h.sessions, h.logger)
	if !ok {
		return
	}

	user := st.State().User
	if user == nil {
		writeError(w, apperror.Unauthorized("Sign in to view the dashboard"))
		return
	}
	writeJSON(w, http.StatusOK, MockDashboard(user))
}
