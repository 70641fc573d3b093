package model

// MetricCard is one of the headline numbers on the dashboard.
type MetricCard struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Change string `json:"change"`
	Tone   string `json:"tone"` // colour hint for the page: green, blue, purple, orange
}

// ChartPoint is one month of the revenue/users bar chart.
type ChartPoint struct {
	Month   string `json:"month"`
	Revenue int    `json:"revenue"`
	Users   int    `json:"users"`
}

// Activity is a row of the "recent activity" list.
type Activity struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
	Time   string `json:"time"`
	Status string `json:"status"` // success, info, warning
}

// Dashboard is the full payload rendered on the protected page.
// All of it is mock data; see handler.MockDashboard.
type Dashboard struct {
	User     *User        `json:"user"`
	Metrics  []MetricCard `json:"metrics"`
	Chart    []ChartPoint `json:"chart"`
	Activity []Activity   `json:"activity"`
}
