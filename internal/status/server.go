package status

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tinysip/internal/callmap"
	"tinysip/internal/location"
)

// Server exposes the read-only dashboard and the /metrics endpoint.
// Adapted from the teacher's internal/web.Server (users + sessions over a
// SQL-backed storage) to registrations + calls over the in-memory location
// table and call map; there is no database to query.
type Server struct {
	calls     *callmap.Map
	locations *location.Table
	dashboard *template.Template
	log       zerolog.Logger
}

// dashboardData is the value passed to the dashboard template.
type dashboardData struct {
	Calls         []callmap.Call
	Registrations []location.Entry
}

// NewServer parses the dashboard template and wires the /metrics handler.
func NewServer(calls *callmap.Map, locations *location.Table, log zerolog.Logger) (*Server, error) {
	tmplPath := filepath.Join("internal", "status", "templates", "dashboard.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	return &Server{calls: calls, locations: locations, dashboard: tmpl, log: log}, nil
}

// Run starts the HTTP status server on addr and blocks until it stops.
func (s *Server) Run(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Calls:         s.calls.Snapshot(),
		Registrations: s.locations.Snapshot(),
	}
	if err := s.dashboard.Execute(w, data); err != nil {
		s.log.Warn().Err(err).Msg("dashboard template execution failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
