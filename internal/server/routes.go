package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Lead generation agent
	mux.HandleFunc("/api/agents/leadgen/run", s.app.LeadGenHandler.RunHandler)
	mux.HandleFunc("/api/agents/leadgen/status/", s.app.LeadGenHandler.StatusHandler)
	mux.HandleFunc("/api/agents/leadgen/stream/", s.app.LeadGenHandler.StreamHandler)
	mux.HandleFunc("/api/agents/leadgen/jobs", s.app.LeadGenHandler.ListJobsHandler)
	mux.HandleFunc("/api/agents/leadgen/", s.handleLeadGenRoutes) // /{id}/cancel, DELETE /{id}

	// API routes - Leads
	mux.HandleFunc("/api/leads/stats", s.app.LeadHandler.StatsHandler)
	mux.HandleFunc("/api/leads", s.app.LeadHandler.ListHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleLeadGenRoutes routes per-job requests to the appropriate handler
func (s *Server) handleLeadGenRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/agents/leadgen/{id}/cancel
	if r.Method == "POST" && strings.HasSuffix(path, "/cancel") {
		s.app.LeadGenHandler.CancelHandler(w, r)
		return
	}

	// DELETE /api/agents/leadgen/{id}
	if r.Method == "DELETE" {
		s.app.LeadGenHandler.DeleteHandler(w, r)
		return
	}

	s.app.APIHandler.NotFoundHandler(w, r)
}
