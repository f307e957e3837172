package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event mirror
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs (crawl job management)
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetJobStatsHandler)
	mux.HandleFunc("/api/jobs/active", s.app.JobHandler.ListActiveJobsHandler)
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /api/jobs/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes the /api/jobs collection endpoint
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.CreateJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListActiveJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and its subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	jobID, subpath, _ := strings.Cut(path, "/")

	switch {
	case subpath == "stream" && r.Method == http.MethodGet:
		s.app.SSEHandler.StreamJobHandler(w, r, jobID)
	case subpath == "download" && r.Method == http.MethodGet:
		s.app.JobHandler.DownloadJobHandler(w, r, jobID)
	case subpath == "results" && r.Method == http.MethodGet:
		s.app.JobHandler.GetJobResultsHandler(w, r, jobID)
	case subpath == "" && r.Method == http.MethodGet:
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case subpath == "" && r.Method == http.MethodDelete:
		s.app.JobHandler.CancelJobHandler(w, r, jobID)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
