package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler exposes the crawl job registry over HTTP
type JobHandler struct {
	service *jobs.Service
	logger  arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// createJobRequest is the POST /api/jobs body
type createJobRequest struct {
	URL    string                    `json:"url"`
	Config *models.CrawlOptionsPatch `json:"config,omitempty"`
}

// jobSummary is the active-jobs listing row
type jobSummary struct {
	JobID      string            `json:"job_id"`
	URL        string            `json:"url"`
	Status     models.JobStatus  `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	Statistics models.Statistics `json:"statistics"`
}

// CreateJobHandler handles POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := h.service.Create(r.Context(), userID, req.URL, req.Config)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("Job creation rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{"job_id": job.ID})
}

// ListActiveJobsHandler handles GET /api/jobs/active
func (h *JobHandler) ListActiveJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	active, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	summaries := make([]jobSummary, 0, len(active))
	for _, job := range active {
		summaries = append(summaries, jobSummary{
			JobID:      job.ID,
			URL:        job.SeedURL,
			Status:     job.Status,
			CreatedAt:  job.CreatedAt,
			Statistics: job.Stats(),
		})
	}

	WriteJSON(w, http.StatusOK, summaries)
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	job, err := h.service.Get(r.Context(), userID, jobID)
	if err != nil {
		// Cross-user access is indistinguishable from an unknown job
		h.writeJobError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// DownloadJobHandler handles GET /api/jobs/{id}/download
func (h *JobHandler) DownloadJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	markdown, err := h.service.Download(r.Context(), userID, jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+jobID+".md\"")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markdown))
}

// CancelJobHandler handles DELETE /api/jobs/{id}
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), userID, jobID); err != nil {
		h.writeJobError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "cancelled",
		"job_id": jobID,
	})
}

// GetJobResultsHandler handles GET /api/jobs/{id}/results.
// With ?format=text the complete pages are rendered in the fixed
// documentation-page envelope instead of JSON.
func (h *JobHandler) GetJobResultsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	results, err := h.service.Results(r.Context(), userID, jobID)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, result := range results {
			if result.Status != models.PageStatusComplete {
				continue
			}
			hasCode := strings.Contains(result.ContentMarkdown, "```")
			w.Write([]byte(models.SerializePage(
				result.Title, result.URL, result.ContentHash,
				result.WordCount, hasCode, result.ContentMarkdown)))
			w.Write([]byte("\n"))
		}
		return
	}

	WriteJSON(w, http.StatusOK, results)
}

// GetJobStatsHandler handles GET /api/jobs/stats
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to aggregate job stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func (h *JobHandler) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrNoContent):
		WriteError(w, http.StatusNotFound, "Job not found")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
