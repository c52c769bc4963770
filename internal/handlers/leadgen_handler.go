// -----------------------------------------------------------------------
// Lead Generation API - run, status, stream, and job management
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/leadgen"
	"github.com/ternarybob/leadgen/internal/models"
)

// heartbeatInterval paces SSE keep-alive comments on idle streams
const heartbeatInterval = 15 * time.Second

// LeadGenHandler handles lead generation API requests
type LeadGenHandler struct {
	service *leadgen.Service
	logger  arbor.ILogger
}

// NewLeadGenHandler creates a new lead generation handler
func NewLeadGenHandler(service *leadgen.Service, logger arbor.ILogger) *LeadGenHandler {
	return &LeadGenHandler{
		service: service,
		logger:  logger,
	}
}

// RunHandler submits a new lead generation job
// POST /api/agents/leadgen/run
func (h *LeadGenHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.service.Submit(req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

// StatusHandler returns a snapshot of one job
// GET /api/agents/leadgen/status/{job_id}
func (h *LeadGenHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathSegment(r.URL.Path, 4)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.service.Status(jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, models.NewStatusResponse(job))
}

// StreamHandler streams a job's events as Server-Sent Events: the full
// history first, then live events. The stream closes after the terminal
// event is flushed.
// GET /api/agents/leadgen/stream/{job_id}
func (h *LeadGenHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathSegment(r.URL.Path, 4)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	// Subscribe before committing headers so an unknown job still gets
	// a clean JSON 404
	events, err := h.service.Events(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Flush headers immediately to trigger the client's onopen
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				// Terminal event delivered (or job removed)
				return
			}
			if err := h.sendEvent(w, flusher, event); err != nil {
				h.logger.Debug().Str("job_id", jobID).Err(err).Msg("SSE client write failed")
				return
			}
		case <-heartbeat.C:
			// Comment frame keeps idle connections alive
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// sendEvent writes one SSE frame
func (h *LeadGenHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event models.JobEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ListJobsHandler returns a paginated list of jobs
// GET /api/agents/leadgen/jobs?limit=50&offset=0&status=done
func (h *LeadGenHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := GetListOptions(r)
	if status := r.URL.Query().Get("status"); status != "" {
		parsed := models.JobStatus(status)
		if !parsed.IsValid() {
			WriteError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		opts.Status = parsed
	}

	jobs, err := h.service.List(opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	responses := make([]models.StatusResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, models.NewStatusResponse(job))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   responses,
		"count":  len(responses),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// CancelHandler requests cancellation of a running job
// POST /api/agents/leadgen/{job_id}/cancel
func (h *LeadGenHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := PathSegment(r.URL.Path, 3)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if err := h.service.Cancel(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteSuccess(w, "cancellation requested")
}

// DeleteHandler removes a terminal job and its leads
// DELETE /api/agents/leadgen/{job_id}
func (h *LeadGenHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	jobID := PathSegment(r.URL.Path, 3)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if err := h.service.Delete(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteSuccess(w, "job deleted")
}
