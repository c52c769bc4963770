package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
)

// LeadHandler handles persisted lead API requests
type LeadHandler struct {
	leads  interfaces.LeadStorage
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leads interfaces.LeadStorage, jobs interfaces.JobStorage, logger arbor.ILogger) *LeadHandler {
	return &LeadHandler{
		leads:  leads,
		jobs:   jobs,
		logger: logger,
	}
}

// ListHandler returns a paginated list of leads
// GET /api/leads?job_id=job_123&limit=50&offset=0
func (h *LeadHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := GetListOptions(r)
	opts.JobID = r.URL.Query().Get("job_id")

	leads, err := h.leads.ListLeads(opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list leads")
		WriteError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []*models.Lead{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"leads":  leads,
		"count":  len(leads),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// StatsHandler returns lead and job totals
// GET /api/leads/stats
func (h *LeadHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	totalLeads, err := h.leads.CountLeads()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count leads")
		WriteError(w, http.StatusInternalServerError, "failed to count leads")
		return
	}

	totalJobs, err := h.jobs.CountJobs()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count jobs")
	}

	byStatus := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusRunning,
		models.JobStatusDone,
		models.JobStatusError,
	} {
		count, err := h.jobs.CountJobsByStatus(status)
		if err != nil {
			continue
		}
		byStatus[string(status)] = count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total_leads":    totalLeads,
		"total_jobs":     totalJobs,
		"jobs_by_status": byStatus,
	})
}
