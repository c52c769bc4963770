// -----------------------------------------------------------------------
// Background Worker - Plan, fetch, extract, dedupe, persist, summarize
// -----------------------------------------------------------------------

package leadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
)

// newEvent builds the next event for a job. Callers must hold the
// job's entry lock (i.e. run inside Store.Mutate).
func newEvent(job *models.Job, eventType string, data map[string]interface{}) models.JobEvent {
	return models.JobEvent{
		Sequence:  job.NextSequence(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// runJob executes the pipeline for one job. Every exit path leaves the
// job in a terminal state: panics are recovered, stage timeouts and
// cancellation convert to error, and done is only set together with a
// complete result.
func (s *Service) runJob(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failJob(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()

	if err := s.store.Mutate(jobID, func(job *models.Job) {
		job.MarkStarted()
		job.Events = append(job.Events, newEvent(job, models.JobEventStarted, nil))
	}); err != nil {
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to start job")
		return
	}

	job, ok := s.store.Get(jobID)
	if !ok {
		return
	}

	stageTimeout := s.config.LeadGen.StageTimeoutDuration()

	// Stage 1: plan
	s.appendEvent(jobID, models.JobEventPlanning, map[string]interface{}{"query": job.Query})
	plan, err := s.runPlanStage(ctx, stageTimeout, job)
	if err != nil {
		s.failJob(jobID, s.stageError(ctx, "plan", err))
		return
	}

	// Stage 2: fetch listings from sources
	s.appendEvent(jobID, models.JobEventFetching, map[string]interface{}{
		"search_terms": plan.SearchTerms,
		"sources":      plan.Sources,
	})
	results, err := s.runFetchStage(ctx, stageTimeout, jobID, plan, job.Filters)
	if err != nil {
		s.failJob(jobID, s.stageError(ctx, "fetch", err))
		return
	}

	var listings []models.Listing
	var succeeded []string
	for _, res := range results {
		if res.Err == nil {
			listings = append(listings, res.Listings...)
			succeeded = append(succeeded, res.SourceName)
		}
	}

	// Stage 3: extract candidates
	candidates := ExtractCandidates(listings, job.Filters)
	s.appendEvent(jobID, models.JobEventExtracted, map[string]interface{}{
		"found":     len(listings),
		"extracted": len(candidates),
	})

	if len(candidates) == 0 {
		s.failJob(jobID, "no usable candidates extracted from any source")
		return
	}

	// Stage 4: deduplicate
	unique, duplicates := Dedupe(candidates)
	s.appendEvent(jobID, models.JobEventDeduped, map[string]interface{}{
		"unique":     len(unique),
		"duplicates": duplicates,
	})

	if max := job.Filters.MaxResults; max > 0 && len(unique) > max {
		unique = unique[:max]
	}

	// Stage 5: map and persist leads
	leads := make([]*models.Lead, 0, len(unique))
	for _, c := range unique {
		leads = append(leads, models.NewLeadFromCandidate(common.NewLeadID(), jobID, job.Query, c))
	}
	if err := s.leads.SaveLeads(leads); err != nil {
		s.failJob(jobID, fmt.Sprintf("failed to persist leads: %v", err))
		return
	}
	leadIDs := make([]string, len(leads))
	for i, lead := range leads {
		leadIDs[i] = lead.ID
	}
	s.appendEvent(jobID, models.JobEventMapped, map[string]interface{}{
		"mapped": len(leads),
		"posted": len(leads),
	})

	counts := models.JobCounts{
		Found:      len(listings),
		Extracted:  len(candidates),
		Unique:     len(unique),
		Duplicates: duplicates,
		Mapped:     len(leads),
		Posted:     len(leads),
	}

	// Stage 6: summarize
	summary := s.runSummarizeStage(ctx, stageTimeout, job.Query, counts, results)

	// Build the full result before touching status so done and result
	// land in one mutation
	result := &models.JobResult{
		Summary: summary,
		Counts:  counts,
		LeadIDs: leadIDs,
		Sources: succeeded,
	}

	if err := s.store.Mutate(jobID, func(j *models.Job) {
		j.MarkDone(result)
		j.Events = append(j.Events, newEvent(j, models.JobEventDone, map[string]interface{}{
			"summary": result.Summary,
			"counts":  result.Counts,
			"posted":  result.Counts.Posted,
		}))
	}); err != nil {
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to complete job")
	}

	common.SafeGo(s.logger, "publish-job-completed", func() {
		s.events.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventJobCompleted,
			Payload: map[string]interface{}{"job_id": jobID, "posted": counts.Posted},
		})
		s.events.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventLeadsPosted,
			Payload: map[string]interface{}{"job_id": jobID, "lead_ids": leadIDs},
		})
	})

	s.logger.Info().
		Str("job_id", jobID).
		Int("posted", counts.Posted).
		Dur("duration", time.Since(start)).
		Msg("Lead generation job completed")
}

// runPlanStage asks the AI provider for a search plan, falling back to
// the raw query if the response cannot be parsed.
func (s *Service) runPlanStage(ctx context.Context, timeout time.Duration, job *models.Job) (*models.SearchPlan, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.llm.GenerateText(stageCtx, interfaces.TextRequest{
		Prompt:            BuildPlanPrompt(job.Query, job.Filters, s.registry.Names()),
		SystemInstruction: planSystemInstruction,
	})
	if err != nil {
		return nil, &UpstreamError{Upstream: "llm", Err: err}
	}

	plan := ParsePlan(resp.Text, job.Query)

	// Restrict to known sources, keeping plan order
	known := make([]string, 0, len(plan.Sources))
	for _, name := range plan.Sources {
		if _, ok := s.registry.Get(name); ok {
			known = append(known, name)
		}
	}
	if len(known) == 0 {
		known = s.registry.Names()
	}
	if max := s.config.LeadGen.MaxSources; max > 0 && len(known) > max {
		known = known[:max]
	}
	plan.Sources = known

	return plan, nil
}

// runFetchStage queries each planned source for each search term.
// Individual source failures become events; only all-sources-failed is
// an error.
func (s *Service) runFetchStage(ctx context.Context, timeout time.Duration, jobID string, plan *models.SearchPlan, filters models.LeadFilters) ([]models.SourceResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if plan.Location != "" && filters.Location == "" {
		filters.Location = plan.Location
	}

	results := make([]models.SourceResult, 0, len(plan.Sources))
	for _, name := range plan.Sources {
		provider, ok := s.registry.Get(name)
		if !ok {
			continue
		}

		result := models.SourceResult{SourceName: name}
		for _, term := range plan.SearchTerms {
			listings, err := provider.Search(stageCtx, term, filters)
			if err != nil {
				result.Err = err
				result.Error = err.Error()
				break
			}
			result.Listings = append(result.Listings, listings...)
		}
		result.Count = len(result.Listings)
		results = append(results, result)

		data := map[string]interface{}{
			"source": name,
			"count":  result.Count,
		}
		if result.Err != nil {
			data["error"] = result.Error
		}
		s.appendEvent(jobID, models.JobEventSource, data)

		if stageCtx.Err() != nil {
			break
		}
	}

	if err := stageCtx.Err(); err != nil {
		return nil, err
	}

	var failed []string
	var succeeded []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.SourceName)
		} else {
			succeeded = append(succeeded, res.SourceName)
		}
	}

	if len(succeeded) == 0 {
		return nil, &UpstreamError{
			Upstream: "sources",
			Err:      fmt.Errorf("all %d sources failed", len(failed)),
		}
	}

	if len(failed) > 0 {
		partial := &PartialSourceFailure{Failed: failed, Succeeded: succeeded}
		s.logger.Warn().
			Str("job_id", jobID).
			Strs("failed", failed).
			Msg(partial.Error())
	}

	return results, nil
}

// runSummarizeStage produces the human-readable result summary. A
// provider failure here never fails the job; the leads are already
// persisted, so a deterministic summary stands in.
func (s *Service) runSummarizeStage(ctx context.Context, timeout time.Duration, query string, counts models.JobCounts, results []models.SourceResult) string {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.llm.GenerateText(stageCtx, interfaces.TextRequest{
		Prompt:            BuildSummaryPrompt(query, counts, results),
		SystemInstruction: summarySystemInstruction,
	})
	if err != nil || resp.Text == "" {
		if err != nil {
			s.logger.Warn().Err(err).Msg("Summary generation failed, using fallback")
		}
		return FallbackSummary(query, counts)
	}
	return resp.Text
}

// appendEvent logs and swallows event append failures; a persistence
// hiccup on progress events must not kill the pipeline.
func (s *Service) appendEvent(jobID, eventType string, data map[string]interface{}) {
	if err := s.store.AppendEvent(jobID, eventType, data); err != nil {
		s.logger.Warn().Str("job_id", jobID).Str("event", eventType).Err(err).Msg("Failed to append event")
	}
}

// stageError renders a stage failure, mapping cancellation and timeout
// to stable messages.
func (s *Service) stageError(ctx context.Context, stage string, err error) string {
	if ctx.Err() == context.Canceled {
		return "job cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s stage timed out", stage)
	}
	return fmt.Sprintf("%s stage failed: %v", stage, err)
}

// failJob transitions a job to error with the terminal event in the
// same mutation. Safe to call from any exit path; a job already
// terminal is left alone.
func (s *Service) failJob(jobID, message string) {
	err := s.store.Mutate(jobID, func(job *models.Job) {
		if job.IsTerminal() {
			return
		}
		job.MarkError(message)
		job.Events = append(job.Events, newEvent(job, models.JobEventError, map[string]interface{}{
			"error": message,
		}))
	})
	if err != nil {
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to mark job as error")
		return
	}

	common.SafeGo(s.logger, "publish-job-failed", func() {
		s.events.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventJobFailed,
			Payload: map[string]interface{}{"job_id": jobID, "error": message},
		})
	})

	s.logger.Warn().Str("job_id", jobID).Str("error", message).Msg("Lead generation job failed")
}
