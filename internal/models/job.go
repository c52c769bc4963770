// -----------------------------------------------------------------------
// Lead Generation Job - Job record persisted for the async pipeline
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a lead generation job
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"  // Accepted, not yet picked up by the worker
	JobStatusRunning JobStatus = "running" // Worker is executing the pipeline
	JobStatusDone    JobStatus = "done"    // Completed with a result
	JobStatusError   JobStatus = "error"   // Failed with an error message
)

// IsValid returns true for a known job status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

// IsTerminal returns true if the status is final
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// LeadFilters narrows the search the worker performs.
// All fields are optional.
type LeadFilters struct {
	Location     string  `json:"location,omitempty" toml:"location"`
	PropertyType string  `json:"property_type,omitempty" toml:"property_type"`
	MinPrice     float64 `json:"min_price,omitempty" toml:"min_price" validate:"omitempty,gte=0"`
	MaxPrice     float64 `json:"max_price,omitempty" toml:"max_price" validate:"omitempty,gte=0"`
	MaxResults   int     `json:"max_results,omitempty" toml:"max_results" validate:"omitempty,gte=1,lte=500"`
}

// RunRequest is the payload accepted by the run endpoint
type RunRequest struct {
	Query   string      `json:"query" validate:"required,min=3"`
	Filters LeadFilters `json:"filters"`
}

// JobCounts summarizes pipeline stage outcomes. Zero values are
// meaningful: a done job with no candidates reports all zeros.
type JobCounts struct {
	Found      int `json:"found"`      // Raw listings fetched across sources
	Extracted  int `json:"extracted"`  // Candidates parsed from listings
	Unique     int `json:"unique"`     // Candidates surviving deduplication
	Duplicates int `json:"duplicates"` // Candidates dropped as duplicates
	Mapped     int `json:"mapped"`     // Candidates mapped to lead records
	Posted     int `json:"posted"`     // Leads persisted to storage
}

// JobResult is the outcome of a completed job.
// It is set atomically with the transition to done.
type JobResult struct {
	Summary string    `json:"summary"`
	Counts  JobCounts `json:"counts"`
	LeadIDs []string  `json:"lead_ids"`
	Sources []string  `json:"sources,omitempty"` // Sources that contributed listings
}

// JobEvent is one entry in a job's ordered event history.
// Sequence numbers start at 1 and have no gaps.
type JobEvent struct {
	Sequence  int                    `json:"sequence"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Job event types emitted during pipeline execution
const (
	JobEventQueued    = "queued"
	JobEventStarted   = "started"
	JobEventPlanning  = "planning"
	JobEventFetching  = "fetching"
	JobEventSource    = "source"
	JobEventExtracted = "extracted"
	JobEventDeduped   = "deduped"
	JobEventMapped    = "mapped"
	JobEventDone      = "done"
	JobEventError     = "error"
)

// Job is the persisted record for one lead generation run
type Job struct {
	ID      string      `json:"id"`
	Status  JobStatus   `json:"status"`
	Query   string      `json:"query"`
	Filters LeadFilters `json:"filters"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is non-nil only when Status is done
	Result *JobResult `json:"result,omitempty"`
	// Error is non-empty only when Status is error
	Error string `json:"error,omitempty"`

	// Events is the append-only ordered history for the job
	Events []JobEvent `json:"events"`
}

// NewJob creates a queued job for the given request
func NewJob(id string, req RunRequest) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusQueued,
		Query:     req.Query,
		Filters:   req.Filters,
		CreatedAt: time.Now(),
	}
}

// MarkStarted transitions the job to running
func (j *Job) MarkStarted() {
	j.Status = JobStatusRunning
	now := time.Now()
	j.StartedAt = &now
}

// MarkDone transitions the job to done with its result.
// Status and Result change together so readers never observe done
// without a result.
func (j *Job) MarkDone(result *JobResult) {
	j.Status = JobStatusDone
	j.Result = result
	now := time.Now()
	j.CompletedAt = &now
}

// MarkError transitions the job to error with a message
func (j *Job) MarkError(errorMsg string) {
	j.Status = JobStatusError
	j.Error = errorMsg
	now := time.Now()
	j.CompletedAt = &now
}

// IsTerminal returns true if the job finished (done or error)
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// NextSequence returns the sequence number the next event should carry
func (j *Job) NextSequence() int {
	return len(j.Events) + 1
}

// Clone returns a deep copy safe to hand to readers while the worker
// keeps mutating the original.
func (j *Job) Clone() *Job {
	clone := *j

	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.Result != nil {
		result := *j.Result
		result.LeadIDs = append([]string(nil), j.Result.LeadIDs...)
		result.Sources = append([]string(nil), j.Result.Sources...)
		clone.Result = &result
	}
	if j.Events != nil {
		clone.Events = append([]JobEvent(nil), j.Events...)
	}

	return &clone
}

// ToJSON serializes the job for storage or transport
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// StatusResponse is the wire shape returned by the status endpoint.
// Counts are always present so sparse results never surprise clients.
type StatusResponse struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Query       string     `json:"query"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     string     `json:"summary"`
	Counts      JobCounts  `json:"counts"`
	LeadIDs     []string   `json:"lead_ids"`
	Error       string     `json:"error,omitempty"`
}

// NewStatusResponse builds a status response from a job snapshot,
// tolerating nil results and empty lead lists.
func NewStatusResponse(job *Job) StatusResponse {
	resp := StatusResponse{
		ID:          job.ID,
		Status:      job.Status,
		Query:       job.Query,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		LeadIDs:     []string{},
		Error:       job.Error,
	}

	if job.Result != nil {
		resp.Summary = job.Result.Summary
		resp.Counts = job.Result.Counts
		if job.Result.LeadIDs != nil {
			resp.LeadIDs = job.Result.LeadIDs
		}
	}

	return resp
}
