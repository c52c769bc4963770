// -----------------------------------------------------------------------
// Lead Generation Service - Job submission, status, and lifecycle
// -----------------------------------------------------------------------

package leadgen

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
)

// Service coordinates the asynchronous lead generation pipeline:
// submissions return immediately with a job ID while a background
// worker runs the stages and the store streams progress.
type Service struct {
	store    *Store
	llm      interfaces.LLMService
	registry interfaces.SourceRegistry
	leads    interfaces.LeadStorage
	events   interfaces.EventService
	config   *common.Config
	logger   arbor.ILogger
	validate *validator.Validate

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// NewService creates the lead generation service
func NewService(
	store *Store,
	llm interfaces.LLMService,
	registry interfaces.SourceRegistry,
	leads interfaces.LeadStorage,
	events interfaces.EventService,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		store:    store,
		llm:      llm,
		registry: registry,
		leads:    leads,
		events:   events,
		config:   config,
		logger:   logger,
		validate: validator.New(),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit validates a run request, creates a queued job, and starts the
// background worker. It returns the job ID immediately; callers never
// wait for the pipeline.
func (s *Service) Submit(req models.RunRequest) (*models.Job, error) {
	req.Query = strings.TrimSpace(req.Query)

	if err := s.validate.Struct(&req); err != nil {
		return nil, s.toValidationError(err)
	}
	if req.Filters.MinPrice > 0 && req.Filters.MaxPrice > 0 && req.Filters.MinPrice > req.Filters.MaxPrice {
		return nil, &ValidationError{Field: "filters.min_price", Message: "min_price cannot exceed max_price"}
	}

	job := models.NewJob(common.NewJobID(), req)
	if err := s.store.Create(job); err != nil {
		return nil, err
	}

	if err := s.store.AppendEvent(job.ID, models.JobEventQueued, map[string]interface{}{
		"query": job.Query,
	}); err != nil {
		s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to append queued event")
	}

	// Snapshot the queued state before the worker starts: once it runs,
	// the live entry is its to mutate and must not be read bare.
	snapshot, ok := s.store.Get(job.ID)
	if !ok {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelMu.Lock()
	s.cancels[job.ID] = cancel
	s.cancelMu.Unlock()

	common.SafeGo(s.logger, "leadgen-worker-"+job.ID, func() {
		defer s.clearCancel(job.ID)
		s.runJob(ctx, job.ID)
	})

	common.SafeGo(s.logger, "publish-job-submitted", func() {
		s.events.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventJobSubmitted,
			Payload: map[string]string{"job_id": job.ID, "query": job.Query},
		})
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("query", job.Query).
		Msg("Lead generation job submitted")

	return snapshot, nil
}

// Status returns a snapshot of a job, or ErrNotFound
func (s *Service) Status(id string) (*models.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Events opens an ordered event subscription for a job
func (s *Service) Events(ctx context.Context, id string) (<-chan models.JobEvent, error) {
	ch, err := s.store.Subscribe(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return ch, nil
}

// List returns jobs from persistence, newest first
func (s *Service) List(opts *interfaces.ListOptions) ([]*models.Job, error) {
	return s.store.persist.ListJobs(opts)
}

// Cancel requests cancellation of a running job. The worker observes
// the context and finishes the job as error.
func (s *Service) Cancel(id string) error {
	job, ok := s.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	if job.IsTerminal() {
		return &ValidationError{Message: "job already finished"}
	}

	s.cancelMu.Lock()
	cancel, ok := s.cancels[id]
	s.cancelMu.Unlock()
	if ok {
		cancel()
		s.logger.Info().Str("job_id", id).Msg("Job cancellation requested")
		return nil
	}

	// No live worker (e.g. queued job orphaned by restart): finish it directly
	return s.store.Mutate(id, func(j *models.Job) {
		if !j.IsTerminal() {
			j.MarkError("job cancelled")
			j.Events = append(j.Events, newEvent(j, models.JobEventError, map[string]interface{}{
				"error": "job cancelled",
			}))
		}
	})
}

// Delete removes a terminal job and its leads
func (s *Service) Delete(id string) error {
	job, ok := s.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !job.IsTerminal() {
		return &ValidationError{Message: "cannot delete a job that is still queued or running"}
	}

	if _, err := s.leads.DeleteLeadsByJob(id); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Failed to delete leads during job delete")
	}

	return s.store.Delete(id)
}

func (s *Service) clearCancel(id string) {
	s.cancelMu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.cancelMu.Unlock()
}

// toValidationError maps validator errors to the service error type
func (s *Service) toValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		field := strings.ToLower(fe.Namespace())
		field = strings.TrimPrefix(field, "runrequest.")
		switch fe.Tag() {
		case "required":
			return &ValidationError{Field: field, Message: "is required"}
		case "min":
			return &ValidationError{Field: field, Message: "is too short"}
		default:
			return &ValidationError{Field: field, Message: "is invalid"}
		}
	}
	return &ValidationError{Message: err.Error()}
}
