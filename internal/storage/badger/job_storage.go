package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJob inserts or updates a job record
func (s *JobStorage) SaveJob(job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// DeleteJob removes a job by ID
func (s *JobStorage) DeleteJob(id string) error {
	err := s.db.Store().Delete(id, &models.Job{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// ListJobs returns jobs sorted newest first, with optional status filter
// and pagination
func (s *JobStorage) ListJobs(opts *interfaces.ListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetJobsByStatus returns all jobs in the given status
func (s *JobStorage) GetJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountJobs returns the total number of stored jobs
func (s *JobStorage) CountJobs() (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// CountJobsByStatus returns the number of jobs in the given status
func (s *JobStorage) CountJobsByStatus(status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return int(count), nil
}

// MarkInterrupted transitions every non-terminal job to error.
// Called once on startup so jobs interrupted by a crash or restart
// never stay queued or running forever.
func (s *JobStorage) MarkInterrupted(message string) (int, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusQueued).
		Or(badgerhold.Where("Status").Eq(models.JobStatusRunning))
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to find interrupted jobs: %w", err)
	}

	marked := 0
	for i := range jobs {
		job := &jobs[i]
		job.MarkError(message)
		if err := s.db.Store().Upsert(job.ID, job); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to mark interrupted job")
			continue
		}
		marked++
	}

	if marked > 0 {
		s.logger.Info().Int("count", marked).Msg("Marked interrupted jobs as error")
	}
	return marked, nil
}
