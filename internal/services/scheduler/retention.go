package scheduler

import (
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// JobEvictor removes a job from live state and persistence together.
// Deleting through persistence alone would leave the in-memory entry
// serving a job that no longer exists.
type JobEvictor interface {
	Delete(id string) error
}

// RetentionService periodically deletes terminal jobs older than the
// configured retention age and reclaims value log space.
type RetentionService struct {
	config  *common.RetentionConfig
	jobs    interfaces.JobStorage
	leads   interfaces.LeadStorage
	store   JobEvictor
	db      interface{}
	cron    *cron.Cron
	logger  arbor.ILogger
	started bool
}

// NewRetentionService creates a retention sweeper
func NewRetentionService(
	config *common.RetentionConfig,
	jobs interfaces.JobStorage,
	leads interfaces.LeadStorage,
	store JobEvictor,
	db interface{},
	logger arbor.ILogger,
) *RetentionService {
	return &RetentionService{
		config: config,
		jobs:   jobs,
		leads:  leads,
		store:  store,
		db:     db,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the sweep on the configured cron expression
func (s *RetentionService) Start() error {
	if s.started {
		return fmt.Errorf("retention service already started")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/10 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.started = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", s.config.MaxAgeDuration().String()).
		Msg("Retention service started")

	return nil
}

// Stop halts the sweeper
func (s *RetentionService) Stop() {
	if !s.started {
		return
	}
	s.cron.Stop()
	s.started = false
	s.logger.Info().Msg("Retention service stopped")
}

// Sweep deletes expired terminal jobs and runs a value log GC pass
func (s *RetentionService) Sweep() {
	cutoff := time.Now().Add(-s.config.MaxAgeDuration())

	jobs, err := s.jobs.ListJobs(nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed to list jobs")
		return
	}

	// Leads expire with the job that produced them. Jobs are removed
	// through the evictor so the live store and persistence stay in step.
	jobsDeleted := 0
	leadsDeleted := 0
	for _, job := range jobs {
		if !job.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		n, err := s.leads.DeleteLeadsByJob(job.ID)
		if err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to delete leads for expired job")
			continue
		}
		leadsDeleted += n

		if err := s.store.Delete(job.ID); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to delete expired job")
			continue
		}
		jobsDeleted++
	}

	if jobsDeleted > 0 || leadsDeleted > 0 {
		s.logger.Info().
			Int("jobs_deleted", jobsDeleted).
			Int("leads_deleted", leadsDeleted).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Retention sweep completed")
	}

	s.runValueLogGC()
}

// runValueLogGC asks badger to reclaim space freed by deletions
func (s *RetentionService) runValueLogGC() {
	store, ok := s.db.(*badgerhold.Store)
	if !ok || store == nil {
		return
	}

	err := store.Badger().RunValueLogGC(0.5)
	if err != nil && err != badgerdb.ErrNoRewrite {
		s.logger.Warn().Err(err).Msg("Badger value log GC failed")
	}
}
