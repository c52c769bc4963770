// -----------------------------------------------------------------------
// Job Store - In-memory job state with write-through persistence and
// ordered event subscriptions
// -----------------------------------------------------------------------

package leadgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
)

// Store holds live job state. All mutations for one job go through its
// entry lock, so concurrent readers always see a consistent snapshot
// and the event history never reorders or gaps.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*jobEntry
	persist interfaces.JobStorage
	logger  arbor.ILogger
}

// jobEntry guards one job's state. cond wakes subscribers when events
// are appended or the job reaches a terminal state.
type jobEntry struct {
	mu   sync.Mutex
	cond *sync.Cond
	job  *models.Job
}

// NewStore creates a job store backed by the given persistence layer
func NewStore(persist interfaces.JobStorage, logger arbor.ILogger) *Store {
	return &Store{
		entries: make(map[string]*jobEntry),
		persist: persist,
		logger:  logger,
	}
}

// Create registers a new job and persists it. Fails if the ID exists.
func (s *Store) Create(job *models.Job) error {
	s.mu.Lock()
	if _, exists := s.entries[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job already exists: %s", job.ID)
	}

	entry := &jobEntry{job: job}
	entry.cond = sync.NewCond(&entry.mu)
	s.entries[job.ID] = entry
	s.mu.Unlock()

	if err := s.persist.SaveJob(job); err != nil {
		return fmt.Errorf("failed to persist new job: %w", err)
	}
	return nil
}

// entry returns the live entry for a job, loading it from persistence
// if the process restarted since the job was created.
func (s *Store) entry(id string) (*jobEntry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return entry, true
	}

	job, err := s.persist.GetJob(id)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have loaded it first
	if entry, ok := s.entries[id]; ok {
		return entry, true
	}
	entry = &jobEntry{job: job}
	entry.cond = sync.NewCond(&entry.mu)
	s.entries[id] = entry
	return entry, true
}

// Get returns a deep-copied snapshot of a job, or false if unknown
func (s *Store) Get(id string) (*models.Job, bool) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), true
}

// Mutate applies fn to a job under its lock, persists the result, and
// wakes subscribers. fn must not block.
func (s *Store) Mutate(id string, fn func(*models.Job)) error {
	entry, ok := s.entry(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	entry.mu.Lock()
	fn(entry.job)
	snapshot := entry.job.Clone()
	entry.cond.Broadcast()
	entry.mu.Unlock()

	if err := s.persist.SaveJob(snapshot); err != nil {
		s.logger.Error().Str("job_id", id).Err(err).Msg("Failed to persist job mutation")
		return fmt.Errorf("failed to persist job: %w", err)
	}
	return nil
}

// AppendEvent appends an event to a job's history with the next
// sequence number and wakes subscribers.
func (s *Store) AppendEvent(id string, eventType string, data map[string]interface{}) error {
	return s.Mutate(id, func(job *models.Job) {
		job.Events = append(job.Events, models.JobEvent{
			Sequence:  job.NextSequence(),
			Type:      eventType,
			Data:      data,
			Timestamp: time.Now(),
		})
	})
}

// Delete removes a job from memory and persistence
func (s *Store) Delete(id string) error {
	entry, ok := s.entry(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	// Wake any subscribers so they observe the removal
	entry.mu.Lock()
	entry.cond.Broadcast()
	entry.mu.Unlock()

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	return s.persist.DeleteJob(id)
}

// Subscribe streams a job's events in order: full history first, then
// live events as they are appended. The channel closes after the event
// following the terminal transition (done or error) is delivered, or
// when ctx is cancelled. Every subscriber sees the same gap-free
// sequence regardless of when it joined.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan models.JobEvent, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}

	ch := make(chan models.JobEvent, 16)

	// cond.Wait cannot observe ctx directly; this goroutine wakes the
	// reader when the subscriber goes away.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		entry.mu.Lock()
		entry.cond.Broadcast()
		entry.mu.Unlock()
	}()

	go func() {
		defer close(ch)
		defer close(stop)

		next := 0 // index into the event history
		for {
			entry.mu.Lock()
			for next >= len(entry.job.Events) && !entry.job.IsTerminal() && ctx.Err() == nil {
				entry.cond.Wait()
			}

			var pending []models.JobEvent
			if next < len(entry.job.Events) {
				pending = append(pending, entry.job.Events[next:]...)
				next = len(entry.job.Events)
			}
			terminal := entry.job.IsTerminal() && next >= len(entry.job.Events)
			entry.mu.Unlock()

			for _, event := range pending {
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}

			if ctx.Err() != nil || terminal {
				return
			}
		}
	}()

	return ch, nil
}
