package leadgen

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
)

// memJobStorage is an in-memory JobStorage used across the package tests
type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]*models.Job)}
}

func (m *memJobStorage) SaveJob(job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memJobStorage) GetJob(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job.Clone(), nil
}

func (m *memJobStorage) DeleteJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memJobStorage) ListJobs(opts *interfaces.ListOptions) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if opts != nil && opts.Status != "" && job.Status != opts.Status {
			continue
		}
		result = append(result, job.Clone())
	}
	return result, nil
}

func (m *memJobStorage) GetJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	return m.ListJobs(&interfaces.ListOptions{Status: status})
}

func (m *memJobStorage) CountJobs() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *memJobStorage) CountJobsByStatus(status models.JobStatus) (int, error) {
	jobs, _ := m.GetJobsByStatus(status)
	return len(jobs), nil
}

func (m *memJobStorage) MarkInterrupted(message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := 0
	for _, job := range m.jobs {
		if !job.IsTerminal() {
			job.MarkError(message)
			marked++
		}
	}
	return marked, nil
}

func newTestStore() *Store {
	return NewStore(newMemJobStorage(), arbor.NewLogger())
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore()

	job := models.NewJob("job_1", models.RunRequest{Query: "q"})
	if err := store.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Duplicate IDs are rejected
	if err := store.Create(models.NewJob("job_1", models.RunRequest{Query: "q"})); err == nil {
		t.Error("expected error creating duplicate job")
	}

	snapshot, ok := store.Get("job_1")
	if !ok {
		t.Fatal("Get failed for existing job")
	}

	// Snapshots are isolated from store state
	snapshot.Status = models.JobStatusDone
	again, _ := store.Get("job_1")
	if again.Status != models.JobStatusQueued {
		t.Error("snapshot mutation leaked into store")
	}

	if _, ok := store.Get("job_missing"); ok {
		t.Error("Get should fail for unknown job")
	}
}

func TestStoreSubscribeReplayAndLive(t *testing.T) {
	store := newTestStore()

	job := models.NewJob("job_2", models.RunRequest{Query: "q"})
	if err := store.Create(job); err != nil {
		t.Fatal(err)
	}

	// History before subscribing
	store.AppendEvent("job_2", models.JobEventQueued, nil)
	store.AppendEvent("job_2", models.JobEventStarted, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := store.Subscribe(ctx, "job_2")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Live events after subscribing, ending in terminal
	go func() {
		store.AppendEvent("job_2", models.JobEventFetching, nil)
		store.Mutate("job_2", func(j *models.Job) {
			j.MarkDone(&models.JobResult{})
			j.Events = append(j.Events, newEvent(j, models.JobEventDone, nil))
		})
	}()

	var got []models.JobEvent
	for event := range ch {
		got = append(got, event)
	}

	if len(got) != 4 {
		t.Fatalf("received %d events, want 4: %+v", len(got), got)
	}

	// Sequence numbers are contiguous from 1
	for i, event := range got {
		if event.Sequence != i+1 {
			t.Errorf("event %d Sequence = %d, want %d", i, event.Sequence, i+1)
		}
	}
	if got[3].Type != models.JobEventDone {
		t.Errorf("last event Type = %q, want done", got[3].Type)
	}
}

func TestStoreSubscribeAfterTerminal(t *testing.T) {
	store := newTestStore()

	job := models.NewJob("job_3", models.RunRequest{Query: "q"})
	if err := store.Create(job); err != nil {
		t.Fatal(err)
	}
	store.AppendEvent("job_3", models.JobEventStarted, nil)
	store.Mutate("job_3", func(j *models.Job) {
		j.MarkError("boom")
		j.Events = append(j.Events, newEvent(j, models.JobEventError, nil))
	})

	// A late subscriber gets the full history and then the channel closes
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := store.Subscribe(ctx, "job_3")
	if err != nil {
		t.Fatal(err)
	}

	var got []models.JobEvent
	for event := range ch {
		got = append(got, event)
	}
	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[1].Type != models.JobEventError {
		t.Errorf("last event = %q, want error", got[1].Type)
	}
}

func TestStoreMultipleSubscribersSeeSameEvents(t *testing.T) {
	store := newTestStore()

	job := models.NewJob("job_4", models.RunRequest{Query: "q"})
	if err := store.Create(job); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const subscribers = 3
	channels := make([]<-chan models.JobEvent, subscribers)
	for i := 0; i < subscribers; i++ {
		ch, err := store.Subscribe(ctx, "job_4")
		if err != nil {
			t.Fatal(err)
		}
		channels[i] = ch
	}

	go func() {
		for i := 0; i < 5; i++ {
			store.AppendEvent("job_4", models.JobEventSource, map[string]interface{}{"i": i})
		}
		store.Mutate("job_4", func(j *models.Job) {
			j.MarkDone(&models.JobResult{})
			j.Events = append(j.Events, newEvent(j, models.JobEventDone, nil))
		})
	}()

	var wg sync.WaitGroup
	results := make([][]int, subscribers)
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for event := range channels[i] {
				results[i] = append(results[i], event.Sequence)
			}
		}(i)
	}
	wg.Wait()

	for i, seqs := range results {
		if len(seqs) != 6 {
			t.Errorf("subscriber %d received %d events, want 6", i, len(seqs))
			continue
		}
		for j, seq := range seqs {
			if seq != j+1 {
				t.Errorf("subscriber %d event %d sequence = %d, want %d", i, j, seq, j+1)
			}
		}
	}
}

func TestStoreSubscribeCancellation(t *testing.T) {
	store := newTestStore()

	job := models.NewJob("job_5", models.RunRequest{Query: "q"})
	if err := store.Create(job); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := store.Subscribe(ctx, "job_5")
	if err != nil {
		t.Fatal(err)
	}

	cancel()

	select {
	case _, open := <-ch:
		if open {
			// Drain until close
			for range ch {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
}

func TestStoreRecoversFromPersistence(t *testing.T) {
	persist := newMemJobStorage()

	job := models.NewJob("job_6", models.RunRequest{Query: "q"})
	job.MarkDone(&models.JobResult{Summary: "restored"})
	if err := persist.SaveJob(job); err != nil {
		t.Fatal(err)
	}

	// Fresh store instance simulating a restart
	store := NewStore(persist, arbor.NewLogger())

	restored, ok := store.Get("job_6")
	if !ok {
		t.Fatal("job should be recoverable from persistence")
	}
	if restored.Result == nil || restored.Result.Summary != "restored" {
		t.Errorf("restored job = %+v", restored)
	}
}
