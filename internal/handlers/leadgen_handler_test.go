package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/leadgen"
	"github.com/ternarybob/leadgen/internal/models"
)

// mockJobStorage implements interfaces.JobStorage for testing
type mockJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMockJobStorage() *mockJobStorage {
	return &mockJobStorage{jobs: make(map[string]*models.Job)}
}

func (m *mockJobStorage) SaveJob(job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *mockJobStorage) GetJob(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job.Clone(), nil
}

func (m *mockJobStorage) DeleteJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockJobStorage) ListJobs(opts *interfaces.ListOptions) ([]*models.Job, error) {
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

func (m *mockJobStorage) GetJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	return m.ListJobs(&interfaces.ListOptions{Status: status})
}

func (m *mockJobStorage) CountJobs() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *mockJobStorage) CountJobsByStatus(status models.JobStatus) (int, error) {
	jobs, _ := m.GetJobsByStatus(status)
	return len(jobs), nil
}

func (m *mockJobStorage) MarkInterrupted(message string) (int, error) { return 0, nil }

// mockLeadStorage implements interfaces.LeadStorage for testing
type mockLeadStorage struct {
	mu    sync.Mutex
	leads map[string]*models.Lead
}

func newMockLeadStorage() *mockLeadStorage {
	return &mockLeadStorage{leads: make(map[string]*models.Lead)}
}

func (m *mockLeadStorage) SaveLead(lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[lead.ID] = lead
	return nil
}

func (m *mockLeadStorage) SaveLeads(leads []*models.Lead) error {
	for _, lead := range leads {
		if err := m.SaveLead(lead); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockLeadStorage) GetLead(id string) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead not found: %s", id)
	}
	return lead, nil
}

func (m *mockLeadStorage) GetLeadsByJob(jobID string) ([]*models.Lead, error) {
	return m.ListLeads(&interfaces.ListOptions{JobID: jobID})
}

func (m *mockLeadStorage) ListLeads(opts *interfaces.ListOptions) ([]*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Lead
	for _, lead := range m.leads {
		if opts != nil && opts.JobID != "" && lead.JobID != opts.JobID {
			continue
		}
		result = append(result, lead)
	}
	return result, nil
}

func (m *mockLeadStorage) DeleteLead(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leads, id)
	return nil
}

func (m *mockLeadStorage) DeleteLeadsByJob(jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, lead := range m.leads {
		if lead.JobID == jobID {
			delete(m.leads, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockLeadStorage) CountLeads() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads), nil
}

// mockLLM returns a fixed plan on the first call, then a fixed summary
type mockLLM struct {
	mu    sync.Mutex
	calls int
}

func (m *mockLLM) GenerateText(ctx context.Context, req interfaces.TextRequest) (*interfaces.TextResponse, error) {
	m.mu.Lock()
	m.calls++
	first := m.calls == 1
	m.mu.Unlock()
	if first {
		return &interfaces.TextResponse{Text: `{"search_terms":["toronto apartments"],"sources":["alpha"]}`}, nil
	}
	return &interfaces.TextResponse{Text: "Completed."}, nil
}

func (m *mockLLM) HealthCheck(ctx context.Context) error { return nil }
func (m *mockLLM) ProviderName() string                  { return "mock" }
func (m *mockLLM) Close() error                          { return nil }

type mockProvider struct {
	listings []models.Listing
}

func (m *mockProvider) Name() string { return "alpha" }

func (m *mockProvider) Search(ctx context.Context, term string, filters models.LeadFilters) ([]models.Listing, error) {
	return m.listings, nil
}

type mockRegistry struct {
	provider *mockProvider
}

func (m *mockRegistry) Get(name string) (interfaces.SourceProvider, bool) {
	if name == m.provider.Name() {
		return m.provider, true
	}
	return nil, false
}

func (m *mockRegistry) All() []interfaces.SourceProvider {
	return []interfaces.SourceProvider{m.provider}
}

func (m *mockRegistry) Names() []string { return []string{m.provider.Name()} }

type mockEvents struct{}

func (mockEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error   { return nil }
func (mockEvents) Unsubscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }
func (mockEvents) Publish(context.Context, interfaces.Event) error                 { return nil }
func (mockEvents) PublishSync(context.Context, interfaces.Event) error             { return nil }
func (mockEvents) Close() error                                                    { return nil }

func newTestHandler(listings ...models.Listing) (*LeadGenHandler, *leadgen.Service) {
	logger := arbor.NewLogger()
	service := leadgen.NewService(
		leadgen.NewStore(newMockJobStorage(), logger),
		&mockLLM{},
		&mockRegistry{provider: &mockProvider{listings: listings}},
		newMockLeadStorage(),
		mockEvents{},
		common.NewDefaultConfig(),
		logger,
	)
	return NewLeadGenHandler(service, logger), service
}

func submitJob(t *testing.T, handler *LeadGenHandler, body string) string {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/agents/leadgen/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.RunHandler(rec, req)
	if rec.Code != 202 {
		t.Fatalf("RunHandler status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %q, want queued", resp["status"])
	}
	if !strings.HasPrefix(resp["job_id"], "job_") {
		t.Errorf("job_id = %q, want job_ prefix", resp["job_id"])
	}
	return resp["job_id"]
}

func waitForTerminal(t *testing.T, service *leadgen.Service, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := service.Status(jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func TestRunHandlerSubmitsJob(t *testing.T) {
	handler, service := newTestHandler(models.Listing{
		SourceName: "alpha", Name: "Jane Agent", Email: "jane@example.com",
	})

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	final := waitForTerminal(t, service, jobID)
	if final.Status != models.JobStatusDone {
		t.Errorf("final status = %q (error=%q), want done", final.Status, final.Error)
	}
}

func TestRunHandlerRejectsInvalidRequests(t *testing.T) {
	handler, _ := newTestHandler()

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":""}`},
		{"missing query", `{}`},
		{"malformed json", `{"query"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/agents/leadgen/run", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.RunHandler(rec, req)
			if rec.Code != 400 {
				t.Errorf("status = %d, want 400", rec.Code)
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error response is not JSON: %v", err)
			}
			if resp["error"] == "" {
				t.Error("error response should carry a message")
			}
		})
	}
}

func TestRunHandlerMethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/api/agents/leadgen/run", nil)
	rec := httptest.NewRecorder()
	handler.RunHandler(rec, req)
	if rec.Code != 405 {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStatusHandlerUnknownJob(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/api/agents/leadgen/status/job_missing", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatusHandlerCompletedJob(t *testing.T) {
	handler, service := newTestHandler(
		models.Listing{SourceName: "alpha", Name: "Jane Agent", Email: "jane@example.com"},
		models.Listing{SourceName: "alpha", Name: "Bob Broker", Email: "bob@example.com"},
	)

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	waitForTerminal(t, service, jobID)

	req := httptest.NewRequest("GET", "/api/agents/leadgen/status/"+jobID, nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.JobStatusDone {
		t.Errorf("Status = %q, want done", resp.Status)
	}
	if resp.Counts.Posted != 2 || resp.Counts.Found != 2 {
		t.Errorf("Counts = %+v", resp.Counts)
	}
	if len(resp.LeadIDs) != 2 {
		t.Errorf("LeadIDs = %v, want 2 entries", resp.LeadIDs)
	}
}

func TestStatusHandlerFailedJobHasZeroCounts(t *testing.T) {
	// No listings means the pipeline fails before producing a result.
	// The status payload must still render counts and lead_ids.
	handler, service := newTestHandler()

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	waitForTerminal(t, service, jobID)

	req := httptest.NewRequest("GET", "/api/agents/leadgen/status/"+jobID, nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200 for a failed job", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "error" {
		t.Errorf("status = %v, want error", resp["status"])
	}
	if resp["error"] == "" {
		t.Error("failed job should report an error message")
	}
	counts, ok := resp["counts"].(map[string]interface{})
	if !ok {
		t.Fatal("counts should always be present")
	}
	for _, field := range []string{"found", "extracted", "unique", "duplicates", "mapped", "posted"} {
		if _, ok := counts[field]; !ok {
			t.Errorf("counts missing field %q", field)
		}
	}
	if _, ok := resp["lead_ids"].([]interface{}); !ok {
		t.Error("lead_ids should always be an array")
	}
}

func TestStreamHandlerUnknownJob(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/api/agents/leadgen/stream/job_missing", nil)
	rec := httptest.NewRecorder()
	handler.StreamHandler(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStreamHandlerReplaysAndCloses(t *testing.T) {
	handler, service := newTestHandler(models.Listing{
		SourceName: "alpha", Name: "Jane Agent", Email: "jane@example.com",
	})

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	waitForTerminal(t, service, jobID)

	// The job is terminal, so the handler replays history and returns
	req := httptest.NewRequest("GET", "/api/agents/leadgen/stream/"+jobID, nil)
	rec := httptest.NewRecorder()
	handler.StreamHandler(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	for _, eventType := range []string{"queued", "started", "done"} {
		if !strings.Contains(body, "event: "+eventType+"\n") {
			t.Errorf("stream missing %q event:\n%s", eventType, body)
		}
	}

	// Every frame is event + data + blank line, done comes last
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	for _, frame := range frames {
		lines := strings.SplitN(frame, "\n", 2)
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "event: ") || !strings.HasPrefix(lines[1], "data: ") {
			t.Errorf("malformed frame: %q", frame)
		}
	}
	if !strings.HasPrefix(frames[len(frames)-1], "event: done\n") {
		t.Errorf("last frame should be the done event:\n%s", frames[len(frames)-1])
	}

	// Sequences are contiguous from 1
	for i, frame := range frames {
		var event models.JobEvent
		data := frame[strings.Index(frame, "data: ")+len("data: "):]
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			t.Fatalf("frame data is not JSON: %v", err)
		}
		if event.Sequence != i+1 {
			t.Errorf("frame %d sequence = %d, want %d", i, event.Sequence, i+1)
		}
	}
}

func TestListJobsHandler(t *testing.T) {
	handler, service := newTestHandler(models.Listing{
		SourceName: "alpha", Name: "Jane Agent", Email: "jane@example.com",
	})

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	waitForTerminal(t, service, jobID)

	req := httptest.NewRequest("GET", "/api/agents/leadgen/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Jobs  []models.StatusResponse `json:"jobs"`
		Count int                     `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Errorf("count = %d, jobs = %d, want 1/1", resp.Count, len(resp.Jobs))
	}

	// Invalid status filter is rejected
	req = httptest.NewRequest("GET", "/api/agents/leadgen/jobs?status=bogus", nil)
	rec = httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)
	if rec.Code != 400 {
		t.Errorf("invalid status filter: status = %d, want 400", rec.Code)
	}
}

func TestCancelHandlerUnknownJob(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/api/agents/leadgen/job_missing/cancel", nil)
	rec := httptest.NewRecorder()
	handler.CancelHandler(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteHandler(t *testing.T) {
	handler, service := newTestHandler(models.Listing{
		SourceName: "alpha", Name: "Jane Agent", Email: "jane@example.com",
	})

	jobID := submitJob(t, handler, `{"query":"apartments in Toronto"}`)
	waitForTerminal(t, service, jobID)

	req := httptest.NewRequest("DELETE", "/api/agents/leadgen/"+jobID, nil)
	rec := httptest.NewRecorder()
	handler.DeleteHandler(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/agents/leadgen/status/"+jobID, nil)
	rec = httptest.NewRecorder()
	handler.StatusHandler(rec, req)
	if rec.Code != 404 {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}
