package interfaces

import (
	"github.com/ternarybob/leadgen/internal/models"
)

// ListOptions controls pagination and filtering for list operations
type ListOptions struct {
	Limit  int
	Offset int
	Status models.JobStatus // Filter jobs by status when non-empty
	JobID  string           // Filter leads by originating job when non-empty
}

// JobStorage - interface for job persistence
type JobStorage interface {
	// CRUD operations
	SaveJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	DeleteJob(id string) error

	// List operations
	ListJobs(opts *ListOptions) ([]*models.Job, error)
	GetJobsByStatus(status models.JobStatus) ([]*models.Job, error)

	// Stats operations
	CountJobs() (int, error)
	CountJobsByStatus(status models.JobStatus) (int, error)

	// Recovery: mark non-terminal jobs as error after an unclean shutdown
	MarkInterrupted(message string) (int, error)
}

// LeadStorage - interface for lead persistence
type LeadStorage interface {
	SaveLead(lead *models.Lead) error
	SaveLeads(leads []*models.Lead) error
	GetLead(id string) (*models.Lead, error)
	GetLeadsByJob(jobID string) ([]*models.Lead, error)
	ListLeads(opts *ListOptions) ([]*models.Lead, error)
	DeleteLead(id string) error
	DeleteLeadsByJob(jobID string) (int, error)
	CountLeads() (int, error)
}

// KeyValueStorage - interface for generic key/value persistence
// (API keys, feature toggles, last-run markers)
type KeyValueStorage interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	List(prefix string) (map[string]string, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	LeadStorage() LeadStorage
	KeyValueStorage() KeyValueStorage
	DB() interface{}
	Close() error
}
