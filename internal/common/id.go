package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewLeadID generates a unique lead ID with the "lead_" prefix
// Format: lead_<uuid>
func NewLeadID() string {
	return "lead_" + uuid.New().String()
}
