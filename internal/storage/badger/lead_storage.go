package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LeadStorage implements the LeadStorage interface for Badger
type LeadStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLeadStorage creates a new LeadStorage instance
func NewLeadStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LeadStorage {
	return &LeadStorage{
		db:     db,
		logger: logger,
	}
}

// SaveLead inserts or updates a lead record
func (s *LeadStorage) SaveLead(lead *models.Lead) error {
	if lead == nil {
		return fmt.Errorf("lead cannot be nil")
	}
	if err := lead.Validate(); err != nil {
		return err
	}

	if err := s.db.Store().Upsert(lead.ID, lead); err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}
	return nil
}

// SaveLeads persists a batch of leads. Fails on the first bad record
// so a job's posted count matches what actually landed in storage.
func (s *LeadStorage) SaveLeads(leads []*models.Lead) error {
	for i, lead := range leads {
		if err := s.SaveLead(lead); err != nil {
			return fmt.Errorf("failed to save lead %d of %d: %w", i+1, len(leads), err)
		}
	}
	return nil
}

// GetLead retrieves a lead by ID
func (s *LeadStorage) GetLead(id string) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.Store().Get(id, &lead); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("lead not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &lead, nil
}

// GetLeadsByJob returns all leads produced by one job
func (s *LeadStorage) GetLeadsByJob(jobID string) ([]*models.Lead, error) {
	var leads []models.Lead
	if err := s.db.Store().Find(&leads, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get leads by job: %w", err)
	}

	result := make([]*models.Lead, len(leads))
	for i := range leads {
		result[i] = &leads[i]
	}
	return result, nil
}

// ListLeads returns leads sorted newest first with optional job filter
// and pagination
func (s *LeadStorage) ListLeads(opts *interfaces.ListOptions) ([]*models.Lead, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.JobID != "" {
			query = query.And("JobID").Eq(opts.JobID)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	query = query.SortBy("CreatedAt").Reverse()

	var leads []models.Lead
	if err := s.db.Store().Find(&leads, query); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	result := make([]*models.Lead, len(leads))
	for i := range leads {
		result[i] = &leads[i]
	}
	return result, nil
}

// DeleteLead removes a lead by ID
func (s *LeadStorage) DeleteLead(id string) error {
	err := s.db.Store().Delete(id, &models.Lead{})
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("lead not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	return nil
}

// DeleteLeadsByJob removes every lead a job produced, returning the count
func (s *LeadStorage) DeleteLeadsByJob(jobID string) (int, error) {
	leads, err := s.GetLeadsByJob(jobID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, lead := range leads {
		if err := s.db.Store().Delete(lead.ID, &models.Lead{}); err != nil {
			s.logger.Warn().Str("lead_id", lead.ID).Err(err).Msg("Failed to delete lead during job cleanup")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// CountLeads returns the total number of stored leads
func (s *LeadStorage) CountLeads() (int, error) {
	count, err := s.db.Store().Count(&models.Lead{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return int(count), nil
}
