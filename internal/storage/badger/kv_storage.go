package badger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// ErrKeyNotFound is returned when a key/value lookup misses
var ErrKeyNotFound = fmt.Errorf("key not found")

// keyValuePair is the stored record for generic key/value data
type keyValuePair struct {
	Key       string    `badgerhold:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KVStorage implements the KeyValueStorage interface for Badger
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func (s *KVStorage) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Set inserts or updates a key/value pair (case-insensitive)
func (s *KVStorage) Set(key, value string) error {
	normalizedKey := s.normalizeKey(key)
	now := time.Now()

	pair := keyValuePair{
		Key:       normalizedKey,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Check if exists to preserve CreatedAt
	var existing keyValuePair
	if err := s.db.Store().Get(normalizedKey, &existing); err == nil {
		pair.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(normalizedKey, &pair); err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}
	return nil
}

// Get retrieves a value by key (case-insensitive)
func (s *KVStorage) Get(key string) (string, error) {
	normalizedKey := s.normalizeKey(key)
	var pair keyValuePair
	err := s.db.Store().Get(normalizedKey, &pair)
	if err == badgerhold.ErrNotFound {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return pair.Value, nil
}

// Delete removes a key/value pair (case-insensitive)
func (s *KVStorage) Delete(key string) error {
	normalizedKey := s.normalizeKey(key)
	err := s.db.Store().Delete(normalizedKey, &keyValuePair{})
	if err == badgerhold.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// List returns all key/value pairs whose keys share a prefix
func (s *KVStorage) List(prefix string) (map[string]string, error) {
	var pairs []keyValuePair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}

	normalizedPrefix := s.normalizeKey(prefix)
	kvMap := make(map[string]string)
	for _, pair := range pairs {
		if normalizedPrefix == "" || strings.HasPrefix(pair.Key, normalizedPrefix) {
			kvMap[pair.Key] = pair.Value
		}
	}

	return kvMap, nil
}
