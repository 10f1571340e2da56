package services

import (
	"sync"

	"github.com/scamshield-ke/shield_api/model"
)

// memoryWindowStore keeps windows in a process-local map. Convenient for
// single-instance deployments; state is rebuilt from scratch on restart.
type memoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*model.RateLimit
}

func NewMemoryWindowStore() WindowStore {
	return &memoryWindowStore{windows: make(map[string]*model.RateLimit)}
}

func windowKey(identifier, endpointType string) string {
	return identifier + "|" + endpointType
}

func (s *memoryWindowStore) Get(identifier, endpointType string) (*model.RateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rateLimit, ok := s.windows[windowKey(identifier, endpointType)]
	if !ok {
		return nil, nil
	}
	copied := *rateLimit
	return &copied, nil
}

func (s *memoryWindowStore) Save(rateLimit *model.RateLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rateLimit
	s.windows[windowKey(rateLimit.Identifier, rateLimit.EndpointType)] = &copied
	return nil
}

func (s *memoryWindowStore) Delete(identifier, endpointType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, windowKey(identifier, endpointType))
	return nil
}

// dbWindowStore persists windows in the rate_limits table so counters
// survive restarts and can be shared by multiple instances.
type dbWindowStore struct {
	sql *PostgresService
}

func (s *dbWindowStore) Get(identifier, endpointType string) (*model.RateLimit, error) {
	return s.sql.GetRateLimit(identifier, endpointType)
}

func (s *dbWindowStore) Save(rateLimit *model.RateLimit) error {
	return s.sql.SaveRateLimit(rateLimit)
}

func (s *dbWindowStore) Delete(identifier, endpointType string) error {
	return s.sql.DeleteRateLimit(identifier, endpointType)
}
