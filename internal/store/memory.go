package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and for throwaway hosts.
type MemoryStore struct {
	mu                   sync.RWMutex
	records              map[string]map[string]string
	registrations        map[[2]string]struct{}
	sessionRegistrations map[[3]string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:              map[string]map[string]string{},
		registrations:        map[[2]string]struct{}{},
		sessionRegistrations: map[[3]string]struct{}{},
	}
}

func (s *MemoryStore) FindBySubjectID(_ context.Context, subjectID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.records[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := make(map[string]string, len(fields))
	for k, v := range fields {
		clone[k] = v
	}
	return &Record{SubjectID: subjectID, Fields: clone}, nil
}

func (s *MemoryStore) CreateRecord(_ context.Context, subjectID string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[subjectID]; ok {
		return ErrAlreadyExists
	}
	clone := make(map[string]string, len(fields))
	for k, v := range fields {
		clone[k] = v
	}
	s.records[subjectID] = clone
	return nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, subjectID string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[subjectID]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[subjectID]; !ok {
		return ErrNotFound
	}
	delete(s.records, subjectID)
	return nil
}

func (s *MemoryStore) FindSubjectIDByEmail(_ context.Context, email string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for subjectID, fields := range s.records {
		if fields["EmailAddress"] == email {
			return subjectID, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) ExistsRegistration(_ context.Context, userID, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.registrations[[2]string{userID, eventID}]
	return ok, nil
}

func (s *MemoryStore) InsertRegistration(_ context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registrations[[2]string{userID, eventID}] = struct{}{}
	return nil
}

func (s *MemoryStore) ExistsSessionRegistration(_ context.Context, userID, eventID, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessionRegistrations[[3]string{userID, eventID, sessionID}]
	return ok, nil
}

func (s *MemoryStore) InsertSessionRegistration(_ context.Context, userID, eventID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionRegistrations[[3]string{userID, eventID, sessionID}] = struct{}{}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
