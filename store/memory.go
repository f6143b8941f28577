package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/firmsocial/firm/resource"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory partition. Safe for concurrent handlers:
// documents are copied on the way in and out, so a caller never holds a
// reference into the store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]resource.Resource
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]resource.Resource)}
}

// copyResource detaches a document through a JSON round-trip, the same
// normalization the persistent partitions apply.
func copyResource(res resource.Resource) (resource.Resource, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to copy resource: %w", err)
	}
	var out resource.Resource
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy resource: %w", err)
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, uri string) (resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.objects[uri]
	if !ok {
		return nil, nil
	}
	return copyResource(res)
}

func (s *MemoryStore) IsStored(ctx context.Context, uri string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[uri]
	return ok, nil
}

// Put stores a copy of the resource, replacing any prior document with the
// same id. A resource without an id is assigned a urn:uuid identifier.
func (s *MemoryStore) Put(ctx context.Context, res resource.Resource) error {
	id, ok := res["id"].(string)
	if !ok || id == "" {
		id = "urn:uuid:" + uuid.New().String()
		res["id"] = id
	}
	stored, err := copyResource(res)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = stored
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, uri)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, criteria Criteria) ([]resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []resource.Resource
	for _, res := range s.objects {
		if IsMatch(res, criteria) {
			copied, err := copyResource(res)
			if err != nil {
				return nil, err
			}
			matches = append(matches, copied)
		}
	}
	return matches, nil
}

func (s *MemoryStore) QueryOne(ctx context.Context, criteria Criteria) (resource.Resource, error) {
	return queryOne(ctx, s, criteria)
}

func (s *MemoryStore) Update(ctx context.Context, uri string, updates resource.Resource) error {
	return update(ctx, s, uri, updates)
}

func (s *MemoryStore) Upsert(ctx context.Context, criteria Criteria, updates resource.Resource) error {
	return upsert(ctx, s, criteria, updates)
}
