package trip

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository for tests and
// single-instance deployments.
type InMemoryRepository struct {
	mu    sync.RWMutex
	trips map[string]*Trip
}

// NewInMemoryRepository creates a new in-memory trip repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{trips: make(map[string]*Trip)}
}

// Get retrieves a trip by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	return t.Clone(), nil
}

// Create stores a new trip.
func (r *InMemoryRepository) Create(_ context.Context, t *Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[t.ID]; ok {
		return ErrTripExists
	}
	if t.Version == 0 {
		t.Version = 1
	}
	r.trips[t.ID] = t.Clone()
	return nil
}

// Update stores the trip when its version matches.
func (r *InMemoryRepository) Update(_ context.Context, t *Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.trips[t.ID]
	if !ok {
		return ErrTripNotFound
	}
	if stored.Version != t.Version {
		return ErrVersionConflict
	}

	t.Version++
	r.trips[t.ID] = t.Clone()
	return nil
}

// Delete deletes a trip by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[id]; !ok {
		return ErrTripNotFound
	}
	delete(r.trips, id)
	return nil
}
