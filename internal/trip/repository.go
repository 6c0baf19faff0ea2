package trip

import "context"

// Repository defines the interface for trip persistence.
type Repository interface {
	// Get retrieves a trip by ID. Returns ErrTripNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Trip, error)

	// Create stores a new trip.
	Create(ctx context.Context, t *Trip) error

	// Update stores t if the stored version still equals t.Version, then
	// increments t.Version. Returns ErrVersionConflict when another writer got
	// there first.
	Update(ctx context.Context, t *Trip) error

	// Delete deletes a trip by ID.
	Delete(ctx context.Context, id string) error
}
