// Package tripevents publishes notifications about trip changes.
package tripevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	TypeTripPlanned        = "trip.planned"
	TypePreferencesUpdated = "trip.preferences_updated"
	TypeStopsFound         = "trip.stops_found"
	TypeWaypointAdded      = "trip.waypoint_added"
	TypeWaypointRemoved    = "trip.waypoint_removed"
)

// Event describes a change to a trip.
type Event struct {
	Type       string    `json:"type"`
	TripID     string    `json:"tripId"`
	Version    int       `json:"version"`
	Waypoints  int       `json:"waypoints"`
	Stops      int       `json:"stops,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers trip events. Publishing is best effort; callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

func encode(e Event) ([]byte, map[string]string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding trip event: %w", err)
	}
	attrs := map[string]string{
		"type":   e.Type,
		"tripId": e.TripID,
	}
	return data, attrs, nil
}
