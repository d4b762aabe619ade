// Package entity defines the timestamp pair of persisted registrations.
package entity

import "time"

// Entity is embedded by registration.Registration. Messages carry their own
// timestamp instead.
type Entity struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New returns an Entity with both timestamps set to the current UTC time.
func New() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch moves UpdatedAt to the current UTC time, keeping CreatedAt.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
