package domain

import "github.com/google/uuid"

// NewID creates a new unique identifier for persisted records.
func NewID() string {
	return uuid.New().String()
}
