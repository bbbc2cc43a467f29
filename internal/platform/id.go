package platform

import (
	"github.com/google/uuid"
)

// NewID returns a random opaque identifier for domains, users and sessions.
func NewID() string {
	return uuid.New().String()
}
