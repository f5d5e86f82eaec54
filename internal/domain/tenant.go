package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary partitioning identity data.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}
