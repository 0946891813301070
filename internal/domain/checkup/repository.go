package checkup

import (
	"context"
	"time"
)

// Repository defines the interface for checkup persistence
type Repository interface {
	// Save persists a checkup with all its verdicts
	Save(ctx context.Context, c *Checkup) error

	// FindByID retrieves a checkup by its ID
	FindByID(ctx context.Context, id string) (*Checkup, error)

	// FindAll retrieves all checkups, newest first
	FindAll(ctx context.Context) ([]*Checkup, error)

	// Delete removes a checkup by its ID
	Delete(ctx context.Context, id string) error

	// Purge removes checkups created before cutoff and returns how many
	// were deleted
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}
