package database

import (
	"context"
	"errors"

	"github.com/y0ug/hashguard/internal/database/models"
)

// Database defines the methods required for durable reputation storage.
type Database interface {
	// Initialize sets up the necessary tables or buckets.
	Initialize(ctx context.Context) error

	Close(ctx context.Context) error

	// GetEntry retrieves the stored entry for a normalized URL key.
	// It returns ErrEntryNotFound when nothing is stored.
	GetEntry(ctx context.Context, key string) (models.ReputationEntry, error)

	// PutEntry stores the entry under entry.URLKey, replacing any previous one.
	PutEntry(ctx context.Context, entry models.ReputationEntry) error

	// DeleteEntry removes an entry. Deleting a missing key is not an error.
	DeleteEntry(ctx context.Context, key string) error

	// CountEntries returns the number of stored entries.
	CountEntries(ctx context.Context) (int, error)
}

var ErrEntryNotFound = errors.New("reputation entry not found")
