// Package storage provides the persistence collaborator for the
// engagement engine. Persistence is best-effort by contract: the engine
// functions with in-memory defaults when a backend is unavailable or
// slow, and the in-memory state stays authoritative for the process
// lifetime.
package storage

import (
	"context"
	"errors"

	"github.com/scrypster/confidant/pkg/types"
)

// ErrNotFound is returned when no record exists for a user identifier.
// Callers treat it as "first contact", never as a failure.
var ErrNotFound = errors.New("engagement record not found")

// EngagementStore persists per-user engagement records.
type EngagementStore interface {
	// Load retrieves the record for userID.
	// Returns ErrNotFound when the user has never been saved.
	Load(ctx context.Context, userID string) (*types.EngagementRecord, error)

	// Save creates or updates the record (upsert semantics).
	Save(ctx context.Context, rec *types.EngagementRecord) error

	// Delete removes the record for userID.
	// Returns ErrNotFound when no record exists.
	Delete(ctx context.Context, userID string) error

	// Close releases any resources held by the store.
	Close() error
}
