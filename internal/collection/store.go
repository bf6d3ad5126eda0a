// Package collection implements the client-side collection mirror: an
// in-memory index over the remote card store, an optimistic update engine
// that patches the index before durable writes, and derived read models.
package collection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entry is one (collection, card) row with its owned quantity.
// At most one entry exists per pair; quantity is always >= 1 while the
// entry exists, and reaching 0 deletes the row.
type Entry struct {
	CollectionID int64     `json:"collectionId"`
	CardID       string    `json:"cardId"`
	Quantity     int       `json:"quantity"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Collection is a user-owned named grouping of entries.
type Collection struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RemoteStore is the durable source of truth for collection entries.
type RemoteStore interface {
	// ListEntries returns all entries across the user's collections.
	ListEntries(ctx context.Context, userID int64) ([]Entry, error)

	// ListCollections returns the user's collections.
	ListCollections(ctx context.Context, userID int64) ([]Collection, error)

	// CreateEntry creates a new entry. Fails with *ConflictError if an entry
	// already exists for the (collection, card) pair.
	CreateEntry(ctx context.Context, collectionID int64, cardID string, quantity int) (*Entry, error)

	// UpdateQuantity sets the quantity of an existing entry. Fails with
	// *NotFoundError if no entry exists. The server clamps quantity to >= 1;
	// removal goes through DeleteEntry, never a zero update.
	UpdateQuantity(ctx context.Context, collectionID int64, cardID string, quantity int) (*Entry, error)

	// DeleteEntry removes an entry. Fails with *NotFoundError if absent.
	DeleteEntry(ctx context.Context, collectionID int64, cardID string) error
}

// ErrNoActiveCollection is returned when a mutation is attempted with no
// collection selected.
var ErrNoActiveCollection = errors.New("no active collection selected")

// ConflictError indicates a create hit an already-existing entry. The engine
// checks the index first, so this means another client raced us; recovery is
// falling back to an update.
type ConflictError struct {
	CollectionID int64
	CardID       string
}

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry already exists for card %s in collection %d", e.CardID, e.CollectionID)
}

// NotFoundError indicates an update or delete on a non-existent entry.
type NotFoundError struct {
	CollectionID int64
	CardID       string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no entry for card %s in collection %d", e.CardID, e.CollectionID)
}

// IsConflict returns true if err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound returns true if err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
