package collection

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// entryKey identifies one (collection, card) pair.
type entryKey struct {
	collectionID int64
	cardID       string
}

// Index is the in-memory projection of all entries for the current user.
//
// It is mutated in exactly two ways: optimistic patches from the Engine and
// wholesale replacement by Refresh. Nothing else patches it incrementally,
// which keeps the single mutable structure free of lost-update races.
type Index struct {
	store  RemoteStore
	userID int64

	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewIndex creates an empty index for the given user.
func NewIndex(store RemoteStore, userID int64) *Index {
	return &Index{
		store:   store,
		userID:  userID,
		entries: make(map[entryKey]Entry),
	}
}

// Refresh re-fetches all entries from the remote store and replaces the
// in-memory set. On failure the previous snapshot stays in place: stale but
// present beats empty.
func (idx *Index) Refresh(ctx context.Context) error {
	entries, err := idx.store.ListEntries(ctx, idx.userID)
	if err != nil {
		log.Printf("[Index] Refresh failed, keeping previous snapshot: %v", err)
		return fmt.Errorf("failed to refresh collection index: %w", err)
	}

	fresh := make(map[entryKey]Entry, len(entries))
	for _, entry := range entries {
		fresh[entryKey{entry.CollectionID, entry.CardID}] = entry
	}

	idx.mu.Lock()
	idx.entries = fresh
	idx.mu.Unlock()

	return nil
}

// EntriesFor returns all entries for one collection, most recently updated
// first. UpdatedAt orders display only; it plays no part in reconciliation.
func (idx *Index) EntriesFor(collectionID int64) []Entry {
	idx.mu.RLock()
	result := make([]Entry, 0)
	for key, entry := range idx.entries {
		if key.collectionID == collectionID {
			result = append(result, entry)
		}
	}
	idx.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].CardID < result[j].CardID
	})

	return result
}

// All returns every entry across the user's collections.
func (idx *Index) All() []Entry {
	idx.mu.RLock()
	result := make([]Entry, 0, len(idx.entries))
	for _, entry := range idx.entries {
		result = append(result, entry)
	}
	idx.mu.RUnlock()

	return result
}

// QuantityOf returns the owned quantity for a (collection, card) pair,
// 0 if absent.
func (idx *Index) QuantityOf(collectionID int64, cardID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entries[entryKey{collectionID, cardID}].Quantity
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// applyAdd applies an optimistic increment: bump an existing entry or insert
// a fresh one at quantity 1. Returns the new quantity and whether an entry
// pre-existed. Engine use only.
func (idx *Index) applyAdd(collectionID int64, cardID string) (newQuantity int, existed bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := entryKey{collectionID, cardID}
	entry, existed := idx.entries[key]
	if existed {
		entry.Quantity++
	} else {
		entry = Entry{CollectionID: collectionID, CardID: cardID, Quantity: 1}
	}
	entry.UpdatedAt = time.Now()
	idx.entries[key] = entry

	return entry.Quantity, existed
}

// applyRemove applies an optimistic decrement: drop the quantity by one, or
// delete the entry when it would reach 0. Returns the new quantity (0 when
// deleted) and whether an entry existed at all. Engine use only.
func (idx *Index) applyRemove(collectionID int64, cardID string) (newQuantity int, existed bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := entryKey{collectionID, cardID}
	entry, existed := idx.entries[key]
	if !existed {
		return 0, false
	}

	if entry.Quantity > 1 {
		entry.Quantity--
		entry.UpdatedAt = time.Now()
		idx.entries[key] = entry
		return entry.Quantity, true
	}

	delete(idx.entries, key)
	return 0, true
}
