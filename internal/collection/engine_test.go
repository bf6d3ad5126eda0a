package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokebinder/pokebinder/internal/events"
)

func TestRequestAdd_NewCard(t *testing.T) {
	store := newFakeStore()
	engine, index, rec := newTestEngine(store, newFakeMetadata())

	// Hold the write so the optimistic state is observable.
	gate := make(chan struct{})
	store.createGate = gate

	err := engine.RequestAdd(context.Background(), "base1-4")
	require.NoError(t, err)

	// Patch and notification land before the write completes.
	assert.Equal(t, 1, index.QuantityOf(7, "base1-4"))
	notifs := rec.notifications()
	require.Len(t, notifs, 1)
	assert.Contains(t, notifs[0].Message, "Added")
	assert.Equal(t, 1, notifs[0].Quantity)

	close(gate)
	engine.Wait()

	assert.Equal(t, 1, store.quantity(7, "base1-4"))
	assert.NoError(t, indexMatchesStore(index, store))
}

func TestRequestAdd_ExistingCardIncrements(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 2)
	engine, index, _ := newTestEngine(store, newFakeMetadata())
	require.NoError(t, index.Refresh(context.Background()))

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	assert.Equal(t, 3, index.QuantityOf(7, "base1-4"))

	engine.Wait()

	created, updated, _ := store.counts()
	assert.Equal(t, 0, created, "existing entry must update, not create")
	assert.Equal(t, 1, updated)
	assert.Equal(t, 3, store.quantity(7, "base1-4"))
	assert.NoError(t, indexMatchesStore(index, store))
}

func TestRequestAdd_NoActiveCollection(t *testing.T) {
	store := newFakeStore()
	index := NewIndex(store, 1)
	rec := &recorder{}
	dispatcher := events.NewDispatcher()
	dispatcher.Register(rec)
	engine := NewEngine(index, store, newFakeMetadata(), dispatcher)

	err := engine.RequestAdd(context.Background(), "base1-4")
	require.ErrorIs(t, err, ErrNoActiveCollection)

	created, updated, _ := store.counts()
	assert.Equal(t, 0, created+updated)
	notifs := rec.notifications()
	require.Len(t, notifs, 1)
	assert.Contains(t, notifs[0].Message, "No collection selected")
}

func TestRequestAdd_MetadataFailureAborts(t *testing.T) {
	store := newFakeStore()
	meta := newFakeMetadata()
	meta.ensureErr = errors.New("catalog unreachable")
	engine, index, rec := newTestEngine(store, meta)

	err := engine.RequestAdd(context.Background(), "base1-4")
	require.Error(t, err)

	// No patch, no write when the card can't be resolved.
	assert.Equal(t, 0, index.QuantityOf(7, "base1-4"))
	created, updated, _ := store.counts()
	assert.Equal(t, 0, created+updated)

	notifs := rec.notifications()
	require.Len(t, notifs, 1)
	assert.Contains(t, notifs[0].Message, "Could not load")
}

func TestRequestAdd_DuplicateWhilePendingSendsOneWrite(t *testing.T) {
	store := newFakeStore()
	engine, index, _ := newTestEngine(store, newFakeMetadata(),
		WithPendingGrace(time.Hour)) // keep the marker alive for the whole test

	gate := make(chan struct{})
	store.createGate = gate

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))

	// Both intents patched the index; only one write was queued.
	assert.Equal(t, 2, index.QuantityOf(7, "base1-4"))

	close(gate)
	engine.Wait()

	created, updated, _ := store.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, updated)

	// The refresh walks the over-count back to server truth.
	assert.Equal(t, 1, store.quantity(7, "base1-4"))
	assert.Equal(t, 1, index.QuantityOf(7, "base1-4"))
}

func TestRequestAdd_PendingMarkerClearsAfterGrace(t *testing.T) {
	store := newFakeStore()
	engine, _, _ := newTestEngine(store, newFakeMetadata(),
		WithPendingGrace(10*time.Millisecond))

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	engine.Wait()

	// After the grace period a new add queues its own write again.
	require.Eventually(t, func() bool {
		engine.pendingMu.Lock()
		defer engine.pendingMu.Unlock()
		return len(engine.pending) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	engine.Wait()

	created, updated, _ := store.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 2, store.quantity(7, "base1-4"))
}

func TestRequestAdd_WriteFailureRefreshCorrects(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("server unavailable")
	engine, index, rec := newTestEngine(store, newFakeMetadata())

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	assert.Equal(t, 1, index.QuantityOf(7, "base1-4"), "optimistic patch applies regardless of write outcome")

	engine.Wait()

	// No rollback path: the refresh restores server truth.
	assert.Equal(t, 0, index.QuantityOf(7, "base1-4"))

	notifs := rec.notifications()
	require.Len(t, notifs, 2)
	assert.Contains(t, notifs[0].Message, "Added")
	assert.Contains(t, notifs[1].Message, "re-sync")
}

func TestRequestAdd_ConflictFallsBackToUpdate(t *testing.T) {
	store := newFakeStore()
	// Entry exists remotely but the local index hasn't seen it yet, so the
	// engine tries a create and hits the conflict.
	store.seed(7, "base1-4", 2)
	engine, index, _ := newTestEngine(store, newFakeMetadata())

	require.NoError(t, engine.RequestAdd(context.Background(), "base1-4"))
	engine.Wait()

	created, updated, _ := store.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated, "conflict must fall back to an update")
	assert.NoError(t, indexMatchesStore(index, store))
}

func TestRequestRemove_DecrementsAboveOne(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 3)
	engine, index, rec := newTestEngine(store, newFakeMetadata())
	require.NoError(t, index.Refresh(context.Background()))

	require.NoError(t, engine.RequestRemove(context.Background(), "base1-4"))
	assert.Equal(t, 2, index.QuantityOf(7, "base1-4"))

	engine.Wait()

	_, updated, deleted := store.counts()
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 2, store.quantity(7, "base1-4"))

	notifs := rec.notifications()
	require.NotEmpty(t, notifs)
	assert.Contains(t, notifs[0].Message, "Removed one")
}

func TestRequestRemove_LastCopyDeletes(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 1)
	engine, index, _ := newTestEngine(store, newFakeMetadata())
	require.NoError(t, index.Refresh(context.Background()))

	require.NoError(t, engine.RequestRemove(context.Background(), "base1-4"))
	assert.Equal(t, 0, index.QuantityOf(7, "base1-4"))

	engine.Wait()

	_, updated, deleted := store.counts()
	assert.Equal(t, 0, updated)
	assert.Equal(t, 1, deleted)
	assert.Empty(t, store.snapshot())
	assert.Equal(t, 0, index.Len())
}

func TestRequestRemove_AbsentCardIsIdempotent(t *testing.T) {
	store := newFakeStore()
	engine, _, rec := newTestEngine(store, newFakeMetadata())

	require.NoError(t, engine.RequestRemove(context.Background(), "base1-4"))
	engine.Wait()

	_, updated, deleted := store.counts()
	assert.Equal(t, 0, updated+deleted, "removing an absent card must not touch the store")

	notifs := rec.notifications()
	require.Len(t, notifs, 1)
	assert.Contains(t, notifs[0].Message, "is not in")
}

func TestRequestRemove_ServerNotFoundConverges(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 1)
	engine, index, rec := newTestEngine(store, newFakeMetadata())
	require.NoError(t, index.Refresh(context.Background()))

	// Another device deletes the entry between refresh and remove.
	store.mu.Lock()
	delete(store.entries, entryKey{7, "base1-4"})
	store.mu.Unlock()

	require.NoError(t, engine.RequestRemove(context.Background(), "base1-4"))
	engine.Wait()

	assert.Equal(t, 0, index.Len())

	notifs := rec.notifications()
	require.Len(t, notifs, 2)
	assert.Contains(t, notifs[1].Message, "not found on the server")
}

func TestSetActiveCollection_PublishesChange(t *testing.T) {
	store := newFakeStore()
	engine, _, rec := newTestEngine(store, newFakeMetadata())

	engine.SetActiveCollection(context.Background(), Collection{ID: 9, Name: "Trades"})

	active, ok := engine.ActiveCollection()
	require.True(t, ok)
	assert.Equal(t, int64(9), active.ID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var changes int
	for _, event := range rec.events {
		if event.Type == events.TypeActiveCollectionChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes, "newTestEngine sets one active collection, the test a second")
}

func TestEngine_InterleavedOpsConverge(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 2)
	store.seed(7, "base1-58", 1)
	engine, index, _ := newTestEngine(store, newFakeMetadata(),
		WithPendingGrace(time.Millisecond))
	require.NoError(t, index.Refresh(context.Background()))

	ctx := context.Background()
	require.NoError(t, engine.RequestAdd(ctx, "base1-4"))
	require.NoError(t, engine.RequestRemove(ctx, "base1-58"))
	require.NoError(t, engine.RequestAdd(ctx, "base1-16"))
	engine.Wait()

	assert.NoError(t, indexMatchesStore(index, store))
	assert.Equal(t, 3, store.quantity(7, "base1-4"))
	assert.Equal(t, 0, store.quantity(7, "base1-58"))
	assert.Equal(t, 1, store.quantity(7, "base1-16"))
}
