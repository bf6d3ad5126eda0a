package collection

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pokebinder/pokebinder/internal/events"
	"github.com/pokebinder/pokebinder/internal/storage/models"
)

// DefaultPendingGrace is how long a pending-operation marker outlives its
// background write. Clearing on a delay rather than immediately absorbs
// re-render races in the view layer.
const DefaultPendingGrace = 500 * time.Millisecond

// MetadataCache is the slice of the card metadata cache the engine needs.
// The add path blocks on Ensure: the entry snapshot stored remotely carries
// the card's name and image fields.
type MetadataCache interface {
	Ensure(ctx context.Context, cardID string) (*models.CachedCard, error)
}

// Engine applies add/remove intents optimistically to the Index and
// reconciles with the RemoteStore in the background.
//
// The ordering contract: the index patch and the user notification happen
// before any network I/O, and every background write is followed by an
// unconditional Refresh so the index converges on server truth within one
// round trip. Failed writes are not rolled back; the refresh is the sole
// correction mechanism.
type Engine struct {
	index      *Index
	store      RemoteStore
	cache      MetadataCache
	dispatcher *events.Dispatcher

	pendingGrace time.Duration

	activeMu sync.RWMutex
	active   *Collection

	pendingMu sync.Mutex
	pending   map[string]bool

	// wg tracks background writes so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPendingGrace overrides the pending-marker grace period.
func WithPendingGrace(d time.Duration) EngineOption {
	return func(e *Engine) { e.pendingGrace = d }
}

// NewEngine creates an optimistic update engine over the given index, store
// and metadata cache. Notifications and state changes are published through
// the dispatcher.
func NewEngine(index *Index, store RemoteStore, cache MetadataCache, dispatcher *events.Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		index:        index,
		store:        store,
		cache:        cache,
		dispatcher:   dispatcher,
		pendingGrace: DefaultPendingGrace,
		pending:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetActiveCollection selects the collection mutations apply to and
// announces the change to subscribers.
func (e *Engine) SetActiveCollection(ctx context.Context, c Collection) {
	e.activeMu.Lock()
	e.active = &c
	e.activeMu.Unlock()

	e.dispatcher.Dispatch(events.NewActiveCollectionChanged(ctx, events.ActiveCollectionChanged{
		CollectionID: c.ID,
		Name:         c.Name,
	}))
}

// ActiveCollection returns the currently selected collection, if any.
func (e *Engine) ActiveCollection() (Collection, bool) {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()

	if e.active == nil {
		return Collection{}, false
	}
	return *e.active, true
}

// RequestAdd adds one copy of a card to the active collection.
//
// The index is patched and the success notification emitted before the
// durable write starts; the write itself and the follow-up refresh run in
// the background. A second add for the same card while a write is pending
// patches the index again but does not queue a second write; the forced
// refresh reconciles the difference.
func (e *Engine) RequestAdd(ctx context.Context, cardID string) error {
	active, ok := e.ActiveCollection()
	if !ok {
		e.notify(ctx, events.LevelError, "No collection selected", 0, cardID, 0)
		return ErrNoActiveCollection
	}

	// The snapshot stored with the entry needs name/image/set fields, so
	// this fetch is awaited rather than optimistic.
	card, err := e.cache.Ensure(ctx, cardID)
	if err != nil {
		e.notify(ctx, events.LevelError, fmt.Sprintf("Could not load card %s", cardID), active.ID, cardID, 0)
		return fmt.Errorf("failed to load metadata for %s: %w", cardID, err)
	}

	newQuantity, existed := e.index.applyAdd(active.ID, cardID)

	e.notify(ctx, events.LevelSuccess,
		fmt.Sprintf("Added %s to %s (x%d)", card.Name, active.Name, newQuantity),
		active.ID, cardID, newQuantity)

	key := pendingKey("add", active.ID, cardID)
	if !e.markPending(key) {
		// A write for this key is already in flight; the optimistic patch
		// above stands and the post-write refresh reconciles it.
		log.Printf("[Engine] Dropped duplicate add for %s", key)
		return nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.clearPendingAfterGrace(key)

		var writeErr error
		if existed {
			_, writeErr = e.store.UpdateQuantity(context.Background(), active.ID, cardID, newQuantity)
		} else {
			_, writeErr = e.store.CreateEntry(context.Background(), active.ID, cardID, 1)
			if IsConflict(writeErr) {
				// Another client created the entry first; fall back to update.
				log.Printf("[Engine] Create conflict for %s, falling back to update", key)
				_, writeErr = e.store.UpdateQuantity(context.Background(), active.ID, cardID, newQuantity)
			}
		}

		if writeErr != nil {
			log.Printf("[Engine] Background add write failed for %s: %v", key, writeErr)
			e.notify(context.Background(), events.LevelError,
				fmt.Sprintf("Could not save %s, your collection will re-sync", card.Name),
				active.ID, cardID, newQuantity)
		}

		e.refresh()
	}()

	return nil
}

// RequestRemove removes one copy of a card from the active collection.
// Dropping to quantity 0 deletes the entry outright.
func (e *Engine) RequestRemove(ctx context.Context, cardID string) error {
	active, ok := e.ActiveCollection()
	if !ok {
		e.notify(ctx, events.LevelError, "No collection selected", 0, cardID, 0)
		return ErrNoActiveCollection
	}

	newQuantity, existed := e.index.applyRemove(active.ID, cardID)
	if !existed {
		e.notify(ctx, events.LevelWarning,
			fmt.Sprintf("Card %s is not in %s", cardID, active.Name),
			active.ID, cardID, 0)
		return nil
	}

	if newQuantity > 0 {
		e.notify(ctx, events.LevelSuccess,
			fmt.Sprintf("Removed one from %s (x%d)", active.Name, newQuantity),
			active.ID, cardID, newQuantity)
	} else {
		e.notify(ctx, events.LevelSuccess,
			fmt.Sprintf("Removed %s from %s", cardID, active.Name),
			active.ID, cardID, 0)
	}

	key := pendingKey("remove", active.ID, cardID)
	if !e.markPending(key) {
		log.Printf("[Engine] Dropped duplicate remove for %s", key)
		return nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.clearPendingAfterGrace(key)

		var writeErr error
		if newQuantity > 0 {
			_, writeErr = e.store.UpdateQuantity(context.Background(), active.ID, cardID, newQuantity)
		} else {
			writeErr = e.store.DeleteEntry(context.Background(), active.ID, cardID)
		}

		if writeErr != nil {
			log.Printf("[Engine] Background remove write failed for %s: %v", key, writeErr)
			message := fmt.Sprintf("Could not update %s, your collection will re-sync", cardID)
			if IsNotFound(writeErr) {
				message = fmt.Sprintf("Card %s was not found on the server", cardID)
			}
			e.notify(context.Background(), events.LevelError, message, active.ID, cardID, newQuantity)
		}

		e.refresh()
	}()

	return nil
}

// Wait blocks until all in-flight background writes (and their refreshes)
// have completed. Pending markers may still be within their grace period.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// refresh reconciles the index with the remote store after a write,
// success or failure alike. Errors keep the previous snapshot and are
// logged; the next operation's refresh tries again.
func (e *Engine) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.index.Refresh(ctx); err != nil {
		log.Printf("[Engine] Post-write refresh failed: %v", err)
		return
	}

	e.dispatcher.Dispatch(events.NewIndexRefreshed(ctx, events.IndexRefreshed{
		EntryCount: e.index.Len(),
	}))
}

// markPending records a pending operation. Returns false if the key is
// already pending, in which case the caller must not start another write.
func (e *Engine) markPending(key string) bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	if e.pending[key] {
		return false
	}
	e.pending[key] = true
	return true
}

// clearPendingAfterGrace drops a pending marker a short while after its
// write completed, so a burst of re-renders right at completion still
// dedupes against the finished operation.
func (e *Engine) clearPendingAfterGrace(key string) {
	time.AfterFunc(e.pendingGrace, func() {
		e.pendingMu.Lock()
		delete(e.pending, key)
		e.pendingMu.Unlock()
	})
}

// notify dispatches exactly one user-facing notification for an intent.
func (e *Engine) notify(ctx context.Context, level events.Level, message string, collectionID int64, cardID string, quantity int) {
	e.dispatcher.Dispatch(events.NewNotification(ctx, events.Notification{
		Level:        level,
		Message:      message,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
	}))
}

// pendingKey builds the dedup key for one operation on one pair.
func pendingKey(op string, collectionID int64, cardID string) string {
	return fmt.Sprintf("%s-%d-%s", op, collectionID, cardID)
}
