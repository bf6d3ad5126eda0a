package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pokebinder/pokebinder/internal/cards"
	"github.com/pokebinder/pokebinder/internal/events"
	"github.com/pokebinder/pokebinder/internal/storage/models"
)

// fakeStore is an in-memory RemoteStore with call counters and failure/
// blocking hooks for exercising the engine's background paths.
type fakeStore struct {
	mu      sync.Mutex
	entries map[entryKey]Entry

	listErr   error
	createErr error
	updateErr error
	deleteErr error

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int

	// When non-nil, the corresponding write blocks until the channel closes.
	createGate chan struct{}
	updateGate chan struct{}
	deleteGate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[entryKey]Entry)}
}

func (s *fakeStore) seed(collectionID int64, cardID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey{collectionID, cardID}] = Entry{
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		UpdatedAt:    time.Now(),
	}
}

func (s *fakeStore) quantity(collectionID int64, cardID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[entryKey{collectionID, cardID}].Quantity
}

func (s *fakeStore) snapshot() map[entryKey]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[entryKey]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *fakeStore) counts() (created, updated, deleted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls, s.updateCalls, s.deleteCalls
}

func (s *fakeStore) ListEntries(_ context.Context, _ int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *fakeStore) ListCollections(_ context.Context, userID int64) ([]Collection, error) {
	return []Collection{{ID: 7, Name: "Base Binder", OwnerID: userID}}, nil
}

func (s *fakeStore) CreateEntry(_ context.Context, collectionID int64, cardID string, quantity int) (*Entry, error) {
	s.mu.Lock()
	gate := s.createGate
	s.createCalls++
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	key := entryKey{collectionID, cardID}
	if _, exists := s.entries[key]; exists {
		return nil, &ConflictError{CollectionID: collectionID, CardID: cardID}
	}
	entry := Entry{CollectionID: collectionID, CardID: cardID, Quantity: quantity, UpdatedAt: time.Now()}
	s.entries[key] = entry
	return &entry, nil
}

func (s *fakeStore) UpdateQuantity(_ context.Context, collectionID int64, cardID string, quantity int) (*Entry, error) {
	s.mu.Lock()
	gate := s.updateGate
	s.updateCalls++
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	key := entryKey{collectionID, cardID}
	if _, exists := s.entries[key]; !exists {
		return nil, &NotFoundError{CollectionID: collectionID, CardID: cardID}
	}
	if quantity < 1 {
		quantity = 1 // server-side clamp
	}
	entry := Entry{CollectionID: collectionID, CardID: cardID, Quantity: quantity, UpdatedAt: time.Now()}
	s.entries[key] = entry
	return &entry, nil
}

func (s *fakeStore) DeleteEntry(_ context.Context, collectionID int64, cardID string) error {
	s.mu.Lock()
	gate := s.deleteGate
	s.deleteCalls++
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	key := entryKey{collectionID, cardID}
	if _, exists := s.entries[key]; !exists {
		return &NotFoundError{CollectionID: collectionID, CardID: cardID}
	}
	delete(s.entries, key)
	return nil
}

// fakeMetadata serves metadata without touching the network.
type fakeMetadata struct {
	mu        sync.Mutex
	ensureErr error
	known     map[string]bool // Lookup returns pending unless marked known
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{known: make(map[string]bool)}
}

func (f *fakeMetadata) record(cardID string) *models.CachedCard {
	return &models.CachedCard{
		CardID:  cardID,
		Name:    "Card " + cardID,
		Rarity:  "Rare Holo",
		SetName: "Base",
	}
}

func (f *fakeMetadata) Ensure(_ context.Context, cardID string) (*models.CachedCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	f.known[cardID] = true
	return f.record(cardID), nil
}

func (f *fakeMetadata) Lookup(_ context.Context, cardID string) cards.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known[cardID] {
		return cards.Info{CardID: cardID, Known: f.record(cardID)}
	}
	return cards.Info{CardID: cardID}
}

// recorder captures dispatched events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) OnEvent(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) GetName() string { return "recorder" }

func (r *recorder) ShouldHandle(string) bool { return true }

func (r *recorder) notifications() []events.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Notification
	for _, event := range r.events {
		if n, ok := events.TypedData[events.Notification](event); ok {
			out = append(out, n)
		}
	}
	return out
}

// newTestEngine wires an engine over fakes with a short grace period.
func newTestEngine(store *fakeStore, meta *fakeMetadata, opts ...EngineOption) (*Engine, *Index, *recorder) {
	index := NewIndex(store, 1)
	dispatcher := events.NewDispatcher()
	rec := &recorder{}
	dispatcher.Register(rec)

	allOpts := append([]EngineOption{WithPendingGrace(20 * time.Millisecond)}, opts...)
	engine := NewEngine(index, store, meta, dispatcher, allOpts...)
	engine.SetActiveCollection(context.Background(), Collection{ID: 7, Name: "Base Binder"})

	return engine, index, rec
}

// indexMatchesStore reports whether the index snapshot equals the store's.
func indexMatchesStore(index *Index, store *fakeStore) error {
	storeEntries := store.snapshot()
	indexEntries := index.All()

	if len(indexEntries) != len(storeEntries) {
		return fmt.Errorf("index has %d entries, store has %d", len(indexEntries), len(storeEntries))
	}
	for _, entry := range indexEntries {
		stored, ok := storeEntries[entryKey{entry.CollectionID, entry.CardID}]
		if !ok {
			return fmt.Errorf("index entry (%d, %s) missing from store", entry.CollectionID, entry.CardID)
		}
		if stored.Quantity != entry.Quantity {
			return fmt.Errorf("quantity mismatch for (%d, %s): index %d, store %d",
				entry.CollectionID, entry.CardID, entry.Quantity, stored.Quantity)
		}
	}
	return nil
}
