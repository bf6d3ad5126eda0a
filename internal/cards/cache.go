// Package cards provides the card metadata cache: a memory map over a
// durable local store, populated lazily from the reference catalog.
package cards

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pokebinder/pokebinder/internal/storage/models"
	"github.com/pokebinder/pokebinder/internal/tcgapi"
)

// fetchTimeout bounds background metadata fetches kicked off by Lookup.
const fetchTimeout = 30 * time.Second

// CatalogClient is the subset of the reference catalog the cache needs.
type CatalogClient interface {
	GetCard(ctx context.Context, id string) (*tcgapi.Card, error)
}

// Repository is the durable backing store for cached metadata.
type Repository interface {
	Get(ctx context.Context, cardID string) (*models.CachedCard, error)
	GetMany(ctx context.Context, cardIDs []string) (map[string]*models.CachedCard, error)
	Put(ctx context.Context, card *models.CachedCard) error
}

// Info is the tagged result of a cache lookup: either a fetched record or a
// pending placeholder for a card known only by id. Callers branch on Pending
// instead of probing field presence.
type Info struct {
	CardID string
	Known  *models.CachedCard
}

// Pending reports whether the record has not been fetched yet.
func (i Info) Pending() bool {
	return i.Known == nil
}

// DisplayName returns the card name, or the loading placeholder while the
// record is pending.
func (i Info) DisplayName() string {
	if i.Known == nil {
		return "Loading..."
	}
	return i.Known.Name
}

// Cache is the card metadata cache. Entries are kept indefinitely: the
// reference catalog is small and card ids never change meaning, so there is
// no eviction.
type Cache struct {
	repo    Repository
	catalog CatalogClient

	mu  sync.RWMutex
	mem map[string]*models.CachedCard

	// inflight suppresses duplicate background fetches per card id.
	inflightMu sync.Mutex
	inflight   map[string]bool
}

// NewCache creates a metadata cache over the given durable repository and
// catalog client.
func NewCache(repo Repository, catalog CatalogClient) *Cache {
	return &Cache{
		repo:     repo,
		catalog:  catalog,
		mem:      make(map[string]*models.CachedCard),
		inflight: make(map[string]bool),
	}
}

// Lookup returns the cached record for cardID, or a pending placeholder.
// On a miss it kicks off a background fetch so a later lookup succeeds;
// callers must tolerate the placeholder until then.
func (c *Cache) Lookup(ctx context.Context, cardID string) Info {
	c.mu.RLock()
	card, ok := c.mem[cardID]
	c.mu.RUnlock()
	if ok {
		return Info{CardID: cardID, Known: card}
	}

	// Promote from the durable store if a previous session fetched it.
	stored, err := c.repo.Get(ctx, cardID)
	if err != nil {
		log.Printf("[Cache] Durable lookup failed for %s: %v", cardID, err)
	} else if stored != nil {
		c.promote(stored)
		return Info{CardID: cardID, Known: stored}
	}

	c.fetchAsync(cardID)
	return Info{CardID: cardID}
}

// Ensure returns the record for cardID, fetching from the catalog if needed.
// Unlike Lookup this blocks on the fetch; the add path needs the name and
// image fields before it can store an entry snapshot.
func (c *Cache) Ensure(ctx context.Context, cardID string) (*models.CachedCard, error) {
	c.mu.RLock()
	card, ok := c.mem[cardID]
	c.mu.RUnlock()
	if ok {
		return card, nil
	}

	stored, err := c.repo.Get(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("durable cache lookup for %s: %w", cardID, err)
	}
	if stored != nil {
		c.promote(stored)
		return stored, nil
	}

	return c.fetch(ctx, cardID)
}

// fetch retrieves a card from the catalog and populates both cache tiers.
func (c *Cache) fetch(ctx context.Context, cardID string) (*models.CachedCard, error) {
	apiCard, err := c.catalog.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch for %s: %w", cardID, err)
	}

	card := convertCard(apiCard, time.Now())

	if err := c.repo.Put(ctx, card); err != nil {
		// The in-memory copy still serves this session.
		log.Printf("[Cache] Failed to persist %s: %v", cardID, err)
	}

	c.promote(card)
	return card, nil
}

// fetchAsync starts a background fetch for cardID unless one is in flight.
// Failures leave the placeholder in place; a later Lookup re-triggers.
func (c *Cache) fetchAsync(cardID string) {
	c.inflightMu.Lock()
	if c.inflight[cardID] {
		c.inflightMu.Unlock()
		return
	}
	c.inflight[cardID] = true
	c.inflightMu.Unlock()

	go func() {
		defer func() {
			c.inflightMu.Lock()
			delete(c.inflight, cardID)
			c.inflightMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		if _, err := c.fetch(ctx, cardID); err != nil {
			log.Printf("[Cache] Background fetch failed for %s: %v", cardID, err)
		}
	}()
}

// promote installs a record in the memory tier.
func (c *Cache) promote(card *models.CachedCard) {
	c.mu.Lock()
	c.mem[card.CardID] = card
	c.mu.Unlock()
}

// convertCard converts a catalog card to the persistence model.
func convertCard(apiCard *tcgapi.Card, fetchedAt time.Time) *models.CachedCard {
	card := &models.CachedCard{
		CardID:          apiCard.ID,
		Name:            apiCard.Name,
		Supertype:       apiCard.Supertype,
		Rarity:          apiCard.Rarity,
		Types:           apiCard.Types,
		HP:              apiCard.HP,
		Number:          apiCard.Number,
		RulesText:       rulesText(apiCard),
		SetID:           apiCard.Set.ID,
		SetName:         apiCard.Set.Name,
		SetSeries:       apiCard.Set.Series,
		SetPrintedTotal: apiCard.Set.PrintedTotal,
		ImageSmall:      apiCard.Images.Small,
		ImageLarge:      apiCard.Images.Large,
		FetchedAt:       fetchedAt,
	}

	if apiCard.TCGPlayer != nil {
		card.TCGPlayerURL = apiCard.TCGPlayer.URL
	}
	if apiCard.Cardmarket != nil {
		card.CardmarketURL = apiCard.Cardmarket.URL
	}

	return card
}

// rulesText flattens abilities, attacks and rules into a single display blob.
func rulesText(apiCard *tcgapi.Card) string {
	var parts []string

	for _, ability := range apiCard.Abilities {
		parts = append(parts, fmt.Sprintf("%s: %s", ability.Name, ability.Text))
	}
	for _, attack := range apiCard.Attacks {
		if attack.Text != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", attack.Name, attack.Text))
		} else if attack.Damage != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", attack.Name, attack.Damage))
		}
	}
	parts = append(parts, apiCard.Rules...)

	return strings.Join(parts, "\n")
}
