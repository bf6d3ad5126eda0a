package collection

import (
	"context"
	"sort"

	"github.com/pokebinder/pokebinder/internal/cards"
)

// LookupCache is the slice of the metadata cache the read models need.
// Lookups never block: missing metadata comes back as a pending placeholder
// and the cache fetches it in the background.
type LookupCache interface {
	Lookup(ctx context.Context, cardID string) cards.Info
}

// CardRow is one entry joined with its card metadata for display.
type CardRow struct {
	Entry Entry
	Card  cards.Info
}

// CardGroup aggregates one card across all of the user's collections.
type CardGroup struct {
	CardID        string
	TotalQuantity int
	CollectionIDs []int64
	Card          cards.Info
}

// Stats summarizes the collection for the stats screen.
type Stats struct {
	UniqueCards   int
	TotalCards    int
	ByRarity      map[string]int
	BySet         map[string]int
	PendingLookup int // cards still waiting on metadata
}

// Views exposes derived, read-only models over the index and metadata
// cache. Everything here is recomputed on demand; nothing is cached
// separately from the index itself.
type Views struct {
	index *Index
	cache LookupCache
}

// NewViews creates the derived read models.
func NewViews(index *Index, cache LookupCache) *Views {
	return &Views{index: index, cache: cache}
}

// PerCollection returns the display rows for one collection, most recently
// updated first.
func (v *Views) PerCollection(ctx context.Context, collectionID int64) []CardRow {
	entries := v.index.EntriesFor(collectionID)

	rows := make([]CardRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, CardRow{
			Entry: entry,
			Card:  v.cache.Lookup(ctx, entry.CardID),
		})
	}

	return rows
}

// CrossCollection groups entries by card across all collections, summing
// quantities and recording the owning collections per card. Cards without
// fetched metadata render as pending; each one triggers its own background
// fetch via the cache.
func (v *Views) CrossCollection(ctx context.Context) []CardGroup {
	groups := make(map[string]*CardGroup)

	for _, entry := range v.index.All() {
		group, ok := groups[entry.CardID]
		if !ok {
			group = &CardGroup{CardID: entry.CardID}
			groups[entry.CardID] = group
		}
		group.TotalQuantity += entry.Quantity
		group.CollectionIDs = append(group.CollectionIDs, entry.CollectionID)
	}

	result := make([]CardGroup, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.CollectionIDs, func(i, j int) bool {
			return group.CollectionIDs[i] < group.CollectionIDs[j]
		})
		group.Card = v.cache.Lookup(ctx, group.CardID)
		result = append(result, *group)
	}

	// Stable display order: name when known, id otherwise
	sort.Slice(result, func(i, j int) bool {
		ni, nj := result[i].displaySortKey(), result[j].displaySortKey()
		if ni != nj {
			return ni < nj
		}
		return result[i].CardID < result[j].CardID
	})

	return result
}

// displaySortKey sorts known cards by name and pending ones by id.
func (g CardGroup) displaySortKey() string {
	if g.Card.Pending() {
		return g.CardID
	}
	return g.Card.Known.Name
}

// Stats computes summary statistics over the cross-collection view.
func (v *Views) Stats(ctx context.Context) Stats {
	stats := Stats{
		ByRarity: make(map[string]int),
		BySet:    make(map[string]int),
	}

	for _, group := range v.CrossCollection(ctx) {
		stats.UniqueCards++
		stats.TotalCards += group.TotalQuantity

		if group.Card.Pending() {
			stats.PendingLookup++
			continue
		}

		if rarity := group.Card.Known.Rarity; rarity != "" {
			stats.ByRarity[rarity] += group.TotalQuantity
		}
		if setName := group.Card.Known.SetName; setName != "" {
			stats.BySet[setName] += group.TotalQuantity
		}
	}

	return stats
}
