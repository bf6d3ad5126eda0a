// Package repository provides data access for the local cache database.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pokebinder/pokebinder/internal/storage/models"
)

// CardCacheRepository handles database operations for cached card metadata.
type CardCacheRepository interface {
	// Get retrieves a cached card by id. Returns (nil, nil) on a cache miss.
	Get(ctx context.Context, cardID string) (*models.CachedCard, error)

	// GetMany retrieves all cached cards for the given ids.
	// Missing ids are simply absent from the result.
	GetMany(ctx context.Context, cardIDs []string) (map[string]*models.CachedCard, error)

	// Put inserts or replaces a cached card.
	Put(ctx context.Context, card *models.CachedCard) error

	// Count returns the number of cached cards.
	Count(ctx context.Context) (int, error)
}

// cardCacheRepository is the concrete implementation of CardCacheRepository.
type cardCacheRepository struct {
	db *sql.DB
}

// NewCardCacheRepository creates a new card cache repository.
func NewCardCacheRepository(db *sql.DB) CardCacheRepository {
	return &cardCacheRepository{db: db}
}

const cardCacheColumns = `card_id, name, supertype, rarity, types, hp, number, rules_text,
	set_id, set_name, set_series, set_printed_total,
	image_small, image_large, tcgplayer_url, cardmarket_url, fetched_at`

// Get retrieves a cached card by id.
func (r *cardCacheRepository) Get(ctx context.Context, cardID string) (*models.CachedCard, error) {
	query := fmt.Sprintf(`SELECT %s FROM card_cache WHERE card_id = ?`, cardCacheColumns)

	card, err := scanCachedCard(r.db.QueryRowContext(ctx, query, cardID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached card: %w", err)
	}

	return card, nil
}

// GetMany retrieves all cached cards for the given ids.
func (r *cardCacheRepository) GetMany(ctx context.Context, cardIDs []string) (map[string]*models.CachedCard, error) {
	result := make(map[string]*models.CachedCard, len(cardIDs))
	if len(cardIDs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(cardIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT %s FROM card_cache WHERE card_id IN (%s)`, cardCacheColumns, placeholders)

	args := make([]interface{}, len(cardIDs))
	for i, id := range cardIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		card, err := scanCachedCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cached card: %w", err)
		}
		result[card.CardID] = card
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached cards: %w", err)
	}

	return result, nil
}

// Put inserts or replaces a cached card.
func (r *cardCacheRepository) Put(ctx context.Context, card *models.CachedCard) error {
	query := `
		INSERT INTO card_cache (
			card_id, name, supertype, rarity, types, hp, number, rules_text,
			set_id, set_name, set_series, set_printed_total,
			image_small, image_large, tcgplayer_url, cardmarket_url, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			name = excluded.name,
			supertype = excluded.supertype,
			rarity = excluded.rarity,
			types = excluded.types,
			hp = excluded.hp,
			number = excluded.number,
			rules_text = excluded.rules_text,
			set_id = excluded.set_id,
			set_name = excluded.set_name,
			set_series = excluded.set_series,
			set_printed_total = excluded.set_printed_total,
			image_small = excluded.image_small,
			image_large = excluded.image_large,
			tcgplayer_url = excluded.tcgplayer_url,
			cardmarket_url = excluded.cardmarket_url,
			fetched_at = excluded.fetched_at
	`

	_, err := r.db.ExecContext(ctx, query,
		card.CardID, card.Name, card.Supertype, card.Rarity, strings.Join(card.Types, ","),
		card.HP, card.Number, card.RulesText,
		card.SetID, card.SetName, card.SetSeries, card.SetPrintedTotal,
		card.ImageSmall, card.ImageLarge, card.TCGPlayerURL, card.CardmarketURL,
		card.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put cached card: %w", err)
	}

	return nil
}

// Count returns the number of cached cards.
func (r *cardCacheRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM card_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cached cards: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanCachedCard.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCachedCard scans a card_cache row into a CachedCard.
func scanCachedCard(row rowScanner) (*models.CachedCard, error) {
	var card models.CachedCard
	var types string

	err := row.Scan(
		&card.CardID, &card.Name, &card.Supertype, &card.Rarity, &types,
		&card.HP, &card.Number, &card.RulesText,
		&card.SetID, &card.SetName, &card.SetSeries, &card.SetPrintedTotal,
		&card.ImageSmall, &card.ImageLarge, &card.TCGPlayerURL, &card.CardmarketURL,
		&card.FetchedAt,
	)
	if err != nil {
		return nil, err
	}

	if types != "" {
		card.Types = strings.Split(types, ",")
	}

	return &card, nil
}
