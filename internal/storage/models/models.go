// Package models defines the persistence models for the local cache database.
package models

import "time"

// CachedCard is the locally cached reference data for a single card.
// Rows are immutable once fetched; the catalog never changes the meaning
// of a card id.
type CachedCard struct {
	CardID          string
	Name            string
	Supertype       string
	Rarity          string
	Types           []string
	HP              string
	Number          string
	RulesText       string
	SetID           string
	SetName         string
	SetSeries       string
	SetPrintedTotal int
	ImageSmall      string
	ImageLarge      string
	TCGPlayerURL    string
	CardmarketURL   string
	FetchedAt       time.Time
}
