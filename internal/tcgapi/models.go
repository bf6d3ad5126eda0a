package tcgapi

import "fmt"

// Card represents a card from the Pokémon TCG API.
type Card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Supertype   string   `json:"supertype"`
	Subtypes    []string `json:"subtypes,omitempty"`
	Level       string   `json:"level,omitempty"`
	HP          string   `json:"hp,omitempty"`
	Types       []string `json:"types,omitempty"`
	EvolvesFrom string   `json:"evolvesFrom,omitempty"`

	Abilities []Ability `json:"abilities,omitempty"`
	Attacks   []Attack  `json:"attacks,omitempty"`
	Rules     []string  `json:"rules,omitempty"`

	Weaknesses  []TypeValue `json:"weaknesses,omitempty"`
	Resistances []TypeValue `json:"resistances,omitempty"`
	RetreatCost []string    `json:"retreatCost,omitempty"`

	// Print details
	Set        Set    `json:"set"`
	Number     string `json:"number"`
	Artist     string `json:"artist,omitempty"`
	Rarity     string `json:"rarity,omitempty"`
	FlavorText string `json:"flavorText,omitempty"`

	NationalPokedexNumbers []int `json:"nationalPokedexNumbers,omitempty"`

	Images CardImages `json:"images"`

	// Marketplace links
	TCGPlayer  *MarketLink `json:"tcgplayer,omitempty"`
	Cardmarket *MarketLink `json:"cardmarket,omitempty"`
}

// Ability represents a Pokémon ability printed on a card.
type Ability struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// Attack represents an attack printed on a card.
type Attack struct {
	Name                string   `json:"name"`
	Cost                []string `json:"cost,omitempty"`
	ConvertedEnergyCost int      `json:"convertedEnergyCost"`
	Damage              string   `json:"damage,omitempty"`
	Text                string   `json:"text,omitempty"`
}

// TypeValue pairs an energy type with a modifier (e.g. weakness "Fire" ×2).
type TypeValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CardImages contains URLs for card images.
type CardImages struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

// MarketLink points at a marketplace listing for a card.
type MarketLink struct {
	URL       string `json:"url"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Set represents a card set from the Pokémon TCG API.
type Set struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Series       string    `json:"series"`
	PrintedTotal int       `json:"printedTotal"`
	Total        int       `json:"total"`
	PTCGOCode    string    `json:"ptcgoCode,omitempty"`
	ReleaseDate  string    `json:"releaseDate,omitempty"`
	Images       SetImages `json:"images"`
}

// SetImages contains URLs for set symbol and logo images.
type SetImages struct {
	Symbol string `json:"symbol"`
	Logo   string `json:"logo"`
}

// cardEnvelope wraps a single-card response.
// The API nests every payload under a "data" key.
type cardEnvelope struct {
	Data Card `json:"data"`
}

// setEnvelope wraps a single-set response.
type setEnvelope struct {
	Data Set `json:"data"`
}

// CardList represents a paginated list of cards.
type CardList struct {
	Data       []Card `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Count      int    `json:"count"`
	TotalCount int    `json:"totalCount"`
}

// SetList represents a paginated list of sets.
type SetList struct {
	Data       []Set `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Count      int   `json:"count"`
	TotalCount int   `json:"totalCount"`
}

// APIError represents an error response from the Pokémon TCG API.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("pokemontcg API error (HTTP %d): %s", e.Status, e.Message)
}

// NotFoundError represents a 404 error from the API.
type NotFoundError struct {
	URL string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
