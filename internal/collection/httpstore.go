package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig holds configuration for the remote store HTTP client.
type ClientConfig struct {
	// BaseURL is the base URL of the collection API (e.g., "https://binder.example.com/api")
	BaseURL string

	// Timeout is the timeout for individual requests
	Timeout time.Duration

	// AuthToken is the bearer token for the current session, if any
	AuthToken string
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// HTTPStore is the REST implementation of RemoteStore.
type HTTPStore struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewHTTPStore creates a new HTTP-backed remote store client.
func NewHTTPStore(config *ClientConfig) *HTTPStore {
	return &HTTPStore{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// entryPayload is the wire shape for create/update requests.
type entryPayload struct {
	CardID   string `json:"cardId"`
	Quantity int    `json:"quantity"`
}

// ListEntries returns all entries across the user's collections.
func (s *HTTPStore) ListEntries(ctx context.Context, userID int64) ([]Entry, error) {
	var entries []Entry
	path := fmt.Sprintf("/users/%d/entries", userID)
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &entries, 0, ""); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// ListCollections returns the user's collections.
func (s *HTTPStore) ListCollections(ctx context.Context, userID int64) ([]Collection, error) {
	var collections []Collection
	path := fmt.Sprintf("/users/%d/collections", userID)
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &collections, 0, ""); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return collections, nil
}

// CreateEntry creates a new entry for the (collection, card) pair.
func (s *HTTPStore) CreateEntry(ctx context.Context, collectionID int64, cardID string, quantity int) (*Entry, error) {
	var entry Entry
	path := fmt.Sprintf("/collections/%d/cards", collectionID)
	body := entryPayload{CardID: cardID, Quantity: quantity}
	if err := s.doRequest(ctx, http.MethodPost, path, body, &entry, collectionID, cardID); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	return &entry, nil
}

// UpdateQuantity sets the quantity of an existing entry.
func (s *HTTPStore) UpdateQuantity(ctx context.Context, collectionID int64, cardID string, quantity int) (*Entry, error) {
	var entry Entry
	path := fmt.Sprintf("/collections/%d/cards/%s", collectionID, cardID)
	body := entryPayload{CardID: cardID, Quantity: quantity}
	if err := s.doRequest(ctx, http.MethodPut, path, body, &entry, collectionID, cardID); err != nil {
		return nil, fmt.Errorf("failed to update quantity: %w", err)
	}
	return &entry, nil
}

// DeleteEntry removes an entry.
func (s *HTTPStore) DeleteEntry(ctx context.Context, collectionID int64, cardID string) error {
	path := fmt.Sprintf("/collections/%d/cards/%s", collectionID, cardID)
	if err := s.doRequest(ctx, http.MethodDelete, path, nil, nil, collectionID, cardID); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// doRequest performs a JSON request against the store API and decodes the
// response into result (when non-nil). 404 and 409 map onto the typed
// errors so callers can branch with errors.As.
func (s *HTTPStore) doRequest(ctx context.Context, method, path string, body, result interface{}, collectionID int64, cardID string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if result == nil {
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return nil

	case http.StatusNoContent:
		return nil

	case http.StatusNotFound:
		return &NotFoundError{CollectionID: collectionID, CardID: cardID}

	case http.StatusConflict:
		return &ConflictError{CollectionID: collectionID, CardID: cardID}

	default:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store request failed with status %d: %s", resp.StatusCode, string(data))
	}
}
