package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// HTTPStore implements store.ListingStore against the marketplace listing API:
//
//	GET {base}/listings/{type}/{id}  ->  {"ownerId": "..."}
type HTTPStore struct {
	base   string
	apiKey string
	client *http.Client
}

// NewHTTPStore creates a store for apiBase. apiKey, when set, is sent as a
// bearer token.
func NewHTTPStore(apiBase, apiKey string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		base:   strings.TrimRight(apiBase, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) ListingOwner(ctx context.Context, key chat.ConversationKey) (string, error) {
	u := s.base + "/listings/" + url.PathEscape(string(key.ListingType)) + "/" + url.PathEscape(key.ListingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("listing api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", store.ErrListingNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("listing api returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode listing response: %w", err)
	}
	if result.OwnerID == "" {
		return "", store.ErrListingNotFound
	}
	return result.OwnerID, nil
}
