package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/launchcg/stratum/internal/errors"
)

// maxDocumentSize bounds the size of a single repository document.
const maxDocumentSize = 16 << 20

// HTTPSStore reads repository documents from an HTTP(S) server.
type HTTPSStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSStore creates a store from an HTTPS URL. The URL is the base URL
// of the repository (without index.json). A nil client uses a client with a
// 30 second timeout.
func NewHTTPSStore(url string, client *http.Client) (*HTTPSStore, error) {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, errors.NewRepositoryError(url, "connect", fmt.Errorf("invalid URL scheme: expected https:// or http://"))
	}

	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &HTTPSStore{
		baseURL: strings.TrimSuffix(url, "/"),
		client:  client,
	}, nil
}

// Location returns the base URL.
func (s *HTTPSStore) Location() string {
	return s.baseURL
}

// Get downloads key relative to the base URL.
func (s *HTTPSStore) Get(ctx context.Context, key string) ([]byte, error) {
	url := s.baseURL + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFoundError("document", url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}
