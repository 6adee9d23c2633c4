// Package kvstore persists the ledger document in a remote REST key-value
// store (Upstash-style: GET /get/{key}, POST /set/{key}, bearer token).
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	defaultKey     = "post_it_ledger"
)

// Backend talks to the remote KV endpoint.
type Backend struct {
	baseURL    string
	token      string
	key        string
	httpClient *http.Client
}

// New returns a KV backend for the given REST endpoint.
func New(baseURL string, token string) (*Backend, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("kvstore: base url is required")
	}
	return &Backend{
		baseURL:    trimmed,
		token:      token,
		key:        defaultKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Name identifies the backend in logs.
func (backend *Backend) Name() string {
	return "kv"
}

type kvResult struct {
	Result *string `json:"result"`
}

// Load fetches the document, returning a zero-length document when the key
// is absent.
func (backend *Backend) Load(ctx context.Context) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/get/%s", backend.baseURL, url.PathEscape(backend.key))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore build get: %w", err)
	}
	backend.authorize(request)
	response, err := backend.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("kvstore get: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kvstore get: unexpected status %d", response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("kvstore read: %w", err)
	}
	var parsed kvResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("kvstore decode: %w", err)
	}
	if parsed.Result == nil {
		return nil, nil
	}
	return []byte(*parsed.Result), nil
}

// Save stores the document under the ledger key.
func (backend *Backend) Save(ctx context.Context, document []byte) error {
	endpoint := fmt.Sprintf("%s/set/%s", backend.baseURL, url.PathEscape(backend.key))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(document)))
	if err != nil {
		return fmt.Errorf("kvstore build set: %w", err)
	}
	backend.authorize(request)
	response, err := backend.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("kvstore set: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("kvstore set: unexpected status %d", response.StatusCode)
	}
	return nil
}

func (backend *Backend) authorize(request *http.Request) {
	if backend.token != "" {
		request.Header.Set("Authorization", "Bearer "+backend.token)
	}
}
