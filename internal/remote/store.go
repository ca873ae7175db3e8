package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error kinds. Callers branch on these to pick retry/alert behavior:
// ErrUnreadable must never cause the remote copy to be overwritten, and
// ErrUnauthorized suspends cloud writes until re-auth.
var (
	ErrNotFound     = errors.New("remote: no replica")
	ErrUnauthorized = errors.New("remote: sign-in required")
	ErrUnreadable   = errors.New("remote: cloud copy unreadable")
)

// DefaultTimeout bounds every network call.
const DefaultTimeout = 10 * time.Second

// TokenSource issues bearer credentials. Credentials are acquired lazily
// per call; implementations own caching and refresh.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// Store reads and writes the remote blob.
type Store interface {
	// Load fetches and decodes the replica. Returns ErrNotFound when no
	// replica exists yet and ErrUnreadable when the blob cannot be parsed.
	Load(ctx context.Context) (*Document, error)
	// Save replaces the replica with the given document.
	Save(ctx context.Context, doc *Document) error
}

// HTTPStore is a Store over a single HTTP(S) object URL.
type HTTPStore struct {
	url    string
	tokens TokenSource
	client *http.Client
}

// NewHTTPStore creates a store for the given object URL. A nil client gets
// a default with DefaultTimeout.
func NewHTTPStore(url string, tokens TokenSource, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPStore{url: url, tokens: tokens, client: client}
}

// Load implements Store.
func (s *HTTPStore) Load(ctx context.Context) (*Document, error) {
	req, err := s.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replica: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d fetching replica", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read replica body: %w", err)
	}
	return DecodeDocument(data)
}

// Save implements Store.
func (s *HTTPStore) Save(ctx context.Context, doc *Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	req, err := s.newRequest(ctx, http.MethodPut, data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write replica: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %d writing replica", resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
