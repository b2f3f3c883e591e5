package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"example.com/ticketing/services/events/config"

	"github.com/rs/zerolog/log"
)

// FetchError is the single error type the feed client surfaces. It wraps
// either a transport error or a non-success HTTP status.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch provider feed: %v", e.Err)
	}
	return fmt.Sprintf("failed to fetch provider feed: unexpected status %d", e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client fetches the raw event catalog from the external provider.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a feed client for the configured provider endpoint.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		url:        cfg.URL,
	}
}

// Fetch issues a single GET against the provider endpoint and returns the
// raw response body. No retries; the caller's context bounds the request.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	log.Debug().Int("bytes", len(body)).Str("url", c.url).Msg("Fetched provider feed")
	return body, nil
}
