// Package reader implements the page-fetch client used by the link
// summary flow: it retrieves a URL through a reader endpoint that
// returns the page reduced to plain text.
package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client fetches pages as plain text.
type Client struct {
	// endpoint is the reader service prefix the target URL is appended
	// to (e.g. "https://r.jina.ai/").
	endpoint string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a page-fetch client. An empty endpoint fetches the
// URL directly.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "reader"),
	}
}

// Fetch retrieves the page at target and returns its text content.
func (c *Client) Fetch(ctx context.Context, target string) (string, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}

	fetchURL := target
	if c.endpoint != "" {
		fetchURL = strings.TrimRight(c.endpoint, "/") + "/" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader returned %d for %q", resp.StatusCode, target)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading page body: %w", err)
	}

	c.logger.Debug("page fetched", "url", target, "bytes", len(body))
	return string(body), nil
}
