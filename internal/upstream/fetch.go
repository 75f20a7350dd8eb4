// Package upstream fetches the remote pricing document.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/everstacklabs/pricesync/internal/catalog"
	"github.com/everstacklabs/pricesync/internal/httpclient"
)

// UserAgent identifies this tool to the upstream host.
const UserAgent = "pricesync/1.0"

// Fetcher retrieves and parses the upstream catalog. One GET per run, no
// retries; transport failures, non-2xx statuses, and malformed documents
// are all fatal to the sync.
type Fetcher struct {
	url    string
	client *httpclient.Client
}

// New creates a Fetcher for the given URL.
func New(url string, client *httpclient.Client) *Fetcher {
	return &Fetcher{url: url, client: client}
}

// Fetch downloads the upstream document and decodes it into a catalog.
func (f *Fetcher) Fetch(ctx context.Context) (catalog.Catalog, error) {
	slog.Info("fetching upstream", "url", f.url)

	resp, err := f.client.Get(ctx, f.url, map[string]string{"User-Agent": UserAgent})
	if err != nil {
		return nil, fmt.Errorf("fetching upstream: %w", err)
	}

	cat, err := catalog.Decode(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing upstream document: %w", err)
	}

	slog.Info("upstream fetched", "models", len(cat), "bytes", len(resp.Body), "from_cache", resp.FromCache)
	return cat, nil
}
