// Package cache stores fetched HTTP responses on disk so repeated runs
// against a slow-moving upstream can skip the network.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one cached response. Fresh is set by readers, not persisted.
type Entry struct {
	URL          string    `json:"url"`
	Body         []byte    `json:"body"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	StatusCode   int       `json:"status_code"`
	FetchedAt    time.Time `json:"fetched_at"`

	Fresh bool `json:"-"`
}

// FileCache keeps one JSON file per URL, keyed by the URL's SHA-256.
type FileCache struct {
	dir string
	ttl time.Duration
}

// New opens (creating if needed) a cache directory.
func New(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileCache{dir: dir, ttl: ttl}, nil
}

// Get returns the stored entry for key and whether it is still within its
// TTL. An expired entry is still returned so the caller can revalidate it
// with conditional headers instead of refetching the whole body. Corrupt
// entries are removed and treated as absent.
func (c *FileCache) Get(key string) (*Entry, bool) {
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		os.Remove(path)
		return nil, false
	}
	return &entry, time.Since(entry.FetchedAt) <= c.ttl
}

// Set stores an entry under key, stamping the fetch time.
func (c *FileCache) Set(key string, entry *Entry) error {
	entry.URL = key
	entry.FetchedAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := os.WriteFile(c.entryPath(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}
