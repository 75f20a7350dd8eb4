package catalog

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestStats holds per-stage counts from the run that produced the
// catalog.
type ManifestStats struct {
	TotalModels    int `yaml:"total_models"`
	Added          int `yaml:"added"`
	Updated        int `yaml:"updated"`
	Unchanged      int `yaml:"unchanged"`
	AliasesApplied int `yaml:"aliases_applied"`
	AutoFilled     int `yaml:"auto_filled"`
	CustomApplied  int `yaml:"custom_applied"`
}

// Manifest summarizes a catalog write for humans and CI.
type Manifest struct {
	GeneratedAt string        `yaml:"generated_at"`
	UpstreamURL string        `yaml:"upstream_url"`
	SyncMode    string        `yaml:"sync_mode"`
	ContentHash string        `yaml:"content_hash"`
	Stats       ManifestStats `yaml:"stats"`
}

// NewManifest stamps a manifest with the current UTC time.
func NewManifest(upstreamURL, syncMode, hash string, stats ManifestStats) Manifest {
	return Manifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		UpstreamURL: upstreamURL,
		SyncMode:    syncMode,
		ContentHash: hash,
		Stats:       stats,
	}
}

// WriteManifest renders the manifest as YAML with a generated-file header
// and writes it atomically.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	header := "# Pricing Catalog Manifest\n# Auto-generated - DO NOT EDIT MANUALLY\n# Run: pricesync sync to regenerate\n\n"
	if err := writeFileAtomic(path, []byte(header+string(data))); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
