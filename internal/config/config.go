// Package config loads and validates the sync configuration.
//
// The file is JSON and goes through viper for defaults and PRICESYNC_*
// environment overrides. The data-bearing sections (aliases, custom_models,
// cache_1hr_auto_fill) are decoded a second time straight from the file
// bytes: viper lowercases keys and coerces numbers to float64, which would
// corrupt model names, lose alias declaration order, and destroy the numeric
// literals the canonical output depends on.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/everstacklabs/pricesync/internal/catalog"
	"github.com/everstacklabs/pricesync/internal/merge"
	"github.com/everstacklabs/pricesync/internal/rules"
)

// RequiredKeys must be present in the config file (or supplied via
// environment for the scalar ones).
var RequiredKeys = []string{"upstream_url", "output_file", "hash_file", "sync_mode", "prefix_filters"}

// Config holds one run's settings. Paths are resolved against the repo
// root by Load.
type Config struct {
	UpstreamURL     string       `mapstructure:"upstream_url"`
	OutputFile      string       `mapstructure:"output_file"`
	HashFile        string       `mapstructure:"hash_file"`
	ManifestFile    string       `mapstructure:"manifest_file"`
	HistoryFile     string       `mapstructure:"history_file"`
	SyncMode        string       `mapstructure:"sync_mode"`
	PrefixFilters   []string     `mapstructure:"prefix_filters"`
	ExcludePatterns []string     `mapstructure:"exclude_patterns"`
	UpdateExisting  bool         `mapstructure:"update_existing"`
	FetchTimeout    string       `mapstructure:"fetch_timeout"`
	CacheDir        string       `mapstructure:"cache_dir"`
	CacheTTL        string       `mapstructure:"cache_ttl"`
	NoCache         bool         `mapstructure:"no_cache"`
	LogLevel        string       `mapstructure:"log_level"`
	GitHub          GitHubConfig `mapstructure:"github"`

	// Decoded from the raw file, not through viper.
	Aliases      []rules.Alias
	CustomModels catalog.Catalog
	AutoFill     *rules.AutoFill

	// RepoRoot anchors every relative path in the file.
	RepoRoot string

	mode         merge.Mode
	fetchTimeout time.Duration
	cacheTTL     time.Duration
}

// GitHubConfig holds publishing settings. Publishing is enabled when token,
// owner, and repo are all set.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	Owner      string `mapstructure:"owner"`
	Repo       string `mapstructure:"repo"`
	BaseBranch string `mapstructure:"base_branch"`
}

// Enabled reports whether publishing is configured.
func (g GitHubConfig) Enabled() bool {
	return g.Token != "" && g.Owner != "" && g.Repo != ""
}

// Mode returns the validated sync mode.
func (c *Config) Mode() merge.Mode { return c.mode }

// Timeout returns the validated fetch timeout.
func (c *Config) Timeout() time.Duration { return c.fetchTimeout }

// TTL returns the validated HTTP cache TTL.
func (c *Config) TTL() time.Duration { return c.cacheTTL }

// Load reads, validates, and resolves configuration. cfgFile and the file's
// relative paths resolve against repoRoot. A missing or malformed file, a
// missing required key, and an invalid sync_mode are all fatal here, before
// any network or output I/O happens.
func Load(cfgFile, repoRoot string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = "config.json"
	}
	if repoRoot == "" {
		repoRoot = "."
	}
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving repo root: %w", err)
	}
	path := cfgFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("fetch_timeout", "60s")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("no_cache", false)
	v.SetDefault("update_existing", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("github.base_branch", "main")

	v.SetConfigFile(path)
	v.SetConfigType("json")

	// Environment variables
	v.SetEnvPrefix("PRICESYNC")
	v.AutomaticEnv()
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("github.owner", "PRICESYNC_GITHUB_OWNER")
	_ = v.BindEnv("github.repo", "PRICESYNC_GITHUB_REPO")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.RepoRoot = root

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	doc, err := rawSections(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.checkRequired(v, doc); err != nil {
		return nil, err
	}
	if err := cfg.decodeDataSections(doc); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	return &cfg, nil
}

// rawSections parses the config file into raw per-key messages, preserving
// the exact bytes of each section.
func rawSections(raw []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Config) checkRequired(v *viper.Viper, doc map[string]json.RawMessage) error {
	var missing []string
	for _, key := range RequiredKeys {
		if _, ok := doc[key]; ok {
			continue
		}
		// Scalars may arrive via environment instead.
		if key != "prefix_filters" && v.GetString(key) != "" {
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config keys: %v", missing)
	}
	return nil
}

func (c *Config) decodeDataSections(doc map[string]json.RawMessage) error {
	if raw, ok := doc["aliases"]; ok {
		aliases, err := decodeAliases(raw)
		if err != nil {
			return fmt.Errorf("config aliases: %w", err)
		}
		c.Aliases = aliases
	}

	if raw, ok := doc["custom_models"]; ok {
		custom, err := decodeCustomModels(raw)
		if err != nil {
			return fmt.Errorf("config custom_models: %w", err)
		}
		c.CustomModels = custom
	}

	if raw, ok := doc["cache_1hr_auto_fill"]; ok {
		rule, err := decodeAutoFill(raw)
		if err != nil {
			return fmt.Errorf("config cache_1hr_auto_fill: %w", err)
		}
		c.AutoFill = rule
	}
	return nil
}

// decodeAliases walks the object token by token so declaration order
// survives; chained aliases depend on it.
func decodeAliases(raw json.RawMessage) ([]rules.Alias, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("must be an object of alias -> {source}")
	}

	var out []rules.Alias
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name := keyTok.(string)
		if name == "" {
			return nil, fmt.Errorf("alias name must not be empty")
		}

		var def struct {
			Source string `json:"source"`
		}
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("alias %q: %w", name, err)
		}
		if def.Source == "" {
			return nil, fmt.Errorf("alias %q: missing source", name)
		}
		out = append(out, rules.Alias{Name: name, Source: def.Source})
	}
	return out, nil
}

func decodeCustomModels(raw json.RawMessage) (catalog.Catalog, error) {
	custom, err := catalog.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for name := range custom {
		if name == "" {
			return nil, fmt.Errorf("custom model name must not be empty")
		}
	}
	return custom, nil
}

func decodeAutoFill(raw json.RawMessage) (*rules.AutoFill, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Any falsy section value (null, false, 0, "", {}, []) disables the
	// stage; only a populated object configures it.
	if isFalsy(v) {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be an object, got %T", v)
	}

	ratioStr := rules.DefaultCacheRatio
	if rv, ok := obj["ratio"]; ok {
		num, ok := rv.(json.Number)
		if !ok {
			return nil, fmt.Errorf("ratio must be a number, got %T", rv)
		}
		ratioStr = num.String()
	}
	ratio, err := decimal.NewFromString(ratioStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ratio %q: %w", ratioStr, err)
	}

	rule := rules.NewCacheAutoFill(stringField(obj, "model_prefix"), ratio)
	if f := stringField(obj, "source_field"); f != "" {
		rule.SourceField = f
	}
	if f := stringField(obj, "target_field"); f != "" {
		rule.TargetField = f
	}
	return rule, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func (c *Config) validate() error {
	mode, err := merge.ParseMode(c.SyncMode)
	if err != nil {
		return err
	}
	c.mode = mode

	c.fetchTimeout, err = parseDuration(c.FetchTimeout)
	if err != nil {
		return fmt.Errorf("invalid fetch_timeout %q: %w", c.FetchTimeout, err)
	}
	c.cacheTTL, err = parseDuration(c.CacheTTL)
	if err != nil {
		return fmt.Errorf("invalid cache_ttl %q: %w", c.CacheTTL, err)
	}
	return nil
}

// parseDuration accepts Go duration strings and bare integers, which read
// as seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) resolvePaths() {
	c.OutputFile = c.resolve(c.OutputFile)
	c.HashFile = c.resolve(c.HashFile)
	c.ManifestFile = c.resolve(c.ManifestFile)
	c.HistoryFile = c.resolve(c.HistoryFile)
	c.CacheDir = c.resolve(c.CacheDir)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.RepoRoot, path)
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pricesync-cache"
	}
	return filepath.Join(home, ".cache", "pricesync")
}
