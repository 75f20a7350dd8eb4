package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/everstacklabs/pricesync/internal/merge"
)

func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, root
}

const minimalConfig = `{
  "upstream_url": "https://example.com/prices.json",
  "output_file": "prices/model_prices.json",
  "hash_file": "prices/model_prices.sha256",
  "sync_mode": "additive",
  "prefix_filters": ["claude-"]
}`

func TestLoadMinimalConfig(t *testing.T) {
	path, root := writeConfig(t, minimalConfig)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.UpstreamURL != "https://example.com/prices.json" {
		t.Errorf("upstream_url = %q", cfg.UpstreamURL)
	}
	if cfg.Mode() != merge.ModeAdditive {
		t.Errorf("mode = %q, want additive", cfg.Mode())
	}
	if cfg.UpdateExisting {
		t.Error("update_existing should default to false")
	}
	if cfg.Timeout() != 60*time.Second {
		t.Errorf("fetch timeout = %v, want 60s default", cfg.Timeout())
	}
	if cfg.AutoFill != nil {
		t.Error("auto fill rule should be nil when section absent")
	}
	if len(cfg.Aliases) != 0 || len(cfg.CustomModels) != 0 {
		t.Error("data sections should be empty when absent")
	}
}

func TestLoadResolvesPathsAgainstRepoRoot(t *testing.T) {
	path, root := writeConfig(t, minimalConfig)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := filepath.Join(root, "prices", "model_prices.json")
	if cfg.OutputFile != want {
		t.Errorf("output_file = %q, want %q", cfg.OutputFile, want)
	}
	if !filepath.IsAbs(cfg.HashFile) {
		t.Errorf("hash_file not resolved: %q", cfg.HashFile)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json"), ""); err == nil {
		t.Error("Load of missing config should fail")
	}
}

func TestLoadMalformedJSONFails(t *testing.T) {
	path, root := writeConfig(t, `{"upstream_url": `)
	if _, err := Load(path, root); err == nil {
		t.Error("Load of malformed config should fail")
	}
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	for _, key := range RequiredKeys {
		t.Run(key, func(t *testing.T) {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal([]byte(minimalConfig), &doc); err != nil {
				t.Fatal(err)
			}
			delete(doc, key)
			partial, _ := json.Marshal(doc)

			path, root := writeConfig(t, string(partial))
			_, err := Load(path, root)
			if err == nil {
				t.Fatalf("Load without %s should fail", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error %q does not name the missing key %s", err, key)
			}
		})
	}
}

func TestLoadInvalidSyncMode(t *testing.T) {
	path, root := writeConfig(t, strings.Replace(minimalConfig, "additive", "sideways", 1))
	if _, err := Load(path, root); err == nil {
		t.Error("invalid sync_mode should fail")
	}
}

func TestLoadEmptyPrefixFiltersIsValid(t *testing.T) {
	path, root := writeConfig(t, strings.Replace(minimalConfig, `["claude-"]`, `[]`, 1))

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("empty prefix_filters should be valid (include everything): %v", err)
	}
	if len(cfg.PrefixFilters) != 0 {
		t.Errorf("prefix_filters = %v, want empty", cfg.PrefixFilters)
	}
}

func TestLoadAliasesPreserveDeclarationOrder(t *testing.T) {
	path, root := writeConfig(t, `{
  "upstream_url": "https://example.com/p.json",
  "output_file": "p.json",
  "hash_file": "p.sha256",
  "sync_mode": "additive",
  "prefix_filters": [],
  "aliases": {
    "claude-sonnet-4": {"source": "claude-sonnet-4-20250514"},
    "claude-Alias-B": {"source": "claude-sonnet-4"},
    "a-third": {"source": "claude-Alias-B"}
  }
}`)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Aliases) != 3 {
		t.Fatalf("got %d aliases, want 3", len(cfg.Aliases))
	}
	wantOrder := []string{"claude-sonnet-4", "claude-Alias-B", "a-third"}
	for i, want := range wantOrder {
		if cfg.Aliases[i].Name != want {
			t.Errorf("alias[%d] = %q, want %q (declaration order lost)", i, cfg.Aliases[i].Name, want)
		}
	}
	if cfg.Aliases[1].Name != "claude-Alias-B" {
		t.Error("alias name case not preserved")
	}
}

func TestLoadAliasValidation(t *testing.T) {
	base := `{
  "upstream_url": "u", "output_file": "o", "hash_file": "h",
  "sync_mode": "full", "prefix_filters": [],
  "aliases": %s
}`
	cases := []struct {
		name    string
		aliases string
	}{
		{"missing source", `{"a": {}}`},
		{"empty source", `{"a": {"source": ""}}`},
		{"empty alias name", `{"": {"source": "x"}}`},
		{"non-object value", `{"a": "x"}`},
		{"non-object section", `["a"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, root := writeConfig(t, strings.Replace(base, "%s", tc.aliases, 1))
			if _, err := Load(path, root); err == nil {
				t.Errorf("aliases %s should fail validation", tc.aliases)
			}
		})
	}
}

func TestLoadCustomModelsPreserveCaseAndLiterals(t *testing.T) {
	path, root := writeConfig(t, `{
  "upstream_url": "u", "output_file": "o", "hash_file": "h",
  "sync_mode": "additive", "prefix_filters": [],
  "custom_models": {
    "internal-Claude-Proxy": {"input_cost_per_token": 2.50e-06}
  }
}`)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rec, ok := cfg.CustomModels["internal-Claude-Proxy"]
	if !ok {
		t.Fatalf("mixed-case model name lost, have %v", cfg.CustomModels.SortedNames())
	}
	cost := rec.(map[string]any)["input_cost_per_token"].(json.Number)
	if cost.String() != "2.50e-06" {
		t.Errorf("numeric literal = %q, want 2.50e-06 preserved exactly", cost)
	}
}

func TestLoadAutoFillDefaults(t *testing.T) {
	path, root := writeConfig(t, `{
  "upstream_url": "u", "output_file": "o", "hash_file": "h",
  "sync_mode": "additive", "prefix_filters": [],
  "cache_1hr_auto_fill": {"model_prefix": "claude-"}
}`)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AutoFill == nil {
		t.Fatal("auto fill rule should be configured")
	}
	if cfg.AutoFill.Ratio.String() != "1.6" {
		t.Errorf("default ratio = %s, want 1.6", cfg.AutoFill.Ratio)
	}
	if cfg.AutoFill.SourceField != "cache_creation_input_token_cost" {
		t.Errorf("source field = %s", cfg.AutoFill.SourceField)
	}
}

func TestLoadAutoFillFalsyDisables(t *testing.T) {
	for _, falsy := range []string{"null", "false", "{}", "0", `""`} {
		t.Run(falsy, func(t *testing.T) {
			path, root := writeConfig(t, `{
  "upstream_url": "u", "output_file": "o", "hash_file": "h",
  "sync_mode": "additive", "prefix_filters": [],
  "cache_1hr_auto_fill": `+falsy+`
}`)
			cfg, err := Load(path, root)
			if err != nil {
				t.Fatalf("falsy section should not error: %v", err)
			}
			if cfg.AutoFill != nil {
				t.Errorf("section %s should disable the rule", falsy)
			}
		})
	}
}

func TestLoadAutoFillCustomRatioAndFields(t *testing.T) {
	path, root := writeConfig(t, `{
  "upstream_url": "u", "output_file": "o", "hash_file": "h",
  "sync_mode": "additive", "prefix_filters": [],
  "cache_1hr_auto_fill": {
    "model_prefix": "gpt-",
    "ratio": 2.0,
    "source_field": "in_cost",
    "target_field": "in_cost_long"
  }
}`)

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rule := cfg.AutoFill
	if rule.Prefix != "gpt-" || rule.SourceField != "in_cost" || rule.TargetField != "in_cost_long" {
		t.Errorf("rule = %+v", rule)
	}
	if rule.Ratio.String() != "2" {
		t.Errorf("ratio = %s, want 2", rule.Ratio)
	}
}

func TestLoadFetchTimeoutForms(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{`"30s"`, 30 * time.Second},
		{`"2m"`, 2 * time.Minute},
		{`90`, 90 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			path, root := writeConfig(t, strings.Replace(minimalConfig, `"prefix_filters": ["claude-"]`,
				`"prefix_filters": ["claude-"], "fetch_timeout": `+tc.raw, 1))
			cfg, err := Load(path, root)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Timeout() != tc.want {
				t.Errorf("timeout = %v, want %v", cfg.Timeout(), tc.want)
			}
		})
	}
}

func TestLoadGitHubTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test123")
	path, root := writeConfig(t, strings.Replace(minimalConfig, `"prefix_filters": ["claude-"]`,
		`"prefix_filters": ["claude-"], "github": {"owner": "everstacklabs", "repo": "model-prices"}`, 1))

	cfg, err := Load(path, root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.Token != "ghp_test123" {
		t.Errorf("github token = %q, want env value", cfg.GitHub.Token)
	}
	if !cfg.GitHub.Enabled() {
		t.Error("publishing should be enabled with token+owner+repo")
	}
	if cfg.GitHub.BaseBranch != "main" {
		t.Errorf("base_branch = %q, want main default", cfg.GitHub.BaseBranch)
	}
}

func TestGitHubEnabledRequiresAllFields(t *testing.T) {
	cases := []GitHubConfig{
		{},
		{Token: "t"},
		{Token: "t", Owner: "o"},
		{Owner: "o", Repo: "r"},
	}
	for _, gh := range cases {
		if gh.Enabled() {
			t.Errorf("GitHubConfig %+v should not be enabled", gh)
		}
	}
	if !(GitHubConfig{Token: "t", Owner: "o", Repo: "r"}).Enabled() {
		t.Error("full GitHubConfig should be enabled")
	}
}
