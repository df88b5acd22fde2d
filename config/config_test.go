package config

import (
	"os"
	"path/filepath"
	"testing"

	"settleflow/models"
)

// writeTempConfig writes content to a config file inside a fresh temp dir
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `settleflow:
  name: "TestApp"
  version: "1.0"
paths:
  output_dir: out
  tmp_dir: tmp
fetch:
  timeout: 5s
  max_lookback_days: 7
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SETTLEFLOW_OUTPUT_DIR", "")
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Settleflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Settleflow.Name)
	}
	if cfg.Fetch.MaxLookbackDays != 7 {
		t.Errorf("unexpected lookback: %d", cfg.Fetch.MaxLookbackDays)
	}
	if cfg.Fetch.Timeout.Seconds() != 5 {
		t.Errorf("unexpected timeout: %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.BaseURL != DefaultBaseURL {
		t.Errorf("base url default not applied: %s", cfg.Fetch.BaseURL)
	}
	if cfg.Logging.MaxSizeMB != 5 || cfg.Logging.MaxBackups != 4 {
		t.Errorf("unexpected rotation defaults: %+v", cfg.Logging)
	}
	if len(cfg.Sources) != 6 {
		t.Fatalf("expected the six default sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[3].Key != "CORN" || cfg.Sources[3].SettleRule != models.RuleApostrophe {
		t.Errorf("unexpected CORN profile: %+v", cfg.Sources[3])
	}
}

func TestLoadConfigSources(t *testing.T) {
	t.Setenv("APP_ENV", "")
	content := minimalConfig + `sources:
  - key: PAULINIA
    provider: esalq
    origin: "ESALQ Paulinia"
    snapshot_name: paulinia
`
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.Provider != ProviderESALQ {
		t.Errorf("provider = %q", src.Provider)
	}
	if src.SettleRule != models.RuleNone || src.VolumeRule != models.RuleComma {
		t.Errorf("rule defaults not applied: %+v", src)
	}
}

func TestLoadConfigOutputDirOverride(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SETTLEFLOW_OUTPUT_DIR", " /srv/reports ")
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Paths.OutputDir != "/srv/reports" {
		t.Errorf("output dir = %q", cfg.Paths.OutputDir)
	}
}

func TestLoadConfigEnvironmentFile(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	prod := filepath.Join(filepath.Dir(path), "config.production.yml")
	content := `settleflow:
  name: "ProdApp"
`
	if err := os.WriteFile(prod, []byte(content), 0o644); err != nil {
		t.Fatalf("write prod config: %v", err)
	}

	t.Setenv("APP_ENV", "prod")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Settleflow.Name != "ProdApp" {
		t.Errorf("expected production file to be used, got %q", cfg.Settleflow.Name)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Settleflow.Name = "" }},
		{"zero lookback", func(c *Config) { c.Fetch.MaxLookbackDays = 0 }},
		{"bad ordering", func(c *Config) { c.Ordering.Undated = "random" }},
		{"bad exception day", func(c *Config) { c.Calendar.ExceptionDays = []string{"2025-01-01"} }},
		{"duplicate key", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"reserved key", func(c *Config) { c.Sources[0].Key = models.SummaryKey }},
		{"missing id", func(c *Config) { c.Sources[0].ID = "" }},
		{"unknown rule", func(c *Config) { c.Sources[0].SettleRule = "dots" }},
		{"s3 without bucket", func(c *Config) {
			c.Storage.S3.Enabled = true
			c.Storage.S3.Region = "us-east-1"
		}},
		{"archive without dir", func(c *Config) {
			c.Archive.Enabled = true
			c.Paths.ArchiveDir = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Sources = DefaultSources()
			tt.mutate(&cfg)
			if err := validateConfig(&cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Sources = DefaultSources()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := map[string]bool{
		"settleflow-reports": true,
		"a.b.c":              true,
		"ab":                 false,
		"Upper":              false,
		"bad..dots":          false,
		".leading":           false,
	}
	for name, want := range cases {
		if got := isValidS3Bucket(name); got != want {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	envPaths := map[string]string{EnvironmentProduction: "config/config.production.yml"}

	t.Setenv("APP_ENV", "production")
	if got := resolveEnvSpecificPath("", DefaultPath, envPaths); got != "config/config.production.yml" {
		t.Errorf("got %q", got)
	}

	t.Setenv("APP_ENV", "development")
	if got := resolveEnvSpecificPath("custom.yml", DefaultPath, envPaths); got != "custom.yml" {
		t.Errorf("got %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SETTLEFLOW_OUTPUT_DIR", "")
	cfg, err := LoadConfig("config.yml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Sources) != len(DefaultSources()) {
		t.Fatalf("expected %d sources, got %d", len(DefaultSources()), len(cfg.Sources))
	}
	for i, want := range DefaultSources() {
		if cfg.Sources[i] != want {
			t.Errorf("source %d = %+v, want %+v", i, cfg.Sources[i], want)
		}
	}
	if !cfg.Server.Resources.Enabled || cfg.Server.Resources.Interval.Seconds() != 5 {
		t.Errorf("unexpected resources config: %+v", cfg.Server.Resources)
	}
	if len(cfg.Calendar.ExceptionDays) != 2 {
		t.Errorf("unexpected exception days: %v", cfg.Calendar.ExceptionDays)
	}
}
