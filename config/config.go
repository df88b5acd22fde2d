package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"settleflow/internal/settlement"
	"settleflow/internal/tradedate"
	"settleflow/models"
)

// Config is loaded once per process and passed by pointer to the components
// that need it. Nothing mutates it after LoadConfig returns.
type Config struct {
	Settleflow SettleflowConfig       `yaml:"settleflow"`
	Paths      PathsConfig            `yaml:"paths"`
	Fetch      FetchConfig            `yaml:"fetch"`
	Ordering   OrderingConfig         `yaml:"ordering"`
	Calendar   CalendarConfig         `yaml:"calendar"`
	Report     ReportConfig           `yaml:"report"`
	Archive    ArchiveConfig          `yaml:"archive"`
	Storage    StorageConfig          `yaml:"storage"`
	Metrics    MetricsConfig          `yaml:"metrics"`
	Server     ServerConfig           `yaml:"server"`
	Logging    LoggingConfig          `yaml:"logging"`
	Sources    []models.SourceProfile `yaml:"sources"`
}

type SettleflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type PathsConfig struct {
	OutputDir  string `yaml:"output_dir"`
	TmpDir     string `yaml:"tmp_dir"`
	ArchiveDir string `yaml:"archive_dir"`
}

type FetchConfig struct {
	BaseURL           string            `yaml:"base_url"`
	Timeout           time.Duration     `yaml:"timeout"`
	MaxLookbackDays   int               `yaml:"max_lookback_days"`
	PageSize          int               `yaml:"page_size"`
	UserAgent         string            `yaml:"user_agent"`
	Headers           map[string]string `yaml:"headers"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	BurstSize         int               `yaml:"burst_size"`
}

type OrderingConfig struct {
	// Undated selects how rows without settlementMonth are ordered:
	// "display" or "insertion".
	Undated string `yaml:"undated"`
}

type CalendarConfig struct {
	ExceptionDays []string `yaml:"exception_days"`
}

type ReportConfig struct {
	DataTemplate       string `yaml:"data_template"`
	SummaryTemplate    string `yaml:"summary_template"`
	DataOutput         string `yaml:"data_output"`
	SummaryOutput      string `yaml:"summary_output"`
	TimestampedOutputs bool   `yaml:"timestamped_outputs"`
	BackupTemplates    bool   `yaml:"backup_templates"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// UploadConcurrency bounds the parallel uploads of one run's artifacts.
	UploadConcurrency int `yaml:"upload_concurrency"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type ServerConfig struct {
	Address    string `yaml:"address"`
	Mode       string `yaml:"mode"`
	LogHistory int    `yaml:"log_history"`
	RunHistory int    `yaml:"run_history"`
	// Resources samples host CPU, memory and disk for /api/v1/system.
	Resources ResourcesConfig `yaml:"resources"`
}

type ResourcesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	History  int           `yaml:"history"`
	// DiskPath defaults to the output directory.
	DiskPath string `yaml:"disk_path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoadConfig reads, defaults and validates the YAML configuration at path.
// When APP_ENV selects an environment and a matching file such as
// config.production.yml exists next to path, that file is read instead.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envPathsFor(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(config.Sources) == 0 {
		config.Sources = DefaultSources()
	}
	applySourceDefaults(config.Sources)

	if v := os.Getenv("SETTLEFLOW_OUTPUT_DIR"); v != "" {
		config.Paths.OutputDir = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applySourceDefaults(sources []models.SourceProfile) {
	for i := range sources {
		if sources[i].Provider == "" {
			sources[i].Provider = ProviderCMEGroup
		}
		if sources[i].SettleRule == "" {
			sources[i].SettleRule = models.RuleNone
		}
		if sources[i].VolumeRule == "" {
			sources[i].VolumeRule = models.RuleComma
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Settleflow.Name == "" {
		return fmt.Errorf("settleflow.name is required")
	}

	if cfg.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if cfg.Paths.TmpDir == "" {
		return fmt.Errorf("paths.tmp_dir is required")
	}

	if cfg.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url is required")
	}
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be greater than 0")
	}
	if cfg.Fetch.MaxLookbackDays <= 0 {
		return fmt.Errorf("fetch.max_lookback_days must be greater than 0")
	}
	if cfg.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must not be negative")
	}

	if _, err := settlement.ParseFallback(cfg.Ordering.Undated); err != nil {
		return fmt.Errorf("ordering.undated: %w", err)
	}

	for _, d := range cfg.Calendar.ExceptionDays {
		if !tradedate.Validate(d) {
			return fmt.Errorf("calendar.exception_days: %q is not MM/DD/YYYY", d)
		}
	}

	if cfg.Report.DataTemplate == "" || cfg.Report.SummaryTemplate == "" {
		return fmt.Errorf("report.data_template and report.summary_template are required")
	}
	if cfg.Report.DataOutput == "" || cfg.Report.SummaryOutput == "" {
		return fmt.Errorf("report.data_output and report.summary_output are required")
	}

	if cfg.Archive.Enabled && cfg.Paths.ArchiveDir == "" {
		return fmt.Errorf("paths.archive_dir is required when the archive is enabled")
	}

	keys := make(map[string]struct{}, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Key == "" {
			return fmt.Errorf("sources[%d].key is required", i)
		}
		if src.Key == models.SummaryKey {
			return fmt.Errorf("sources[%d].key %q is reserved", i, src.Key)
		}
		if _, dup := keys[src.Key]; dup {
			return fmt.Errorf("sources[%d].key %q is duplicated", i, src.Key)
		}
		keys[src.Key] = struct{}{}
		if src.Origin == "" {
			return fmt.Errorf("sources[%d].origin is required", i)
		}
		if src.Provider == ProviderCMEGroup && src.ID == "" {
			return fmt.Errorf("sources[%d].id is required for %s", i, ProviderCMEGroup)
		}
		if !src.SettleRule.Valid() || !src.VolumeRule.Valid() {
			return fmt.Errorf("sources[%d]: unknown number rule", i)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
