package config

import (
	"time"

	"settleflow/models"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config/config.yml"

// Providers a source profile can name.
const (
	ProviderCMEGroup = "cmegroup"
	ProviderESALQ    = "esalq"
)

// DefaultBaseURL is the CME Group futures settlements endpoint.
const DefaultBaseURL = "https://www.cmegroup.com/CmeWS/mvc/Settlements/Futures/Settlements"

// Default returns the configuration every file is decoded on top of.
func Default() Config {
	return Config{
		Settleflow: SettleflowConfig{Name: "settleflow", Version: "dev"},
		Paths: PathsConfig{
			OutputDir:  "data",
			TmpDir:     "tmp",
			ArchiveDir: "data/archive",
		},
		Fetch: FetchConfig{
			BaseURL:         DefaultBaseURL,
			Timeout:         30 * time.Second,
			MaxLookbackDays: 30,
			PageSize:        500,
			UserAgent:       "settleflow/1.0",
			Headers: map[string]string{
				"accept":          "application/json",
				"accept-language": "es-ES,es;q=0.9,en-US;q=0.8,en;q=0.7",
			},
			RequestsPerSecond: 2,
			BurstSize:         1,
		},
		Ordering:   OrderingConfig{Undated: "display"},
		Report: ReportConfig{
			DataTemplate:    "templates/master_data_template.xlsx",
			SummaryTemplate: "templates/resume_template.xlsx",
			DataOutput:      "master_data.xlsx",
			SummaryOutput:   "resume.xlsx",
		},
		Archive: ArchiveConfig{Compression: "snappy"},
		Metrics: MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "Settleflow"}},
		Server: ServerConfig{
			Address:    ":8080",
			Mode:       "release",
			LogHistory: 200,
			RunHistory: 20,
			Resources:  ResourcesConfig{Enabled: true, Interval: 5 * time.Second, History: 120},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  5,
			MaxBackups: 4,
		},
	}
}

// DefaultSources returns the six CME Group markets the report is built for.
func DefaultSources() []models.SourceProfile {
	return []models.SourceProfile{
		{Provider: ProviderCMEGroup, ID: "4708", Origin: "CMEGroup Chicago-CU", Key: "CU", SnapshotName: "chicago-cu", SettleRule: models.RuleComma, VolumeRule: models.RuleComma, TradingDaysOnly: true},
		{Provider: ProviderCMEGroup, ID: "4759", Origin: "CMEGroup New York-NYH", Key: "NYH", SnapshotName: "new-york-nyh", SettleRule: models.RuleComma, VolumeRule: models.RuleComma, TradingDaysOnly: true},
		{Provider: ProviderCMEGroup, ID: "5187", Origin: "CMEGroup T2", Key: "T2", SnapshotName: "t2", SettleRule: models.RuleComma, VolumeRule: models.RuleComma, TradingDaysOnly: true},
		{Provider: ProviderCMEGroup, ID: "300", Origin: "CMEGroup Corn", Key: "CORN", SnapshotName: "corn", SettleRule: models.RuleApostrophe, VolumeRule: models.RuleComma},
		{Provider: ProviderCMEGroup, ID: "429", Origin: "CMEGroup RBob", Key: "RBOB", SnapshotName: "rbob", SettleRule: models.RuleNone, VolumeRule: models.RuleComma},
		{Provider: ProviderCMEGroup, ID: "470", Origin: "CMEGroup Sugar 11", Key: "Sugar_11", SnapshotName: "sugar-11", SettleRule: models.RuleNone, VolumeRule: models.RuleComma},
	}
}
