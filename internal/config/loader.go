package config

import (
	"fmt"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/db"
	"github.com/spf13/viper"
)

// APIConfig configures the complaints API client.
type APIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	PageSize   int
	MaxRetries int
	UserAgent  string
}

// StorageConfig configures the staging object store.
type StorageConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// PipelineConfig configures run behavior.
type PipelineConfig struct {
	Companies    []string
	LookbackDays int
	MaxRecords   int
	Concurrency  int
}

// Config aggregates every section the pipeline needs.
type Config struct {
	Database db.Config
	API      APIConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

// DefaultConfig returns the defaults a config file or env vars override.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		API: APIConfig{
			BaseURL:    "https://www.consumerfinance.gov/data-research/consumer-complaints/search/api/v1/",
			Timeout:    30 * time.Second,
			PageSize:   10000,
			MaxRetries: 3,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Prefix: "consumer_complaints",
		},
		Pipeline: PipelineConfig{
			LookbackDays: 1,
			Concurrency:  4,
		},
	}
}

// Load reads config.yaml from configPath and applies env overrides. Missing
// config files are fine; defaults plus env vars carry a deployment.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()     // allow environment overrides
	v.SetEnvPrefix("CC") // map env vars like CC_DATABASE_HOST

	// Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("api.base_url")
	v.BindEnv("storage.bucket")
	v.BindEnv("storage.region")
	v.BindEnv("storage.endpoint")
	v.BindEnv("storage.prefix")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("api.base_url") {
		cfg.API.BaseURL = v.GetString("api.base_url")
	}
	if v.IsSet("api.timeout") {
		cfg.API.Timeout = v.GetDuration("api.timeout")
	}
	if v.IsSet("api.page_size") {
		cfg.API.PageSize = v.GetInt("api.page_size")
	}
	if v.IsSet("api.max_retries") {
		cfg.API.MaxRetries = v.GetInt("api.max_retries")
	}
	if v.IsSet("api.user_agent") {
		cfg.API.UserAgent = v.GetString("api.user_agent")
	}

	if v.IsSet("storage.bucket") {
		cfg.Storage.Bucket = v.GetString("storage.bucket")
	}
	if v.IsSet("storage.region") {
		cfg.Storage.Region = v.GetString("storage.region")
	}
	if v.IsSet("storage.endpoint") {
		cfg.Storage.Endpoint = v.GetString("storage.endpoint")
	}
	if v.IsSet("storage.prefix") {
		cfg.Storage.Prefix = v.GetString("storage.prefix")
	}

	if v.IsSet("pipeline.companies") {
		cfg.Pipeline.Companies = v.GetStringSlice("pipeline.companies")
	}
	if v.IsSet("pipeline.lookback_days") {
		cfg.Pipeline.LookbackDays = v.GetInt("pipeline.lookback_days")
	}
	if v.IsSet("pipeline.max_records") {
		cfg.Pipeline.MaxRecords = v.GetInt("pipeline.max_records")
	}
	if v.IsSet("pipeline.concurrency") {
		cfg.Pipeline.Concurrency = v.GetInt("pipeline.concurrency")
	}

	return cfg, nil
}
