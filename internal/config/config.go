package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

// MaxInsertBatchSize keeps one scratch insert under the engines' bound
// parameter limits.
const MaxInsertBatchSize = 10000

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Dataset       DatasetConfig
	Query         QueryConfig
	HTTP          HTTPConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type DatasetConfig struct {
	// Source is a local path or a remote locator (Drive share link, http(s)
	// URL, s3://bucket/key).
	Source       string
	ForceRefresh bool
	CacheDir     string
	CacheFile    string
	// Engine is "sqlite" or "duckdb".
	Engine       string
	FetchTimeout time.Duration
}

type QueryConfig struct {
	KeyColumn       string
	InsertBatchSize int
	Timeout         time.Duration
	CleanupTimeout  time.Duration
	MaxRows         int
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("FQDATA_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid FQDATA_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "FQDATA_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_SOURCE", &cfg.Dataset.Source); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FQDATA_FORCE_REFRESH", &cfg.Dataset.ForceRefresh); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_CACHE_DIR", &cfg.Dataset.CacheDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_CACHE_FILE", &cfg.Dataset.CacheFile); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_ENGINE", &cfg.Dataset.Engine); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_FETCH_TIMEOUT", &cfg.Dataset.FetchTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_KEY_COLUMN", &cfg.Query.KeyColumn); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "FQDATA_INSERT_BATCH_SIZE", &cfg.Query.InsertBatchSize); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_QUERY_TIMEOUT", &cfg.Query.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_CLEANUP_TIMEOUT", &cfg.Query.CleanupTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "FQDATA_QUERY_MAX_ROWS", &cfg.Query.MaxRows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "FQDATA_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FQDATA_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FQDATA_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "FQDATA_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FQDATA_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FQDATA_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch strings.ToLower(c.Dataset.Engine) {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("invalid FQDATA_ENGINE: %q", c.Dataset.Engine)
	}
	if c.Dataset.CacheFile == "" {
		return fmt.Errorf("cache file name is required")
	}
	if c.Query.KeyColumn == "" {
		return fmt.Errorf("key column is required")
	}
	if c.Query.InsertBatchSize < 1 || c.Query.InsertBatchSize > MaxInsertBatchSize {
		return fmt.Errorf("invalid FQDATA_INSERT_BATCH_SIZE: %d (must be 1..%d)", c.Query.InsertBatchSize, MaxInsertBatchSize)
	}
	if c.Query.CleanupTimeout <= 0 {
		return fmt.Errorf("invalid FQDATA_CLEANUP_TIMEOUT: must be positive")
	}
	if c.Query.MaxRows < 0 {
		return fmt.Errorf("invalid FQDATA_QUERY_MAX_ROWS: %d", c.Query.MaxRows)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "fqdata"},
		Dataset: DatasetConfig{
			CacheDir:     "",
			CacheFile:    "standard_cache.db",
			Engine:       "sqlite",
			FetchTimeout: 5 * time.Minute,
		},
		Query: QueryConfig{
			KeyColumn:       "code",
			InsertBatchSize: 500,
			Timeout:         60 * time.Second,
			CleanupTimeout:  5 * time.Second,
			MaxRows:         0,
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.Query.MaxRows = 100000
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
