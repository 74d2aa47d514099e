// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfigurationMissing marks settings whose absence is fatal at startup.
var ErrConfigurationMissing = errors.New("CONFIGURATION_MISSING")

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// Load reads configs/config.yaml, overlays configs/config.<APP_ENVIRONMENT>.yaml,
// then lets the environment override individual keys (grid.host -> GRID_HOST).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key viper must know about for AutomaticEnv to
// reach it during Unmarshal, plus the defaults a zero value cannot express.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wapi-nlq")
	v.SetDefault("app.environment", "development")

	v.SetDefault("grid.host", "")
	v.SetDefault("grid.wapi_version", "v2.13.1")
	v.SetDefault("grid.username", "")
	v.SetDefault("grid.password", "")
	v.SetDefault("grid.ssl_verify", false)
	v.SetDefault("grid.url", "")
	v.SetDefault("grid.timeout", 30000)

	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.escalation_cutoff", 0.8)
	v.SetDefault("pipeline.max_results", 0)
	v.SetDefault("pipeline.apply_escalation", true)
	v.SetDefault("pipeline.derive_object_noun", false)
	v.SetDefault("pipeline.check_required_fields", false)

	v.SetDefault("classifier.zero_shot.enabled", false)
	v.SetDefault("classifier.zero_shot.api_key", "")
	v.SetDefault("classifier.zero_shot.model", "text-embedding-004")
	v.SetDefault("classifier.zero_shot.temperature", 0.05)

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.timeout", 30000)
	v.SetDefault("llm.cache_ttl", 0)

	v.SetDefault("catalog.source", "default")
	v.SetDefault("catalog.path", "")

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")

	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.elasticsearch.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("server.metrics_addr", ":8080")
}

// loadEnvFile loads the first .env found walking up from the working
// directory, so tests under test/e2e see the same file as the binaries.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the legacy variable names when
// neither the file nor the prefixed env vars set them.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Grid.Host == "" {
		if val := os.Getenv("GRID_MASTER_IP"); val != "" {
			cfg.Grid.Host = val
		}
	}
	if cfg.Grid.Username == "" {
		if val := os.Getenv("USERNAME"); val != "" {
			cfg.Grid.Username = val
		}
	}
	if cfg.Grid.Password == "" {
		if val := os.Getenv("PASSWORD"); val != "" {
			cfg.Grid.Password = val
		}
	}
	if val := os.Getenv("WAPI_VERSION"); val != "" && cfg.Grid.WAPIVersion == "" {
		cfg.Grid.WAPIVersion = val
	}

	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "grok":
			cfg.LLM.APIKey = os.Getenv("GROK_API_KEY")
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if cfg.Classifier.ZeroShot.APIKey == "" {
		cfg.Classifier.ZeroShot.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Grid.WAPIVersion == "" {
		cfg.Grid.WAPIVersion = "v2.13.1"
	}
	if cfg.Grid.Timeout == 0 {
		cfg.Grid.Timeout = 30000
	}

	if cfg.Classifier.ZeroShot.Temperature <= 0 {
		cfg.Classifier.ZeroShot.Temperature = 0.05
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30000
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "default"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Audit.Postgres.Table == "" {
		cfg.Audit.Postgres.Table = "query_log"
	}
	if cfg.Audit.Elasticsearch.Index == "" {
		cfg.Audit.Elasticsearch.Index = "nlq-queries"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":8080"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig rejects configurations the pipeline cannot start with.
func validateConfig(cfg *Config) error {
	if cfg.Grid.URL == "" {
		if cfg.Grid.Host == "" {
			return fmt.Errorf("%w: grid.host is required", ErrConfigurationMissing)
		}
		if !ValidHost(cfg.Grid.Host) {
			return fmt.Errorf("%w: grid.host %q is not an IPv4 address or hostname", ErrConfigurationMissing, cfg.Grid.Host)
		}
	}
	if cfg.Grid.Username == "" {
		return fmt.Errorf("%w: grid.username is required", ErrConfigurationMissing)
	}
	if cfg.Grid.Password == "" {
		return fmt.Errorf("%w: grid.password is required", ErrConfigurationMissing)
	}

	if t := cfg.Pipeline.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be within [0,1], got %v", t)
	}
	if c := cfg.Pipeline.EscalationCutoff; c < 0 || c > 1 {
		return fmt.Errorf("pipeline.escalation_cutoff must be within [0,1], got %v", c)
	}
	if cfg.Pipeline.MaxResults < 0 {
		return fmt.Errorf("pipeline.max_results must not be negative")
	}

	switch strings.ToLower(cfg.Catalog.Source) {
	case "default", "live":
	case "file":
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("%w: catalog.path is required when catalog.source is file", ErrConfigurationMissing)
		}
	default:
		return fmt.Errorf("catalog.source %q is not one of default, file, live", cfg.Catalog.Source)
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "none", "openai", "grok", "ollama", "gemini":
	case "custom":
		if cfg.LLM.Endpoint == "" {
			return fmt.Errorf("%w: llm.endpoint is required for the custom provider", ErrConfigurationMissing)
		}
	default:
		return fmt.Errorf("llm.provider %q is not supported", cfg.LLM.Provider)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("%w: camunda.broker_address is required", ErrConfigurationMissing)
	}
	if cfg.Audit.Postgres.Enabled && cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("%w: database.postgres.host is required for the postgres audit sink", ErrConfigurationMissing)
	}
	if cfg.Audit.Elasticsearch.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("%w: database.elasticsearch.url is required for the elasticsearch audit sink", ErrConfigurationMissing)
	}

	return nil
}

// ValidHost accepts a dotted IPv4 address or a DNS hostname, optionally with a port.
func ValidHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.To4() != nil
	}
	if len(host) > 253 {
		return false
	}
	// all-numeric dotted names are malformed IPv4, not hostnames
	if strings.Trim(host, "0123456789.") == "" {
		return false
	}
	return hostnamePattern.MatchString(host)
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
