// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Grid       GridConfig              `mapstructure:"grid"`
	Pipeline   PipelineConfig          `mapstructure:"pipeline"`
	Classifier ClassifierConfig        `mapstructure:"classifier"`
	LLM        LLMConfig               `mapstructure:"llm"`
	Catalog    CatalogConfig           `mapstructure:"catalog"`
	Camunda    CamundaConfig           `mapstructure:"camunda"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Audit      AuditConfig             `mapstructure:"audit"`
	Workers    map[string]WorkerConfig `mapstructure:"workers"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Server     ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// GridConfig locates the grid's REST API and holds its credentials.
type GridConfig struct {
	Host        string `mapstructure:"host"`
	WAPIVersion string `mapstructure:"wapi_version"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	SSLVerify   bool   `mapstructure:"ssl_verify"`
	URL         string `mapstructure:"url"`     // overrides https://<host>/wapi/<version>
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

// BaseURL returns the API root every object path is appended to.
func (g GridConfig) BaseURL() string {
	if g.URL != "" {
		return strings.TrimRight(g.URL, "/")
	}
	return fmt.Sprintf("https://%s/wapi/%s", g.Host, g.WAPIVersion)
}

// PipelineConfig holds the query-pipeline tunables.
type PipelineConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	EscalationCutoff    float64 `mapstructure:"escalation_cutoff"`
	MaxResults          int     `mapstructure:"max_results"` // 0 omits _max_results
	ApplyEscalation     bool    `mapstructure:"apply_escalation"`
	DeriveObjectNoun    bool    `mapstructure:"derive_object_noun"`
	CheckRequiredFields bool    `mapstructure:"check_required_fields"`
}

type ClassifierConfig struct {
	ZeroShot ZeroShotConfig `mapstructure:"zero_shot"`
}

// ZeroShotConfig configures the embedding-backed classifier strategy.
type ZeroShotConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMConfig selects the escalation backend.
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // none, openai, grok, ollama, custom, gemini
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	Timeout  int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, 0 disables the cache
}

// Enabled reports whether an escalation backend is configured.
func (l LLMConfig) Enabled() bool {
	p := strings.ToLower(l.Provider)
	if p == "" || p == "none" {
		return false
	}
	// ollama runs locally without a key
	return l.APIKey != "" || p == "ollama"
}

type CatalogConfig struct {
	Source string `mapstructure:"source"` // default, file, live
	Path   string `mapstructure:"path"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Enabled        bool   `mapstructure:"enabled"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuditConfig enables the query-history sinks.
type AuditConfig struct {
	Postgres struct {
		Enabled bool   `mapstructure:"enabled"`
		Table   string `mapstructure:"table"`
	} `mapstructure:"postgres"`
	Elasticsearch struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`
}

// WorkerConfig holds the settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RuntimeSettings is the per-query snapshot the pipeline reads. It is
// replaced wholesale, never edited in place.
type RuntimeSettings struct {
	Grid     GridConfig
	Pipeline PipelineConfig
}

// RuntimeSettings derives the pipeline snapshot from the loaded config.
func (c *Config) RuntimeSettings() *RuntimeSettings {
	return &RuntimeSettings{
		Grid:     c.Grid,
		Pipeline: c.Pipeline,
	}
}
