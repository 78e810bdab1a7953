package application

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hangarlabs/aw139-certainty/infrastructure/middleware"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Environment variables that override the configuration file.
const (
	EnvConfigFile    = "AW139_CONFIG"
	EnvPort          = "AW139_PORT"
	EnvLogLevel      = "AW139_LOG_LEVEL"
	EnvIndexPath     = "AW139_INDEX_PATH"
	EnvDefaultModel  = "AW139_LLM_DEFAULT"
	EnvPipelineFile  = "AW139_PIPELINE_FILE"
	EnvDiagnosisMode = "AW139_DIAGNOSIS_MODE"
)

// ServiceConfig is the complete service configuration document.
type ServiceConfig struct {
	Version   string           `yaml:"version" validate:"required,semver"`
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	LLM       LLMConfig        `yaml:"llm"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
	Certainty certainty.Config `yaml:"certainty"`
	Pipeline  PipelineSettings `yaml:"pipeline"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	Mode            string        `yaml:"mode" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
	CORSOrigins     []string      `yaml:"cors_origins" validate:"dive,min=1"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return s.Host + ":" + strconv.Itoa(s.Port) }

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level" validate:"oneof=debug info warn error disabled"`
	JSON      bool   `yaml:"json"`
	AddSource bool   `yaml:"add_source"`
}

// Logger returns the logger configuration for this section.
func (l LoggingConfig) Logger() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.LogLevel(l.Level)
	cfg.JSON = l.JSON
	cfg.AddSource = l.AddSource
	return cfg
}

// LLMConfig configures the provider registry and the client middleware.
type LLMConfig struct {
	// Default is the "provider" or "provider/model" used by units without
	// their own model.
	Default string `yaml:"default" validate:"required,providermodel"`
	// Enabled turns LLM generation on. Without it the service runs in
	// retrieval-only mode and needs no API key for generation.
	Enabled bool `yaml:"enabled"`
	// EmbeddingModel is the OpenAI embedding model for query vectors.
	EmbeddingModel     string        `yaml:"embedding_model" validate:"required"`
	EmbeddingCacheSize int           `yaml:"embedding_cache_size" validate:"min=1"`
	Timeout            time.Duration `yaml:"timeout" validate:"min=0"`
	MaxRetries         int           `yaml:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay" validate:"min=0"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay" validate:"min=0"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst              int           `yaml:"burst" validate:"min=1"`
	BreakerFailures    int           `yaml:"breaker_failures" validate:"min=1"`
	BreakerCooldown    time.Duration `yaml:"breaker_cooldown" validate:"min=0"`
}

// RetrievalConfig configures the index and the retrieval wrappers.
type RetrievalConfig struct {
	IndexPath  string        `yaml:"index_path" validate:"required"`
	CacheItems int64         `yaml:"cache_items" validate:"min=0"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"min=0"`
	MaxRetries uint64        `yaml:"max_retries" validate:"max=10"`
	RetryBase  time.Duration `yaml:"retry_base" validate:"min=0"`
	// GenerateAnswers lets the retriever produce an answer with the default
	// LLM. Only effective when llm.enabled is set.
	GenerateAnswers bool `yaml:"generate_answers"`
}

// PipelineSettings selects the pipeline definition and its request budget.
type PipelineSettings struct {
	// File is a pipeline definition. Empty uses the built-in pipeline.
	File string `yaml:"file"`
	// DiagnosisMode overrides the mode of every diagnosis unit: "rag" or
	// "llm". Empty keeps the definition.
	DiagnosisMode string `yaml:"diagnosis_mode" validate:"omitempty,oneof=rag llm"`
	// Timeout bounds one pipeline run.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// Budget bounds the LLM usage of one request across the pipeline.
	Budget middleware.Budget `yaml:"budget"`
}

// DefaultServiceConfig returns the configuration used when no file is
// given.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Version: "1.0.0",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{Level: string(logger.InfoLevel)},
		LLM: LLMConfig{
			Default:            "openai",
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingCacheSize: 1024,
			Timeout:            60 * time.Second,
			MaxRetries:         3,
			RetryBaseDelay:     time.Second,
			RetryMaxDelay:      10 * time.Second,
			RequestsPerSecond:  5,
			Burst:              5,
			BreakerFailures:    5,
			BreakerCooldown:    30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			IndexPath:  "embeddings.json",
			CacheItems: 1000,
			CacheTTL:   10 * time.Minute,
			MaxRetries: 3,
			RetryBase:  time.Second,
		},
		Certainty: certainty.DefaultConfig(),
		Pipeline: PipelineSettings{
			Timeout: 2 * time.Minute,
		},
	}
}

// LoadEnvFiles loads .env files into the process environment. Variables
// already set win. A missing default ".env" is ignored.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) && filepath.Base(f) == ".env" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return ports.NewConfigError("env_file", fmt.Errorf("load %s: %w", f, err))
		}
	}
	return nil
}

// LoadServiceConfig reads path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, ports.NewConfigError("config_file", err)
		}
		if err := decodeServiceConfig(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeServiceConfig(data []byte, cfg *ServiceConfig) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return ports.NewConfigError("config_file", fmt.Errorf("YAML decode failed: %w", err))
	}
	return nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *ServiceConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ports.NewConfigError(EnvPort, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvIndexPath); ok && v != "" {
		c.Retrieval.IndexPath = v
	}
	if v, ok := lookup(EnvDefaultModel); ok && v != "" {
		c.LLM.Default = v
	}
	if v, ok := lookup(EnvPipelineFile); ok && v != "" {
		c.Pipeline.File = v
	}
	if v, ok := lookup(EnvDiagnosisMode); ok && v != "" {
		c.Pipeline.DiagnosisMode = v
		if v == "llm" {
			c.LLM.Enabled = true
		}
	}
	return nil
}

var configValidator = func() *validator.Validate {
	v := validator.New()
	if err := RegisterValidators(v); err != nil {
		panic(err)
	}
	return v
}()

// Validate checks every section, including the certainty scorer rules.
func (c *ServiceConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return ports.NewConfigError("service", err)
	}
	if err := c.Certainty.Validate(); err != nil {
		return ports.NewConfigError("certainty", err)
	}
	if c.Pipeline.DiagnosisMode == "llm" && !c.LLM.Enabled {
		return ports.NewConfigError("pipeline.diagnosis_mode", errors.New("llm mode requires llm.enabled"))
	}
	return nil
}
