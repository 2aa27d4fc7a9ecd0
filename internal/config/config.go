package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the petmatch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Matching  MatchingConfig  `yaml:"matching"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	OpTimeoutSec     int      `yaml:"op_timeout_sec"`
}

// ExtractorConfig selects and configures the feature extraction driver.
// The model artifact is versioned and frozen: descriptors produced by
// different model versions are not comparable.
type ExtractorConfig struct {
	Driver       string       `yaml:"driver"` // onnx, openai (default: onnx)
	ModelVersion string       `yaml:"model_version"`
	Dimensions   int          `yaml:"dimensions"`
	ONNX         ONNXConfig   `yaml:"onnx"`
	OpenAI       OpenAIConfig `yaml:"openai"`
}

// ONNXConfig holds in-process ONNX Runtime settings.
type ONNXConfig struct {
	ModelPath   string `yaml:"model_path"`
	LibraryPath string `yaml:"library_path"` // onnxruntime shared library
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
	PoolSize    int    `yaml:"pool_size"` // bounded session pool, default 4
}

// OpenAIConfig holds settings for an OpenAI-compatible image-embedding server.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// MatchingConfig holds the acceptance policy. Fixed configuration constants,
// not per-request overrides, so the matching policy stays centrally auditable.
type MatchingConfig struct {
	TopK          int     `yaml:"top_k"`
	MinConfidence float64 `yaml:"min_confidence"`
	// Oversample widens the KNN fetch before exclusion and re-scoring trims
	// the list back to TopK.
	Oversample int `yaml:"oversample"`
	// HNSW build parameters for the descriptor index.
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// NotifierConfig holds delivery collaborator settings. An empty webhook URL
// selects log-only delivery.
type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.OpTimeoutSec <= 0 {
		c.Database.OpTimeoutSec = 5
	}
	if c.Extractor.Driver == "" {
		c.Extractor.Driver = "onnx"
	}
	if c.Extractor.Dimensions <= 0 {
		c.Extractor.Dimensions = 1280 // MobileNetV2 global-pool feature size
	}
	if c.Extractor.ONNX.InputName == "" {
		c.Extractor.ONNX.InputName = "input"
	}
	if c.Extractor.ONNX.OutputName == "" {
		c.Extractor.ONNX.OutputName = "features"
	}
	if c.Extractor.ONNX.PoolSize <= 0 {
		c.Extractor.ONNX.PoolSize = 4
	}
	if c.Extractor.OpenAI.TimeoutSec <= 0 {
		c.Extractor.OpenAI.TimeoutSec = 15
	}
	if c.Matching.TopK <= 0 {
		c.Matching.TopK = 5
	}
	if c.Matching.MinConfidence <= 0 {
		c.Matching.MinConfidence = 0.75
	}
	if c.Matching.Oversample <= 0 {
		c.Matching.Oversample = 4
	}
	if c.Matching.HNSWM <= 0 {
		c.Matching.HNSWM = 32
	}
	if c.Matching.HNSWEFConstruct <= 0 {
		c.Matching.HNSWEFConstruct = 400
	}
	if c.Notifier.TimeoutSec <= 0 {
		c.Notifier.TimeoutSec = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "petmatch:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Extractor.Driver {
	case "onnx":
		if c.Extractor.ONNX.ModelPath == "" {
			return fmt.Errorf("extractor.onnx.model_path is required for the onnx driver")
		}
	case "openai":
		if c.Extractor.OpenAI.BaseURL == "" {
			return fmt.Errorf("extractor.openai.base_url is required for the openai driver")
		}
		if c.Extractor.OpenAI.Model == "" {
			return fmt.Errorf("extractor.openai.model is required for the openai driver")
		}
	default:
		return fmt.Errorf("extractor.driver must be \"onnx\" or \"openai\", got %q", c.Extractor.Driver)
	}
	if c.Extractor.ModelVersion == "" {
		return fmt.Errorf("extractor.model_version is required")
	}
	if c.Matching.MinConfidence < 0 || c.Matching.MinConfidence > 1 {
		return fmt.Errorf("matching.min_confidence must be in [0, 1], got %v", c.Matching.MinConfidence)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
