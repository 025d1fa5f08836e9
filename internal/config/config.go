package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Provider kinds accepted in llm.provider / LLM_PROVIDER.
const (
	ProviderAICore = "sap_aicore"
	ProviderLocal  = "local"
)

// Storage drivers accepted in storage.driver / STORAGE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMinio    = "minio"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// LLMConfig is the provider configuration. It is built once at startup and
// shared read-only by the provider implementations.
type LLMConfig struct {
	Provider         string        `yaml:"provider" envconfig:"LLM_PROVIDER"`
	MaxTokens        int           `yaml:"maxTokens" envconfig:"LLM_MAX_TOKENS"`
	Temperature      float64       `yaml:"temperature" envconfig:"LLM_TEMPERATURE"`
	TokenTimeout     time.Duration `yaml:"tokenTimeout" envconfig:"LLM_TOKEN_TIMEOUT"`
	InferenceTimeout time.Duration `yaml:"inferenceTimeout" envconfig:"LLM_INFERENCE_TIMEOUT"`
	ReuseToken       bool          `yaml:"reuseToken" envconfig:"LLM_REUSE_TOKEN"`
	MaxConcurrent    int           `yaml:"maxConcurrent" envconfig:"LLM_MAX_CONCURRENT"`

	AICore AICoreConfig `yaml:"aicore"`
	Local  LocalConfig  `yaml:"local"`
}

type AICoreConfig struct {
	TokenURL      string `yaml:"tokenUrl" envconfig:"AI_CORE_TOKEN_URL"`
	ClientID      string `yaml:"clientId" envconfig:"AI_CORE_CLIENT_ID"`
	ClientSecret  string `yaml:"clientSecret" envconfig:"AI_CORE_CLIENT_SECRET"`
	InferenceURL  string `yaml:"inferenceUrl" envconfig:"AI_CORE_INFERENCE_URL"`
	ModelName     string `yaml:"modelName" envconfig:"AI_CORE_MODEL_NAME"`
	ResourceGroup string `yaml:"resourceGroup" envconfig:"AI_CORE_RESOURCE_GROUP"`
}

type LocalConfig struct {
	URL string `yaml:"url" envconfig:"LOCAL_LLM_URL"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// Path of the sqlite database file
	Path string `yaml:"path" envconfig:"STORAGE_DB"`

	Database DatabaseConfig `yaml:"database"`
	Minio    MinioConfig    `yaml:"minio"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"sslMode" envconfig:"DB_SSLMODE"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKey  string `yaml:"accessKey" envconfig:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" envconfig:"MINIO_SECRET_KEY"`
	BucketName string `yaml:"bucketName" envconfig:"MINIO_BUCKET"`
	Region     string `yaml:"region" envconfig:"MINIO_REGION"`
	UseSSL     bool   `yaml:"useSSL" envconfig:"MINIO_USE_SSL"`
}

type AuthConfig struct {
	// APIKeys gates /api and /v1 when non-empty
	APIKeys []string `yaml:"apiKeys" envconfig:"API_KEYS"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins" envconfig:"CORS_ALLOWED_ORIGINS"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" envconfig:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
}

// Load reads the yaml file at path (a missing file is not an error), applies
// environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// inference alone may take a minute
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderAICore
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 800
	}
	if c.LLM.TokenTimeout == 0 {
		c.LLM.TokenTimeout = 15 * time.Second
	}
	if c.LLM.InferenceTimeout == 0 {
		c.LLM.InferenceTimeout = 60 * time.Second
	}
	if c.LLM.MaxConcurrent <= 0 {
		c.LLM.MaxConcurrent = 4
	}
	if c.LLM.AICore.ResourceGroup == "" {
		c.LLM.AICore.ResourceGroup = "default"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/st22.db"
	}
	if c.Storage.Database.SSLMode == "" {
		c.Storage.Database.SSLMode = "disable"
	}
	if c.Storage.Minio.BucketName == "" {
		c.Storage.Minio.BucketName = "st22-analyses"
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// ProviderKind folds the provider aliases into ProviderAICore or ProviderLocal.
// Unknown values are returned unchanged.
func (c *LLMConfig) ProviderKind() string {
	switch c.Provider {
	case ProviderAICore:
		return ProviderAICore
	case ProviderLocal, "ollama", "vllm":
		return ProviderLocal
	default:
		return c.Provider
	}
}

// Missing lists the required settings of the active provider that are empty.
func (c *LLMConfig) Missing() []string {
	var missing []string
	switch c.ProviderKind() {
	case ProviderAICore:
		if c.AICore.TokenURL == "" {
			missing = append(missing, "AI_CORE_TOKEN_URL")
		}
		if c.AICore.ClientID == "" {
			missing = append(missing, "AI_CORE_CLIENT_ID")
		}
		if c.AICore.ClientSecret == "" {
			missing = append(missing, "AI_CORE_CLIENT_SECRET")
		}
		if c.AICore.InferenceURL == "" {
			missing = append(missing, "AI_CORE_INFERENCE_URL")
		}
	case ProviderLocal:
		if c.Local.URL == "" {
			missing = append(missing, "LOCAL_LLM_URL")
		}
	}
	return missing
}

// MySQLDSN builds the go-sql-driver DSN
func (c *Config) MySQLDSN() string {
	d := c.Storage.Database
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
	)
}

// PostgresDSN builds the lib/pq connection string
func (c *Config) PostgresDSN() string {
	d := c.Storage.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
