package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Milvus   MilvusConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Ingest   IngestConfig
	Selector SelectorConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type StorageConfig struct {
	SQLitePath string
	UploadDir  string
	LockDir    string
}

type MilvusConfig struct {
	Endpoint         string
	APIKey           string
	CollectionPrefix string
	VectorDim        int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	VisionModel    string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type SelectorConfig struct {
	// Strategy is "embedding" (nearest summary) or "llm" (prompted choice).
	Strategy string
}

type AuthConfig struct {
	JWTSecret   string
	TokenTTLMin int
	BcryptCost  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docqa")

	viper.SetEnvPrefix("DOCQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate checks settings whose absence must fail before any network call.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("configuration error: llm.apiKey is not set (DOCQA_LLM_APIKEY)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("configuration error: auth.jwtSecret is not set (DOCQA_AUTH_JWTSECRET)")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 52428800)

	viper.SetDefault("storage.sqlitePath", "./data/docqa.db")
	viper.SetDefault("storage.uploadDir", "./data/uploads")
	viper.SetDefault("storage.lockDir", "./data/locks")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.apiKey", "")
	viper.SetDefault("milvus.collectionPrefix", "doc")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// env-only secrets need a registered key or AutomaticEnv never
	// consults them during Unmarshal
	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("auth.jwtSecret", "")

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.visionModel", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("ingest.chunkSize", 1000)
	viper.SetDefault("ingest.chunkOverlap", 100)

	viper.SetDefault("selector.strategy", "embedding")

	viper.SetDefault("auth.tokenTTLMin", 720)
	viper.SetDefault("auth.bcryptCost", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
