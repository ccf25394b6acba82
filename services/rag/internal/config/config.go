package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreBackend string `yaml:"storeBackend"`
	DatabaseURL  string `yaml:"databaseURL"`
	EmbeddingDim int    `yaml:"embeddingDim"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	ObjectBackend  string `yaml:"objectBackend"`
	DataDir        string `yaml:"dataDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	ModelBaseURL    string `yaml:"modelBaseURL"`
	ModelAPIKey     string `yaml:"modelAPIKey"`
	EmbeddingModel  string `yaml:"embeddingModel"`
	GenerationModel string `yaml:"generationModel"`
	MaxTokens       int    `yaml:"maxTokens"`

	TopK                int     `yaml:"topK"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	ChunkSize           int     `yaml:"chunkSize"`
	ChunkOverlap        int     `yaml:"chunkOverlap"`
	MaxFiles            int     `yaml:"maxFiles"`
	MaxFileSizeMB       int     `yaml:"maxFileSizeMB"`

	CreateRateLimitPerMinute int `yaml:"createRateLimitPerMinute"`
	ChatRateLimitPerMinute   int `yaml:"chatRateLimitPerMinute"`
	ProjectChatBudget        int `yaml:"projectChatBudget"`

	InternalTokenSecret string   `yaml:"internalTokenSecret"`
	AllowedIssuers      []string `yaml:"allowedIssuers"`
	TrustedProxies      []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MODEL_BASE_URL"); v != "" {
		cfg.ModelBaseURL = v
	}
	if v := os.Getenv("MODEL_API_KEY"); v != "" {
		cfg.ModelAPIKey = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("INTERNAL_TOKEN_SECRET"); v != "" {
		cfg.InternalTokenSecret = v
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "postgres"
	}
	if cfg.ObjectBackend == "" {
		cfg.ObjectBackend = "disk"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storeBackend %q (want postgres or memory)", cfg.StoreBackend)
	}
	switch cfg.ObjectBackend {
	case "disk":
		if cfg.DataDir == "" {
			return errors.New("config: dataDir is required (set in config.yaml)")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown objectBackend %q (want disk or minio)", cfg.ObjectBackend)
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.ModelBaseURL == "" {
		return errors.New("config: modelBaseURL is required (set in config.yaml or MODEL_BASE_URL)")
	}
	if cfg.EmbeddingModel == "" {
		return errors.New("config: embeddingModel is required (set in config.yaml)")
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml)")
	}
	if cfg.InternalTokenSecret == "" {
		return errors.New("config: internalTokenSecret is required (set in config.yaml or INTERNAL_TOKEN_SECRET)")
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be smaller than chunkSize")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return errors.New("config: similarityThreshold must be between 0 and 1")
	}
	return nil
}
