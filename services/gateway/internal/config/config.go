package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                string   `yaml:"port"`
	LogLevel            string   `yaml:"logLevel"`
	RagServiceURL       string   `yaml:"ragServiceURL"`
	InternalTokenSecret string   `yaml:"internalTokenSecret"`
	MaxUploadBytes      int64    `yaml:"maxUploadBytes"`
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
	if v := os.Getenv("RAG_SERVICE_URL"); v != "" {
		cfg.RagServiceURL = v
	}
	if v := os.Getenv("INTERNAL_TOKEN_SECRET"); v != "" {
		cfg.InternalTokenSecret = v
	}
	if v := os.Getenv("GATEWAY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("GATEWAY_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
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
	if cfg.RagServiceURL == "" {
		return errors.New("config: ragServiceURL is required (set in config.yaml or RAG_SERVICE_URL)")
	}
	if strings.TrimSpace(cfg.InternalTokenSecret) == "" {
		return errors.New("config: internalTokenSecret is required (set in config.yaml or INTERNAL_TOKEN_SECRET)")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
