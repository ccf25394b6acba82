package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
logLevel: debug
ragServiceURL: http://rag:8090
internalTokenSecret: 0123456789abcdef0123456789abcdef
maxUploadBytes: 1048576
trustedProxies:
  - 10.0.0.0/8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.RagServiceURL != "http://rag:8090" {
		t.Fatalf("RagServiceURL = %q, want %q", cfg.RagServiceURL, "http://rag:8090")
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 1048576)
	}
	if len(cfg.TrustedProxies) != 1 || cfg.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("TrustedProxies = %v, want [10.0.0.0/8]", cfg.TrustedProxies)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
ragServiceURL: http://rag:8090
internalTokenSecret: 0123456789abcdef0123456789abcdef
`)
	t.Setenv("RAG_SERVICE_URL", "http://rag-canary:8090")
	t.Setenv("GATEWAY_TRUSTED_PROXIES", "10.0.0.1, 192.168.0.0/16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RagServiceURL != "http://rag-canary:8090" {
		t.Fatalf("RagServiceURL = %q, want env override", cfg.RagServiceURL)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.0.0/16" {
		t.Fatalf("TrustedProxies = %v, want two parsed entries", cfg.TrustedProxies)
	}
}

func TestLoadConfigRequiresRagServiceURL(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
internalTokenSecret: 0123456789abcdef0123456789abcdef
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing ragServiceURL")
	}
	if !strings.Contains(err.Error(), "ragServiceURL") {
		t.Fatalf("error = %v, want mention of ragServiceURL", err)
	}
}

func TestLoadConfigRequiresTokenSecret(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
ragServiceURL: http://rag:8090
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing internalTokenSecret")
	}
}
