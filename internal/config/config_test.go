package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no file exists.
func TestDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q, want %q", cfg.Ollama.BaseURL, "http://localhost:11434")
	}
	if cfg.Ollama.Model != "qwen3:30b" {
		t.Errorf("Ollama.Model = %q, want %q", cfg.Ollama.Model, "qwen3:30b")
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/pdflearn" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Library.Dir != "/tmp/xdg-data/pdflearn/pdfs" {
		t.Errorf("Library.Dir = %q", cfg.Library.Dir)
	}
	if !cfg.Library.WarmOnStart {
		t.Error("Library.WarmOnStart = false, want true")
	}
	if cfg.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.Log.SlogLevel())
	}
}

// TestTOMLParsing verifies that all fields are correctly read from a TOML file.
func TestTOMLParsing(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = "0.0.0.0"
port = 5000
max_conns = 8

[ollama]
base_url = "http://custom:11434"
model = "llama3.2"

[storage]
data_dir = "/tmp/pdflearn-test"

[library]
dir = "/srv/books"
warm_on_start = false

[client]
stream_timeout = "30s"

[log]
level = "debug"
`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 || cfg.Server.MaxConns != 8 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Ollama.BaseURL != "http://custom:11434" || cfg.Ollama.Model != "llama3.2" {
		t.Errorf("Ollama = %+v", cfg.Ollama)
	}
	if cfg.Storage.DataDir != "/tmp/pdflearn-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Library.Dir != "/srv/books" || cfg.Library.WarmOnStart {
		t.Errorf("Library = %+v", cfg.Library)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.Log.SlogLevel())
	}
	if got := cfg.Client.Timeout().String(); got != "30s" {
		t.Errorf("Client.Timeout() = %s, want 30s", got)
	}
	if got := cfg.ServerURL(); got != "http://127.0.0.1:5000" {
		t.Errorf("ServerURL() = %q, want loopback for a wildcard host", got)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
[server]
port = 5000

[ollama]
model = "file-model"
`)

	t.Setenv("PDFLEARN_SERVER_PORT", "6000")
	t.Setenv("PDFLEARN_OLLAMA_MODEL", "env-model")
	t.Setenv("PDFLEARN_LIBRARY_WARM_ON_START", "false")
	t.Setenv("PDFLEARN_UNKNOWN_SETTING", "ignored")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Ollama.Model != "env-model" {
		t.Errorf("Ollama.Model = %q, want env-model", cfg.Ollama.Model)
	}
	if cfg.Library.WarmOnStart {
		t.Error("Library.WarmOnStart = true, want false from env")
	}
}

// TestEmptyEnvIgnored verifies that an empty variable does not clear a value.
func TestEmptyEnvIgnored(t *testing.T) {
	t.Setenv("PDFLEARN_OLLAMA_MODEL", "")

	cfg, err := loadFromPath("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.Model != "qwen3:30b" {
		t.Errorf("Ollama.Model = %q, want default", cfg.Ollama.Model)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad port", "[server]\nport = 70000\n", "server.port"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad timeout", "[client]\nstream_timeout = \"soon\"\n", "client.stream_timeout"},
		{"bad toml", "[server\n", "loading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFromPath(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdflearn", "config.toml")

	if err := setKeyAt(path, "server.port", "9000"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}
	if err := setKeyAt(path, "ollama.model", "mistral"); err != nil {
		t.Fatalf("setKeyAt: %v", err)
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("loadFromPath: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ollama.Model != "mistral" {
		t.Errorf("Ollama.Model = %q, want mistral", cfg.Ollama.Model)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := setKeyAt(path, "no.such.key", "x"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unknown key error = %v", err)
	}
	if err := setKeyAt(path, "server.port", "eighty"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyAt(path, "log.level", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rejected values should not create the file, stat err = %v", err)
	}
}

func TestShowAll(t *testing.T) {
	cfg := defaults()
	cfg.Ollama.Model = "phi4"

	keys := ShowAll(cfg)
	if len(keys) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(keys), len(ValidKeys()))
	}
	for _, k := range keys {
		if k.Key == "ollama.model" {
			if k.Value != "phi4" || k.EnvVar != "PDFLEARN_OLLAMA_MODEL" {
				t.Errorf("ollama.model = %+v", k)
			}
			return
		}
	}
	t.Error("ollama.model missing from ShowAll")
}

func TestServerURL_Override(t *testing.T) {
	cfg := defaults()
	cfg.Client.ServerURL = "http://books.local:9000/"
	if got := cfg.ServerURL(); got != "http://books.local:9000" {
		t.Errorf("ServerURL() = %q", got)
	}
}
