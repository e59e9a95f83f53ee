package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Ollama  OllamaConfig  `koanf:"ollama"`
	Storage StorageConfig `koanf:"storage"`
	Library LibraryConfig `koanf:"library"`
	Client  ClientConfig  `koanf:"client"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	MaxConns int    `koanf:"max_conns"`
}

type OllamaConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

type LibraryConfig struct {
	Dir string `koanf:"dir"`
	// WarmOnStart queues page extraction for documents without cached text.
	WarmOnStart bool `koanf:"warm_on_start"`
}

// ClientConfig is used by the read and chat commands to reach a running
// server.
type ClientConfig struct {
	// ServerURL overrides the address derived from Server.Host and Server.Port.
	ServerURL     string `koanf:"server_url"`
	StreamTimeout string `koanf:"stream_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8000,
			MaxConns: 64,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen3:30b",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Library: LibraryConfig{
			Dir:         filepath.Join(dataDir, "pdfs"),
			WarmOnStart: true,
		},
		Client: ClientConfig{
			StreamTimeout: "10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, the TOML file at FilePath (if
// present), and PDFLEARN_* environment variables, in increasing priority.
func Load() (Config, error) {
	return loadFromPath(FilePath())
}

func loadFromPath(path string) (Config, error) {
	k := koanf.New(".")

	d := defaults()
	defaultMap := make(map[string]any, len(specs))
	for _, s := range specs {
		defaultMap[s.key] = s.extract(d)
	}
	if err := k.Load(confmap.Provider(defaultMap, "."), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return Config{}, fmt.Errorf("loading %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is not a valid port", c.Server.Port))
	}
	if c.Server.MaxConns < 1 {
		problems = append(problems, "server.max_conns must be positive")
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		problems = append(problems, "ollama.model is required")
	}
	if c.Client.StreamTimeout != "" {
		if _, err := time.ParseDuration(c.Client.StreamTimeout); err != nil {
			problems = append(problems, fmt.Sprintf("client.stream_timeout: %v", err))
		}
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel maps the configured level name to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	if l, ok := levels[strings.ToLower(c.Level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// ServerURL is the base URL clients use to reach the server.
func (c Config) ServerURL() string {
	if c.Client.ServerURL != "" {
		return strings.TrimRight(c.Client.ServerURL, "/")
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// Timeout bounds one streamed reply as seen by clients. Zero means no
// limit.
func (c ClientConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.StreamTimeout)
	if err != nil {
		return 0
	}
	return d
}
