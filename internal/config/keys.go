package config

import (
	"fmt"
	"os"
	"strconv"
)

const envPrefix = "PDFLEARN_"

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "PDFLEARN_SERVER_HOST",
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "PDFLEARN_SERVER_PORT",
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "PDFLEARN_SERVER_MAX_CONNS",
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PDFLEARN_OLLAMA_BASE_URL",
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "PDFLEARN_OLLAMA_MODEL",
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PDFLEARN_STORAGE_DATA_DIR",
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "library.dir", typ: kString, env: "PDFLEARN_LIBRARY_DIR",
		extract: func(cfg Config) any { return cfg.Library.Dir },
	},
	{
		key: "library.warm_on_start", typ: kBool, env: "PDFLEARN_LIBRARY_WARM_ON_START",
		extract: func(cfg Config) any { return cfg.Library.WarmOnStart },
	},
	{
		key: "client.server_url", typ: kString, env: "PDFLEARN_CLIENT_SERVER_URL",
		extract: func(cfg Config) any { return cfg.Client.ServerURL },
	},
	{
		key: "client.stream_timeout", typ: kString, env: "PDFLEARN_CLIENT_STREAM_TIMEOUT",
		extract: func(cfg Config) any { return cfg.Client.StreamTimeout },
	},
	{
		key: "log.level", typ: kString, env: "PDFLEARN_LOG_LEVEL",
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// envKey maps a PDFLEARN_* variable to its config key. Unknown and empty
// variables map to "" and are skipped by the env provider.
func envKey(name string) string {
	if os.Getenv(name) == "" {
		return ""
	}
	for _, s := range specs {
		if s.env == name {
			return s.key
		}
	}
	return ""
}

// parse converts a raw string to the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value for %s: %w", s.key, err)
		}
		return b, nil
	}
	return raw, nil
}
