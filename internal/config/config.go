// Package config loads gateway configuration from config.yaml with
// ONDO_-prefixed environment overrides.
package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Providers  ProvidersConfig  `koanf:"providers"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Tools      ToolsConfig      `koanf:"tools"`
	Storage    StorageConfig    `koanf:"storage"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RequestTimeout bounds non-streaming work; streams are bounded by the
	// client connection and provider-level timeouts instead.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type ProvidersConfig struct {
	OpenAI    APIProviderConfig `koanf:"openai"`
	Anthropic APIProviderConfig `koanf:"anthropic"`
	Glean     APIProviderConfig `koanf:"glean"`
	Assistant APIProviderConfig `koanf:"assistant"`
	Cmdbot    CmdbotConfig      `koanf:"cmdbot"`
}

// APIProviderConfig configures one HTTP-API provider.
type APIProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// CmdbotConfig configures the internal bot run as an external process.
type CmdbotConfig struct {
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout"`
}

type ClassifierConfig struct {
	// Mode is rule_based or llm_hybrid. llm_hybrid is a documented extension
	// point that currently falls back to rule-based scoring.
	Mode                string  `koanf:"mode"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
}

type ToolsConfig struct {
	// MaxRounds bounds tool round-trips per user turn.
	MaxRounds int `koanf:"max_rounds"`
	// Timeout bounds a single tool execution.
	Timeout time.Duration `koanf:"timeout"`
}

type StorageConfig struct {
	// Type is sqlite, memory, or none.
	Type string `koanf:"type"`
	Path string `koanf:"path"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (when present) and applies environment overrides.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path, for tests.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// Missing file is fine; env vars carry the config then.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("ONDO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ONDO_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Providers.OpenAI.APIKey = substituteEnvVars(cfg.Providers.OpenAI.APIKey)
	cfg.Providers.Anthropic.APIKey = substituteEnvVars(cfg.Providers.Anthropic.APIKey)
	cfg.Providers.Glean.APIKey = substituteEnvVars(cfg.Providers.Glean.APIKey)
	cfg.Providers.Assistant.APIKey = substituteEnvVars(cfg.Providers.Assistant.APIKey)

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                     8080,
		"server.request_timeout":          "30s",
		"classifier.mode":                 "rule_based",
		"classifier.confidence_threshold": 0.6,
		"tools.max_rounds":                10,
		"tools.timeout":                   "30s",
		"storage.type":                    "memory",
		"providers.cmdbot.timeout":        "60s",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
