// Package config loads wink's settings from defaults, a YAML file and
// WINK_-prefixed environment variables, in increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override config keys. Nested
// keys use a double underscore: WINK_GATEWAY__PROVIDER sets gateway.provider.
const EnvPrefix = "WINK_"

// PathEnvVar overrides the config file search.
const PathEnvVar = "WINK_CONFIG"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"wink.yaml", "wink.yml", "config.yaml"}

type Config struct {
	Session   SessionConfig   `koanf:"session" yaml:"session"`
	Gateway   GatewayConfig   `koanf:"gateway" yaml:"gateway"`
	Pipeline  PipelineConfig  `koanf:"pipeline" yaml:"pipeline"`
	Embedding EmbeddingConfig `koanf:"embedding" yaml:"embedding"`
	Index     IndexConfig     `koanf:"index" yaml:"index"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Server    ServerConfig    `koanf:"server" yaml:"server"`
}

type SessionConfig struct {
	Dir  string `koanf:"dir" yaml:"dir" validate:"required"`
	Name string `koanf:"name" yaml:"name" validate:"required,excludesall=/"`
}

type GatewayConfig struct {
	Provider            string  `koanf:"provider" yaml:"provider" validate:"oneof=ollama openai gemini"`
	BaseURL             string  `koanf:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv           string  `koanf:"api_key_env" yaml:"api_key_env"`
	TranslateModel      string  `koanf:"translate_model" yaml:"translate_model" validate:"required"`
	CaptionModel        string  `koanf:"caption_model" yaml:"caption_model" validate:"required"`
	GenerateModel       string  `koanf:"generate_model" yaml:"generate_model" validate:"required"`
	Temperature         float64 `koanf:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	TextTimeoutSecs     int     `koanf:"text_timeout_secs" yaml:"text_timeout_secs" validate:"gt=0"`
	ImageTimeoutSecs    int     `koanf:"image_timeout_secs" yaml:"image_timeout_secs" validate:"gt=0"`
	BreakerFailures     uint32  `koanf:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldownSecs int     `koanf:"breaker_cooldown_secs" yaml:"breaker_cooldown_secs" validate:"gte=0"`
}

type PipelineConfig struct {
	KeywordCount int      `koanf:"keyword_count" yaml:"keyword_count" validate:"gte=1,lte=20"`
	TopK         int      `koanf:"top_k" yaml:"top_k" validate:"gte=1,lte=100"`
	Denylist     []string `koanf:"denylist" yaml:"denylist"`
	Topic        bool     `koanf:"topic" yaml:"topic"`
}

type EmbeddingConfig struct {
	Provider     string `koanf:"provider" yaml:"provider" validate:"oneof=hashing ollama openai"`
	Model        string `koanf:"model" yaml:"model" validate:"required_unless=Provider hashing"`
	BaseURL      string `koanf:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv    string `koanf:"api_key_env" yaml:"api_key_env"`
	Dimension    int    `koanf:"dimension" yaml:"dimension" validate:"gte=0"`
	CacheTTLSecs int    `koanf:"cache_ttl_secs" yaml:"cache_ttl_secs" validate:"gte=0"`
}

type IndexConfig struct {
	Backend      string `koanf:"backend" yaml:"backend" validate:"oneof=memory qdrant"`
	Path         string `koanf:"path" yaml:"path" validate:"required_if=Backend memory"`
	QdrantURL    string `koanf:"qdrant_url" yaml:"qdrant_url" validate:"required_if=Backend qdrant"`
	QdrantKeyEnv string `koanf:"qdrant_api_key_env" yaml:"qdrant_api_key_env"`
	Collection   string `koanf:"collection" yaml:"collection" validate:"required_if=Backend qdrant"`
	BatchSize    int    `koanf:"batch_size" yaml:"batch_size" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
}

type ServerConfig struct {
	Port        string `koanf:"port" yaml:"port" validate:"required,numeric"`
	UploadsDir  string `koanf:"uploads_dir" yaml:"uploads_dir" validate:"required"`
	MaxUploadMB int    `koanf:"max_upload_mb" yaml:"max_upload_mb" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Dir:  "sessions",
			Name: "active_session",
		},
		Gateway: GatewayConfig{
			Provider:            "ollama",
			TranslateModel:      "exaone3.5:7.8b",
			CaptionModel:        "llava:7b",
			GenerateModel:       "exaone3.5:7.8b",
			Temperature:         0,
			TextTimeoutSecs:     60,
			ImageTimeoutSecs:    180,
			BreakerFailures:     3,
			BreakerCooldownSecs: 30,
		},
		Pipeline: PipelineConfig{
			KeywordCount: 5,
			TopK:         5,
			Denylist:     []string{"keywords", "keyword", "text", "sentence", "output", "다음", "영어"},
			Topic:        true,
		},
		Embedding: EmbeddingConfig{
			Provider:     "hashing",
			Dimension:    512,
			CacheTTLSecs: 600,
		},
		Index: IndexConfig{
			Backend:    "memory",
			Path:       "index/catalog.parquet",
			Collection: "jamendo_songs",
			BatchSize:  64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Port:        "8888",
			UploadsDir:  "uploads",
			MaxUploadMB: 10,
		},
	}
}

// Load layers defaults, the YAML file at path (or the first of DefaultPaths
// that exists) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitListValue(k, "pipeline.denylist"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// Save writes cfg as YAML. It refuses to overwrite an existing file unless
// force is set.
func Save(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// TextTimeout is the deadline for a text-only model call.
func (g GatewayConfig) TextTimeout() time.Duration {
	return time.Duration(g.TextTimeoutSecs) * time.Second
}

func (g GatewayConfig) ImageTimeout() time.Duration {
	return time.Duration(g.ImageTimeoutSecs) * time.Second
}

func (g GatewayConfig) BreakerCooldown() time.Duration {
	return time.Duration(g.BreakerCooldownSecs) * time.Second
}

func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSecs) * time.Second
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps WINK_GATEWAY__BASE_URL to gateway.base_url.
func envTransform(key string) string {
	if key == PathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// splitListValue turns a comma-separated string, as set from the
// environment, into a list.
func splitListValue(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if err := k.Set(path, items); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
