// Package config loads Nova's settings from defaults, an optional nova.yaml,
// a .env file and NOVA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MemoryConfig locates the memory backends. Empty paths are placed under Dir.
type MemoryConfig struct {
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	IndexDir   string `mapstructure:"index_dir"`
	AuditDir   string `mapstructure:"audit_dir"`

	// Embedder is "hash" or, in builds with the onnx tag, "onnx".
	Embedder   string     `mapstructure:"embedder"`
	Dimensions int        `mapstructure:"dimensions"`
	ONNX       ONNXConfig `mapstructure:"onnx"`

	Cache     CacheConfig   `mapstructure:"cache"`
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	RecordTTL time.Duration `mapstructure:"record_ttl"`
}

type ONNXConfig struct {
	Library   string `mapstructure:"library"`
	Model     string `mapstructure:"model"`
	Tokenizer string `mapstructure:"tokenizer"`
}

// CacheConfig selects the ephemeral cache. Backend is "local" or "redis".
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	MaxBytes  int64  `mapstructure:"max_bytes"`
	RedisURL  string `mapstructure:"redis_url"`
	RedisAddr string `mapstructure:"redis_addr"`
}

// AuditConfig mirrors audit lines to Kafka when brokers are set.
type AuditConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ToolsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`

	// Rate caps tool attempts per second. Zero disables the limit.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`

	// Root confines code.read, code.write and shell.exec. ProjectsDir
	// defaults to Root/projects.
	Root        string `mapstructure:"root"`
	ProjectsDir string `mapstructure:"projects_dir"`

	AllowShell   bool `mapstructure:"allow_shell"`
	AllowNetwork bool `mapstructure:"allow_network"`
}

type EngineConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxSteps int  `mapstructure:"max_steps"`
}

type AssistantConfig struct {
	// SaveMode is "ask" to stage relationship facts for approval, anything
	// else to save them immediately.
	SaveMode   string        `mapstructure:"save_mode"`
	UserEntity string        `mapstructure:"user_entity"`
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type ProvidersConfig struct {
	OpenWeatherKey   string `mapstructure:"openweather_key"`
	GoogleMapsKey    string `mapstructure:"google_maps_key"`
	DiscordToken     string `mapstructure:"discord_token"`
	DiscordChannelID string `mapstructure:"discord_channel_id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Memory: MemoryConfig{
			Dir:        "data",
			Embedder:   "hash",
			Dimensions: 384,
			Cache:      CacheConfig{Backend: "local", MaxBytes: 64 << 20},
			SearchTTL:  120 * time.Second,
			RecordTTL:  24 * time.Hour,
		},
		Audit:     AuditConfig{Kafka: KafkaConfig{Brokers: []string{}, Topic: "nova-audit"}},
		Tools: ToolsConfig{
			Timeout:      20 * time.Second,
			Retries:      1,
			Burst:        1,
			Root:         ".",
			AllowNetwork: true,
		},
		Engine:    EngineConfig{Enabled: true, MaxSteps: 12},
		Assistant: AssistantConfig{SaveMode: "ask", UserEntity: "user", PendingTTL: 30 * time.Minute},
		LLM:       LLMConfig{Model: "claude-sonnet-4-20250514", MaxRetries: 2},
	}
}

// Provider credentials and the tool gates keep their conventional names as
// fallbacks.
var envAliases = map[string]string{
	"llm.api_key":                  "ANTHROPIC_API_KEY",
	"providers.openweather_key":    "OPENWEATHER_API_KEY",
	"providers.google_maps_key":    "GOOGLE_MAPS_API_KEY",
	"providers.discord_token":      "DISCORD_BOT_TOKEN",
	"providers.discord_channel_id": "DISCORD_CHANNEL_ID",
	"tools.allow_shell":            "NOVA_ALLOW_SHELL",
	"tools.allow_network":          "NOVA_ALLOW_NETWORK_TOOLS",
}

// Load reads configuration. path names a config file; when empty, nova.yaml
// is looked up in the working directory and ~/.nova. A .env file in the
// working directory is loaded first and never overrides the environment.
//
// Precedence, highest first: NOVA_* variables, the conventional credential
// variables, the config file, defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nova")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".nova"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, "NOVA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Memory.resolvePaths()
	cfg.Tools.resolvePaths()
	return cfg, nil
}

func (m *MemoryConfig) resolvePaths() {
	if m.SQLitePath == "" {
		m.SQLitePath = filepath.Join(m.Dir, "nova.db")
	}
	if m.IndexDir == "" {
		m.IndexDir = filepath.Join(m.Dir, "index")
	}
	if m.AuditDir == "" {
		m.AuditDir = filepath.Join(m.Dir, "audit")
	}
}

func (t *ToolsConfig) resolvePaths() {
	if t.Root == "" {
		t.Root = "."
	}
	if t.ProjectsDir == "" {
		t.ProjectsDir = filepath.Join(t.Root, "projects")
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("memory.dir", d.Memory.Dir)
	v.SetDefault("memory.sqlite_path", d.Memory.SQLitePath)
	v.SetDefault("memory.index_dir", d.Memory.IndexDir)
	v.SetDefault("memory.audit_dir", d.Memory.AuditDir)
	v.SetDefault("memory.embedder", d.Memory.Embedder)
	v.SetDefault("memory.dimensions", d.Memory.Dimensions)
	v.SetDefault("memory.onnx.library", d.Memory.ONNX.Library)
	v.SetDefault("memory.onnx.model", d.Memory.ONNX.Model)
	v.SetDefault("memory.onnx.tokenizer", d.Memory.ONNX.Tokenizer)
	v.SetDefault("memory.cache.backend", d.Memory.Cache.Backend)
	v.SetDefault("memory.cache.max_bytes", d.Memory.Cache.MaxBytes)
	v.SetDefault("memory.cache.redis_url", d.Memory.Cache.RedisURL)
	v.SetDefault("memory.cache.redis_addr", d.Memory.Cache.RedisAddr)
	v.SetDefault("memory.search_ttl", d.Memory.SearchTTL)
	v.SetDefault("memory.record_ttl", d.Memory.RecordTTL)

	v.SetDefault("audit.kafka.brokers", d.Audit.Kafka.Brokers)
	v.SetDefault("audit.kafka.topic", d.Audit.Kafka.Topic)

	v.SetDefault("tools.timeout", d.Tools.Timeout)
	v.SetDefault("tools.retries", d.Tools.Retries)
	v.SetDefault("tools.rate", d.Tools.Rate)
	v.SetDefault("tools.burst", d.Tools.Burst)
	v.SetDefault("tools.root", d.Tools.Root)
	v.SetDefault("tools.projects_dir", d.Tools.ProjectsDir)
	v.SetDefault("tools.allow_shell", d.Tools.AllowShell)
	v.SetDefault("tools.allow_network", d.Tools.AllowNetwork)

	v.SetDefault("engine.enabled", d.Engine.Enabled)
	v.SetDefault("engine.max_steps", d.Engine.MaxSteps)

	v.SetDefault("assistant.save_mode", d.Assistant.SaveMode)
	v.SetDefault("assistant.user_entity", d.Assistant.UserEntity)
	v.SetDefault("assistant.pending_ttl", d.Assistant.PendingTTL)

	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("providers.openweather_key", d.Providers.OpenWeatherKey)
	v.SetDefault("providers.google_maps_key", d.Providers.GoogleMapsKey)
	v.SetDefault("providers.discord_token", d.Providers.DiscordToken)
	v.SetDefault("providers.discord_channel_id", d.Providers.DiscordChannelID)
}
