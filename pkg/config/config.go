// Package config loads the gateway's TOML configuration (~/.omega/config.toml)
// via viper, exposing a typed Config plus an independently tunable
// SystemConfig the way the reference gateway splits business config from
// engine-level knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig describes one configured LLM provider: either a
// subprocess-CLI dispatch or an HTTP-API dispatch (see pkg/provider).
type ProviderConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Kind              string `mapstructure:"kind"` // "cli" | "http"
	Command           string `mapstructure:"command"`
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	MaxTurns          int    `mapstructure:"max_turns"`
	MaxResumeAttempts int    `mapstructure:"max_resume_attempts"`
}

// ChannelConfig describes one messaging channel's credentials and allow-list.
type ChannelConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	BotToken     string   `mapstructure:"bot_token"`
	DBPath       string   `mapstructure:"db_path"`
	AllowedUsers []string `mapstructure:"allowed_users"`
	ReplyTarget  string   `mapstructure:"reply_target"`
}

// MemoryConfig governs the persistence store.
type MemoryConfig struct {
	DBPath             string `mapstructure:"db_path"`
	MaxContextMessages int    `mapstructure:"max_context_messages"`
}

// HeartbeatConfig governs the heartbeat loop (§4.8).
type HeartbeatConfig struct {
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	ActiveStart     string `mapstructure:"active_start"`
	ActiveEnd       string `mapstructure:"active_end"`
}

// SchedulerConfig governs the scheduler loop (§4.7).
type SchedulerConfig struct {
	PollSeconds int    `mapstructure:"poll_seconds"`
	ActiveStart string `mapstructure:"active_start"`
	ActiveEnd   string `mapstructure:"active_end"`
	ReplyTarget string `mapstructure:"reply_target"`
}

// APIConfig governs the optional bearer-token-gated pairing dashboard (§6).
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
}

// OmegaConfig holds top-level identity settings.
type OmegaConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	SystemPrompt string `mapstructure:"system_prompt"`
	LogLevel     string `mapstructure:"log_level"`
}

// AuthConfig is the cross-channel allow-list fallback (channels may refine it).
type AuthConfig struct {
	AllowedUsers []string `mapstructure:"allowed_users"`
	DenyMessage  string   `mapstructure:"deny_message"`
}

// Config is the full parsed contents of config.toml.
type Config struct {
	Omega     OmegaConfig                `mapstructure:"omega"`
	Auth      AuthConfig                 `mapstructure:"auth"`
	Providers map[string]ProviderConfig  `mapstructure:"provider"`
	Channels  map[string]ChannelConfig   `mapstructure:"channel"`
	Memory    MemoryConfig               `mapstructure:"memory"`
	Heartbeat HeartbeatConfig            `mapstructure:"heartbeat"`
	Scheduler SchedulerConfig            `mapstructure:"scheduler"`
	API       APIConfig                  `mapstructure:"api"`
}

// DeepCopy returns an independent copy safe to hand to a reloading goroutine
// while the previous instance is still in use elsewhere.
func (c *Config) DeepCopy() *Config {
	cp := *c
	cp.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for k, v := range c.Providers {
		cp.Providers[k] = v
	}
	cp.Channels = make(map[string]ChannelConfig, len(c.Channels))
	for k, v := range c.Channels {
		cp.Channels[k] = v
	}
	return &cp
}

// Validate ensures the configuration satisfies the minimum the gateway
// needs before it can start: a data directory and at least one enabled
// provider.
func (c *Config) Validate() error {
	if c.Omega.DataDir == "" {
		return fmt.Errorf("omega.data_dir is required")
	}
	anyProvider := false
	for _, p := range c.Providers {
		if p.Enabled {
			anyProvider = true
		}
	}
	if !anyProvider {
		return fmt.Errorf("at least one [provider.*] section must have enabled = true")
	}
	return nil
}

// SystemConfig holds engine-level tunables that are safe to default and
// that operators rarely need to touch, mirroring the reference gateway's
// split between business config and system config.
type SystemConfig struct {
	MaxRetries                int           `mapstructure:"max_retries"`
	RetryDelay                time.Duration `mapstructure:"-"`
	RetryDelayMs              int           `mapstructure:"retry_delay_ms"`
	ProviderTimeoutMs         int           `mapstructure:"provider_timeout_ms"`
	MCPRequestTimeoutMs       int           `mapstructure:"mcp_request_timeout_ms"`
	LogLevel                  string        `mapstructure:"log_level"`
	HistorySummarizeThreshold int           `mapstructure:"history_summarize_threshold"`
	IdleConversationMinutes   int           `mapstructure:"idle_conversation_minutes"`
	SummarizerSweepSeconds    int           `mapstructure:"summarizer_sweep_seconds"`
	SetupTTLMinutes           int           `mapstructure:"setup_ttl_minutes"`
	MaxLessonsPerScope        int           `mapstructure:"max_lessons_per_scope"`
}

// DeepCopy returns an independent copy of the system config.
func (s *SystemConfig) DeepCopy() *SystemConfig {
	cp := *s
	return &cp
}

// DefaultSystemConfig returns the hardcoded safe defaults applied whenever
// the [system] table of config.toml omits a field.
func DefaultSystemConfig() *SystemConfig {
	s := &SystemConfig{
		MaxRetries:                3,
		RetryDelayMs:              500,
		ProviderTimeoutMs:         600_000,
		MCPRequestTimeoutMs:       120_000,
		LogLevel:                  "info",
		HistorySummarizeThreshold: 30,
		IdleConversationMinutes:   30,
		SummarizerSweepSeconds:    60,
		SetupTTLMinutes:           30,
		MaxLessonsPerScope:        10,
	}
	s.RetryDelay = time.Duration(s.RetryDelayMs) * time.Millisecond
	return s
}

// DefaultDataDir returns "~/.omega" expanded to the real home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omega"
	}
	return filepath.Join(home, ".omega")
}

// ExpandHome expands a leading "~" the way a shell would.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads {dataDir}/config.toml via viper and returns the parsed Config
// plus a SystemConfig seeded from defaults and any [system] overrides.
func Load(dataDir string) (*Config, *SystemConfig, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	dataDir = ExpandHome(dataDir)

	path := filepath.Join(dataDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file %q not found; run 'omega init' first", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config file %q: %w", path, err)
	}
	if cfg.Omega.DataDir == "" {
		cfg.Omega.DataDir = dataDir
	}
	cfg.Omega.DataDir = ExpandHome(cfg.Omega.DataDir)
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(cfg.Omega.DataDir, "data", "memory.db")
	}
	cfg.Memory.DBPath = ExpandHome(cfg.Memory.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := DefaultSystemConfig()
	if v.IsSet("system") {
		_ = v.UnmarshalKey("system", sysCfg)
		sysCfg.RetryDelay = time.Duration(sysCfg.RetryDelayMs) * time.Millisecond
	}
	if cfg.Omega.LogLevel != "" {
		sysCfg.LogLevel = cfg.Omega.LogLevel
	}

	return &cfg, sysCfg, nil
}
