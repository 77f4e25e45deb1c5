package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Channels  ChannelsConfig  `json:"channels"`
	Provider  ProviderConfig  `json:"provider"`
	Run       RunConfig       `json:"run"`
	Outbox    OutboxConfig    `json:"outbox"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Memory    MemoryConfig    `json:"memory"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Name      string `json:"name" env:"RELAY_AGENT_NAME"`
	Workspace string `json:"workspace" env:"RELAY_AGENT_WORKSPACE"`
	Model     string `json:"model" env:"RELAY_AGENT_MODEL"`
	MaxTokens int    `json:"max_tokens" env:"RELAY_AGENT_MAX_TOKENS"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"RELAY_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"RELAY_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"RELAY_PROVIDER_API_KEY"`
	APIBase string `json:"api_base" env:"RELAY_PROVIDER_API_BASE"`
}

type RunConfig struct {
	// BudgetMinutes is the wall-clock budget for one run. The budget only
	// bounds what the caller observes; background work is never aborted.
	BudgetMinutes int `json:"budget_minutes" env:"RELAY_RUN_BUDGET_MINUTES"`
	// TerminalPolicy is "emit_always" or "suppress_after_timeout" and controls
	// whether a run that already reported a timeout may still emit RUN_ENDED.
	TerminalPolicy string `json:"terminal_policy" env:"RELAY_RUN_TERMINAL_POLICY"`
}

type OutboxConfig struct {
	BackoffInitialMS int `json:"backoff_initial_ms" env:"RELAY_OUTBOX_BACKOFF_INITIAL_MS"`
	BackoffMaxMS     int `json:"backoff_max_ms" env:"RELAY_OUTBOX_BACKOFF_MAX_MS"`
	PacingMinMS      int `json:"pacing_min_ms" env:"RELAY_OUTBOX_PACING_MIN_MS"`
	PacingMaxMS      int `json:"pacing_max_ms" env:"RELAY_OUTBOX_PACING_MAX_MS"`
}

type RateLimitConfig struct {
	Enabled           bool                `json:"enabled" env:"RELAY_RATE_LIMIT_ENABLED"`
	RequestsPerMinute float64             `json:"requests_per_minute" env:"RELAY_RATE_LIMIT_REQUESTS_PER_MINUTE"`
	Burst             int                 `json:"burst" env:"RELAY_RATE_LIMIT_BURST"`
	BlockFrom         FlexibleStringSlice `json:"block_from" env:"RELAY_RATE_LIMIT_BLOCK_FROM"`
}

type MemoryConfig struct {
	RecentLimit int `json:"recent_limit" env:"RELAY_MEMORY_RECENT_LIMIT"`
	DedupCache  int `json:"dedup_cache" env:"RELAY_MEMORY_DEDUP_CACHE"`
}

type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled" env:"RELAY_HEARTBEAT_ENABLED"`
	Schedule string `json:"schedule" env:"RELAY_HEARTBEAT_SCHEDULE"` // cron expression
	Prompt   string `json:"prompt" env:"RELAY_HEARTBEAT_PROMPT"`
	Channel  string `json:"channel" env:"RELAY_HEARTBEAT_CHANNEL"`
	ChatID   string `json:"chat_id" env:"RELAY_HEARTBEAT_CHAT_ID"`
}

type LogConfig struct {
	Level string `json:"level" env:"RELAY_LOG_LEVEL"`
	JSON  bool   `json:"json" env:"RELAY_LOG_JSON"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:      "relay",
			Workspace: "~/.relay/workspace",
			Model:     "openai/gpt-5.2",
			MaxTokens: 8192,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Provider: ProviderConfig{},
		Run: RunConfig{
			BudgetMinutes:  60,
			TerminalPolicy: "emit_always",
		},
		Outbox: OutboxConfig{
			BackoffInitialMS: 1000,
			BackoffMaxMS:     60000,
			PacingMinMS:      1500,
			PacingMaxMS:      3500,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 20,
			Burst:             5,
			BlockFrom:         FlexibleStringSlice{},
		},
		Memory: MemoryConfig{
			RecentLimit: 20,
			DedupCache:  4096,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  false,
			Schedule: "*/30 * * * *",
			Prompt:   "Check in on your rooms and see whether anything needs a follow-up.",
			Channel:  "cli",
			ChatID:   "direct",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Agent.Workspace)
}

func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.WorkspacePath(), "memory.db")
}

func (c *Config) GetAPIBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Provider.APIBase != "" {
		return c.Provider.APIBase
	}
	return "https://openrouter.ai/api/v1"
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
