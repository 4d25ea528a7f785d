package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type ProviderConfig struct {
	Type    string `toml:"type"`
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key,omitempty"`
}

type ChatConfig struct {
	SystemPrompt string   `toml:"system_prompt,omitempty"`
	ToolDelay    Duration `toml:"tool_delay"`
	StreamBuffer int      `toml:"stream_buffer"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
}

type ServerUser struct {
	ID        string `toml:"id"`
	TokenHash string `toml:"token_hash"`
}

type ServerConfig struct {
	Listen        string       `toml:"listen"`
	MetricsListen string       `toml:"metrics_listen"`
	Users         []ServerUser `toml:"users,omitempty"`
}

// Config is the full horizon configuration as stored in config.toml, after
// environment overrides have been applied.
type Config struct {
	DataDirectory string         `toml:"data_directory"`
	UserID        string         `toml:"user_id"`
	Provider      ProviderConfig `toml:"provider"`
	Chat          ChatConfig     `toml:"chat"`
	Storage       StorageConfig  `toml:"storage"`
	Server        ServerConfig   `toml:"server"`
}

// Duration wraps time.Duration so it round-trips through TOML as "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
)

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// SystemPrompt returns the configured prompt or the built-in real estate prompt.
func (c *Config) SystemPrompt() string {
	if c.Chat.SystemPrompt != "" {
		return c.Chat.SystemPrompt
	}
	return DefaultSystemPrompt(time.Now())
}

// APIKey returns the provider API key, falling back to the provider's
// conventional environment variable.
func (c *Config) APIKey() string {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey
	}
	switch c.Provider.Type {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	}
	return ""
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HORIZON_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("HORIZON_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("HORIZON_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("HORIZON_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("HORIZON_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("HORIZON_TOOL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Chat.ToolDelay = Duration{d}
		}
	}
	if v := os.Getenv("HORIZON_STREAM_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.StreamBuffer = n
		}
	}
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "openai", "openrouter", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown provider type: %q", c.Provider.Type)
	}
	switch c.Storage.Backend {
	case StorageSQLite, StorageJSON:
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.Chat.StreamBuffer < 0 {
		return fmt.Errorf("chat.stream_buffer must not be negative")
	}
	if c.Chat.ToolDelay.Duration < 0 {
		return fmt.Errorf("chat.tool_delay must not be negative")
	}
	for _, u := range c.Server.Users {
		if u.ID == "" || u.TokenHash == "" {
			return fmt.Errorf("server.users entries need both id and token_hash")
		}
	}
	return nil
}

// Load reads the config file at path (creating it from the template if it does
// not exist), applies environment overrides and prepares the data directory.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	return cfg, nil
}
