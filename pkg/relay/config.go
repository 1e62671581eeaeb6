// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Default sentinel emoji names, matching the names the watch emoji are
// registered under on the server.
const (
	DefaultThreadWatchEmoji = "reaction-watch-thread"
	DefaultDMWatchEmoji     = "reaction-watch-dm"
)

// Config holds the full daemon configuration.
type Config struct {
	ServerURL    string `yaml:"server_url"`
	WebsocketURL string `yaml:"websocket_url"`
	BotToken     string `yaml:"bot_token"`

	ThreadWatchEmoji string `yaml:"thread_watch_emoji"`
	DMWatchEmoji     string `yaml:"dm_watch_emoji"`

	Database dbutil.Config     `yaml:"database"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// LoadConfig reads and validates a config file. The BOT_TOKEN environment
// variable, when set, overrides the bot_token key.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.BotToken = token
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess validates required fields and fills in defaults.
func (c *Config) PostProcess() error {
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.BotToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	if c.WebsocketURL == "" {
		c.WebsocketURL = httpToWS(c.ServerURL)
	}
	if c.ThreadWatchEmoji == "" {
		c.ThreadWatchEmoji = DefaultThreadWatchEmoji
	}
	if c.DMWatchEmoji == "" {
		c.DMWatchEmoji = DefaultDMWatchEmoji
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite3-fk-wal"
		c.Database.URI = "file:watches.db?_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 1
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 1
	}
	if len(c.Logging.Writers) == 0 {
		c.Logging.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStderr,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
