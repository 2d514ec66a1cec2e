// ABOUTME: Configuration loading and parsing for scope-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete scope-relay configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scope      ScopeConfig      `yaml:"scope"`
	Relay      RelayConfig      `yaml:"relay"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds the registration surface address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScopeConfig names the community scope this relay instance serves.
// Name and OwnerEmail are used to create the scope on first run when
// no scope with the slug exists yet.
type ScopeConfig struct {
	Slug       string `yaml:"slug"`
	Name       string `yaml:"name"`
	OwnerEmail string `yaml:"owner_email"`
}

// RelayConfig holds relay pipeline tuning
type RelayConfig struct {
	MinLength        int    `yaml:"min_length"`
	MaxLength        int    `yaml:"max_length"`
	Marker           string `yaml:"marker"`
	SummaryThreshold int    `yaml:"summary_threshold"`

	SummaryWindow   time.Duration `yaml:"-"`
	DispatchTimeout time.Duration `yaml:"-"`
	DedupeTTL       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SummaryWindowRaw   string `yaml:"summary_window"`
	DispatchTimeoutRaw string `yaml:"dispatch_timeout"`
	DedupeTTLRaw       string `yaml:"dedupe_ttl"`
}

// ConnectorsConfig holds configuration for all platform connectors
type ConnectorsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Matrix  MatrixConfig  `yaml:"matrix"`
	Slack   SlackConfig   `yaml:"slack"`
}

// DiscordConfig holds Discord connector configuration
type DiscordConfig struct {
	Enabled          bool     `yaml:"enabled"`
	BotToken         string   `yaml:"bot_token"`
	WatchedChannels  []string `yaml:"watched_channels"`
	DefaultChannelID string   `yaml:"default_channel_id"`
}

// MatrixConfig holds Matrix connector configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Homeserver    string   `yaml:"homeserver"`
	UserID        string   `yaml:"user_id"`
	AccessToken   string   `yaml:"access_token"`
	AllowedRooms  []string `yaml:"allowed_rooms"`
	DefaultRoomID string   `yaml:"default_room_id"`
}

// SlackConfig holds Slack connector configuration
type SlackConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AppToken         string   `yaml:"app_token"`
	BotToken         string   `yaml:"bot_token"`
	AllowedChannels  []string `yaml:"allowed_channels"`
	DefaultChannelID string   `yaml:"default_channel_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Scope.Slug == "" {
		return fmt.Errorf("scope.slug is required")
	}

	if c.Relay.MaxLength != 0 && c.Relay.MaxLength < 4 {
		return fmt.Errorf("relay.max_length must be 0 or at least 4")
	}

	if c.Connectors.Discord.Enabled && c.Connectors.Discord.BotToken == "" {
		return fmt.Errorf("connectors.discord.bot_token is required when discord is enabled")
	}

	if c.Connectors.Matrix.Enabled {
		if c.Connectors.Matrix.Homeserver == "" {
			return fmt.Errorf("connectors.matrix.homeserver is required when matrix is enabled")
		}
		if c.Connectors.Matrix.UserID == "" {
			return fmt.Errorf("connectors.matrix.user_id is required when matrix is enabled")
		}
		if c.Connectors.Matrix.AccessToken == "" {
			return fmt.Errorf("connectors.matrix.access_token is required when matrix is enabled")
		}
	}

	if c.Connectors.Slack.Enabled {
		if c.Connectors.Slack.AppToken == "" {
			return fmt.Errorf("connectors.slack.app_token is required when slack is enabled")
		}
		if c.Connectors.Slack.BotToken == "" {
			return fmt.Errorf("connectors.slack.bot_token is required when slack is enabled")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Relay.SummaryWindowRaw != "" {
		cfg.Relay.SummaryWindow, err = time.ParseDuration(cfg.Relay.SummaryWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing summary_window %q: %w", cfg.Relay.SummaryWindowRaw, err)
		}
	}

	if cfg.Relay.DispatchTimeoutRaw != "" {
		cfg.Relay.DispatchTimeout, err = time.ParseDuration(cfg.Relay.DispatchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch_timeout %q: %w", cfg.Relay.DispatchTimeoutRaw, err)
		}
	}

	if cfg.Relay.DedupeTTLRaw != "" {
		cfg.Relay.DedupeTTL, err = time.ParseDuration(cfg.Relay.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Relay.DedupeTTLRaw, err)
		}
	}

	return nil
}
