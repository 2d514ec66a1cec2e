// ABOUTME: Entry point for the scope-relay daemon
// ABOUTME: Runs the registration surface, relay pipeline, and platform connectors

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/cobrachicken/scope-relay/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                          _
 ___  ___ ___  _ __   ___       _ __ ___| | __ _ _   _
/ __|/ __/ _ \| '_ \ / _ \_____| '__/ _ \ |/ _' | | | |
\__ \ (_| (_) | |_) |  __/_____| | |  __/ | (_| | |_| |
|___/\___\___/| .__/ \___|     |_|  \___|_|\__,_|\__, |
              |_|                                |___/
`

// getConfigPath returns the path to the relay config file.
// Priority: SCOPE_RELAY_CONFIG env var > XDG_CONFIG_HOME/scope-relay/config.yaml > ~/.config/scope-relay/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SCOPE_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "scope-relay", "config.yaml")
}

// getDataPath returns the path to the scope-relay data directory.
// Priority: XDG_DATA_HOME/scope-relay > ~/.local/share/scope-relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "scope-relay")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: scope-relay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the relay daemon")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check relay health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("scope-relay configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "relay.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Community scope
	fmt.Println("\n--- Community Configuration ---")
	scopeSlug := prompt(reader, "Community slug", "my-community")
	scopeName := prompt(reader, "Community name", "My Community")
	ownerEmail := prompt(reader, "Owner email", "")

	// Connectors
	fmt.Println("\n--- Connector Configuration ---")
	enableDiscord := yesNo(prompt(reader, "Enable Discord?", "no"))
	enableMatrix := yesNo(prompt(reader, "Enable Matrix?", "no"))
	enableSlack := yesNo(prompt(reader, "Enable Slack?", "no"))

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# scope-relay configuration\n")
	cfg.WriteString("# Generated by scope-relay init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("scope:\n")
	cfg.WriteString(fmt.Sprintf("  slug: \"%s\"\n", scopeSlug))
	cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", scopeName))
	cfg.WriteString(fmt.Sprintf("  owner_email: \"%s\"\n", ownerEmail))
	cfg.WriteString("\n")

	cfg.WriteString("relay:\n")
	cfg.WriteString("  min_length: 40\n")
	cfg.WriteString("  max_length: 500\n")
	cfg.WriteString("  summary_threshold: 5\n")
	cfg.WriteString("  summary_window: \"30m\"\n")
	cfg.WriteString("  dispatch_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("connectors:\n")
	cfg.WriteString("  discord:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", enableDiscord))
	cfg.WriteString("    bot_token: \"${DISCORD_BOT_TOKEN}\"\n")
	cfg.WriteString("    watched_channels: []\n")
	cfg.WriteString("    default_channel_id: \"\"\n")
	cfg.WriteString("  matrix:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", enableMatrix))
	cfg.WriteString("    homeserver: \"https://matrix.org\"\n")
	cfg.WriteString("    user_id: \"\"\n")
	cfg.WriteString("    access_token: \"${MATRIX_ACCESS_TOKEN}\"\n")
	cfg.WriteString("    allowed_rooms: []\n")
	cfg.WriteString("    default_room_id: \"\"\n")
	cfg.WriteString("  slack:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", enableSlack))
	cfg.WriteString("    app_token: \"${SLACK_APP_TOKEN}\"\n")
	cfg.WriteString("    bot_token: \"${SLACK_BOT_TOKEN}\"\n")
	cfg.WriteString("    allowed_channels: []\n")
	cfg.WriteString("    default_channel_id: \"\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the relay:")
	fmt.Printf("  scope-relay serve\n")

	return nil
}

func yesNo(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
