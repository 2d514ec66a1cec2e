// Package config handles configuration loading for scope-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	connectors:
//	  discord:
//	    bot_token: "${DISCORD_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	relay:
//	  summary_window: "30m"
//	  dispatch_timeout: "10s"
//	  dedupe_ttl: "1h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Registration surface and metrics
//
// Database:
//
//	database:
//	  path: "/var/lib/scope-relay/relay.db"
//
// Scope:
//
//	scope:
//	  slug: "tinkerers"   # The community this instance relays for
//
// Relay tuning:
//
//	relay:
//	  min_length: 40
//	  max_length: 500
//	  marker: "📡"
//	  summary_threshold: 5
//	  summary_window: "30m"
//	  dispatch_timeout: "10s"
//
// Connectors:
//
//	connectors:
//	  discord:
//	    enabled: true
//	    bot_token: "${DISCORD_BOT_TOKEN}"
//	    default_channel_id: "123456789"
//	  matrix:
//	    enabled: true
//	    homeserver: "https://matrix.org"
//	    user_id: "@relay:matrix.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	    default_room_id: "!abc:matrix.org"
//	  slack:
//	    enabled: true
//	    app_token: "${SLACK_APP_TOKEN}"
//	    bot_token: "${SLACK_BOT_TOKEN}"
//	    default_channel_id: "C0123456"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Server address, database path, and scope slug presence
//   - Per-connector credentials when a connector is enabled
//   - Duration format validity
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/scope-relay/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
