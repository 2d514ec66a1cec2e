// ABOUTME: Discord connector: watches channels for relay-worthy messages and posts inbound relays
// ABOUTME: Implements both halves on one client: inbound watcher and outbound binding

package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cobrachicken/scope-relay/internal/config"
	"github.com/cobrachicken/scope-relay/internal/relay"
)

// handleTimeout bounds processing of one inbound Discord message.
const handleTimeout = 30 * time.Second

// Connector is the Discord integration. As a connector it watches the
// configured channels for messages worth relaying; as a binding it
// posts relays arriving from other platforms.
type Connector struct {
	session  *discordgo.Session
	pipeline *relay.Pipeline
	watched  map[string]bool
	logger   *slog.Logger
}

// New creates a Discord connector. The session is configured but not
// opened; call Run to connect.
func New(cfg config.DiscordConfig, pipeline *relay.Pipeline) (*Connector, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	// Message content is a privileged intent; enable it in the Discord
	// developer portal for the bot as well.
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	c := &Connector{
		session:  session,
		pipeline: pipeline,
		watched:  watchSet(cfg.WatchedChannels),
		logger:   slog.Default().With("component", "discord"),
	}
	session.AddHandler(c.onMessageCreate)
	return c, nil
}

// watchSet builds the watched-channel lookup. Empty means watch
// everything the bot can see.
func watchSet(channels []string) map[string]bool {
	if len(channels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return set
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	c.logger.Info("discord connector running",
		"watched_channels", len(c.watched),
	)

	<-ctx.Done()
	c.logger.Info("shutting down discord connector")
	return c.session.Close()
}

// onMessageCreate feeds inbound Discord messages into the pipeline.
func (c *Connector) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore ourselves and other bots
	if m.Author == nil || m.Author.Bot {
		return
	}
	if c.watched != nil && !c.watched[m.ChannelID] {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	reply, _, err := c.pipeline.Handle(ctx, relay.Inbound{
		Platform:     "discord",
		Channel:      m.ChannelID,
		MessageID:    m.ID,
		AuthorHandle: m.Author.Username,
		Content:      m.Content,
	})
	if err != nil {
		c.logger.Error("failed to handle message",
			"channel", m.ChannelID,
			"message_id", m.ID,
			"error", err,
		)
		return
	}

	if reply != "" {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference(), discordgo.WithContext(ctx)); err != nil {
			c.logger.Error("failed to send reply", "channel", m.ChannelID, "error", err)
		}
	}
}

// Platform implements relay.Binding.
func (c *Connector) Platform() string { return "discord" }

// Post implements relay.Binding: deliver relayed text to a Discord channel.
func (c *Connector) Post(ctx context.Context, channelID, text string) error {
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("posting to discord channel %s: %w", channelID, err)
	}
	return nil
}
