// ABOUTME: Slack connector: socket mode event loop into the pipeline plus outbound posting
// ABOUTME: Implements both halves on one client: inbound watcher and outbound binding

package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/cobrachicken/scope-relay/internal/config"
	"github.com/cobrachicken/scope-relay/internal/relay"
)

// handleTimeout bounds processing of one inbound Slack event.
const handleTimeout = 30 * time.Second

// Connector is the Slack integration. As a connector it consumes socket
// mode events into the pipeline; as a binding it posts relays arriving
// from other platforms.
type Connector struct {
	api      *slack.Client
	socket   *socketmode.Client
	pipeline *relay.Pipeline
	allowed  map[string]bool
	logger   *slog.Logger
}

// New creates a Slack connector. Requires a socket-mode app token
// (xapp-) and a bot token (xoxb-); nothing connects until Run.
func New(cfg config.SlackConfig, pipeline *relay.Pipeline) *Connector {
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	return &Connector{
		api:      api,
		socket:   socketmode.New(api),
		pipeline: pipeline,
		allowed:  allowedSet(cfg.AllowedChannels),
		logger:   slog.Default().With("component", "slack"),
	}
}

// allowedSet builds the allowed-channel lookup. Empty means relay from
// every channel the bot is in.
func allowedSet(channels []string) map[string]bool {
	if len(channels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return set
}

// Run starts the socket mode loop and blocks until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	go func() {
		if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("socket mode loop exited", "error", err)
		}
	}()

	c.logger.Info("slack connector running", "allowed_channels", len(c.allowed))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down slack connector")
			return nil
		case evt, ok := <-c.socket.Events:
			if !ok {
				return fmt.Errorf("slack socket event channel closed")
			}
			c.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent acks and routes one socket mode event.
func (c *Connector) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}

	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	// Ack before processing; Slack redelivers unacked events
	if evt.Request != nil {
		c.socket.Ack(*evt.Request)
	}

	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Ignore bots, ourselves, and edits/joins/etc.
	if msg.BotID != "" || msg.SubType != "" || msg.User == "" {
		return
	}
	if c.allowed != nil && !c.allowed[msg.Channel] {
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	reply, _, err := c.pipeline.Handle(handleCtx, relay.Inbound{
		Platform:     "slack",
		Channel:      msg.Channel,
		MessageID:    msg.TimeStamp,
		AuthorHandle: c.authorHandle(handleCtx, msg.User),
		Content:      msg.Text,
	})
	if err != nil {
		c.logger.Error("failed to handle message",
			"channel", msg.Channel,
			"ts", msg.TimeStamp,
			"error", err,
		)
		return
	}

	if reply != "" {
		if _, _, err := c.api.PostMessageContext(handleCtx, msg.Channel,
			slack.MsgOptionText(reply, false),
			slack.MsgOptionTS(msg.TimeStamp),
		); err != nil {
			c.logger.Error("failed to send reply", "channel", msg.Channel, "error", err)
		}
	}
}

// authorHandle resolves a Slack user ID to a handle, falling back to
// the raw ID when the lookup fails.
func (c *Connector) authorHandle(ctx context.Context, userID string) string {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		c.logger.Debug("failed to resolve slack user", "user", userID, "error", err)
		return userID
	}
	if user.Name != "" {
		return user.Name
	}
	return userID
}

// Platform implements relay.Binding.
func (c *Connector) Platform() string { return "slack" }

// Post implements relay.Binding: deliver relayed text to a Slack channel.
func (c *Connector) Post(ctx context.Context, channelID, text string) error {
	if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", channelID, err)
	}
	return nil
}
