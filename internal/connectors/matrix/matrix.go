// ABOUTME: Matrix connector: syncs message events into the pipeline and posts inbound relays
// ABOUTME: Implements both halves on one mautrix client: inbound watcher and outbound binding

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/cobrachicken/scope-relay/internal/config"
	"github.com/cobrachicken/scope-relay/internal/relay"
)

// handleTimeout bounds processing of one inbound Matrix event.
const handleTimeout = 30 * time.Second

// Connector is the Matrix integration. As a connector it syncs message
// events into the pipeline; as a binding it posts relays arriving from
// other platforms.
type Connector struct {
	client   *mautrix.Client
	pipeline *relay.Pipeline
	userID   id.UserID
	allowed  map[string]bool
	logger   *slog.Logger

	// parent context for per-event processing, set by Run
	ctx context.Context
}

// New creates a Matrix connector. The client does not connect until Run.
func New(cfg config.MatrixConfig, pipeline *relay.Pipeline) (*Connector, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Connector{
		client:   client,
		pipeline: pipeline,
		userID:   id.UserID(cfg.UserID),
		allowed:  allowedSet(cfg.AllowedRooms),
		logger:   slog.Default().With("component", "matrix"),
	}, nil
}

// allowedSet builds the allowed-room lookup. Empty means relay from
// every room the account is in.
func allowedSet(rooms []string) map[string]bool {
	if len(rooms) == 0 {
		return nil
	}
	set := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		set[r] = true
	}
	return set
}

// Run starts the sync loop and blocks until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	c.ctx = ctx

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", c.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, c.handleMessageEvent)

	c.logger.Info("matrix connector running",
		"homeserver", c.client.HomeserverURL.String(),
		"user_id", c.userID.String(),
		"allowed_rooms", len(c.allowed),
	)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- c.client.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("shutting down matrix connector")
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent feeds inbound Matrix messages into the pipeline.
func (c *Connector) handleMessageEvent(ctx context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == c.userID {
		return
	}
	if c.allowed != nil && !c.allowed[evt.RoomID.String()] {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	if content.MsgType != event.MsgText {
		return
	}

	// Process in a goroutine so a slow pipeline never stalls the sync loop
	go c.processMessage(evt.RoomID, evt.Sender, evt.ID.String(), content.Body)
}

func (c *Connector) processMessage(roomID id.RoomID, sender id.UserID, eventID, body string) {
	ctx, cancel := context.WithTimeout(c.ctx, handleTimeout)
	defer cancel()

	reply, _, err := c.pipeline.Handle(ctx, relay.Inbound{
		Platform:     "matrix",
		Channel:      roomID.String(),
		MessageID:    eventID,
		AuthorHandle: sender.String(),
		Content:      body,
	})
	if err != nil {
		c.logger.Error("failed to handle message",
			"room", roomID.String(),
			"event_id", eventID,
			"error", err,
		)
		return
	}

	if reply != "" {
		if _, err := c.client.SendText(ctx, roomID, reply); err != nil {
			c.logger.Error("failed to send reply", "room", roomID.String(), "error", err)
		}
	}
}

// Platform implements relay.Binding.
func (c *Connector) Platform() string { return "matrix" }

// Post implements relay.Binding: deliver relayed text to a Matrix room.
func (c *Connector) Post(ctx context.Context, channelID, text string) error {
	if _, err := c.client.SendText(ctx, id.RoomID(channelID), text); err != nil {
		return fmt.Errorf("posting to matrix room %s: %w", channelID, err)
	}
	return nil
}
