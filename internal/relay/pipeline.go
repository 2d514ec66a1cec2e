// ABOUTME: The relay pipeline orchestrator: filter, resolve, record, persist, fan out
// ABOUTME: Composes the filter, formatter, tracker and dispatch registry over the store

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/cobrachicken/scope-relay/internal/dedupe"
	"github.com/cobrachicken/scope-relay/internal/store"
)

// DefaultDispatchTimeout bounds a single outbound post so one slow
// binding cannot stall the rest of the fan-out.
const DefaultDispatchTimeout = 10 * time.Second

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetMemberByHandle(ctx context.Context, platform, handle, scopeID string) (*store.Member, error)
	VerifyClaim(ctx context.Context, memberID, platform, code string) (bool, error)
	ListActiveBindings(ctx context.Context, scopeID string) ([]store.Binding, error)
	SaveRelayMessage(ctx context.Context, msg *store.RelayMessage) (bool, error)
	GetRelayMessageBySource(ctx context.Context, scopeID, platform, messageID string) (*store.RelayMessage, error)
	IncrementRelayCount(ctx context.Context, id string, delta int) error
	AppendProvenance(ctx context.Context, p *store.Provenance) error
}

// Config carries the pipeline's tunable judgment knobs. Zero values
// select the documented defaults.
type Config struct {
	MinLength        int           // filter: minimum content length in runes
	MaxLength        int           // formatter: truncation limit in runes
	Marker           string        // attribution prefix on all relay output
	SummaryThreshold int           // replies before a thread digest fires
	SummaryWindow    time.Duration // how long a relayed channel stays hot
	DispatchTimeout  time.Duration // per-binding outbound post budget
	DedupeTTL        time.Duration // process-local duplicate absorption window
}

// Inbound is one platform event as extracted by a connector.
type Inbound struct {
	Platform     string // source platform name, e.g. "discord"
	Channel      string // originating channel identifier
	MessageID    string // platform-native message id, dedupe key
	AuthorHandle string // raw handle on the source platform
	Content      string
}

// Pipeline carries a message from its source platform to every other
// active binding of the scope, recording provenance along the way.
type Pipeline struct {
	scopeID         string
	store           Store
	registry        *Registry
	filter          *Filter
	formatter       *Formatter
	tracker         *Tracker
	dedupe          *dedupe.Cache
	metrics         *Metrics
	logger          *slog.Logger
	dispatchTimeout time.Duration
}

// New creates a pipeline for one scope. The registry is the explicit
// platform-to-binding mapping built at startup; the pipeline never
// consults any ambient global wiring.
func New(scopeID string, st Store, registry *Registry, cfg Config, metrics *Metrics) *Pipeline {
	dispatchTimeout := cfg.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = DefaultDispatchTimeout
	}
	dedupeTTL := cfg.DedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = time.Hour
	}

	return &Pipeline{
		scopeID:         scopeID,
		store:           st,
		registry:        registry,
		filter:          NewFilter(cfg.MinLength, cfg.Marker),
		formatter:       NewFormatter(cfg.MaxLength, cfg.Marker),
		tracker:         NewTracker(cfg.SummaryThreshold, cfg.SummaryWindow),
		dedupe:          dedupe.New(dedupeTTL, 10000),
		metrics:         metrics,
		logger:          slog.Default().With("component", "relay"),
		dispatchTimeout: dispatchTimeout,
	}
}

// Handle processes one inbound event end to end: verification command
// interception first, then the relay pipeline. A non-empty reply should
// be sent back to the author on the source platform. msg is nil when
// the content was filtered or handled as a command.
func (p *Pipeline) Handle(ctx context.Context, in Inbound) (reply string, msg *store.RelayMessage, err error) {
	reply, isCommand, err := p.CheckVerification(ctx, in.Platform, in.AuthorHandle, in.Content)
	if isCommand || err != nil {
		return reply, nil, err
	}

	msg, err = p.Relay(ctx, in)
	return "", msg, err
}

// Relay runs the full pipeline for a single message.
//
// Steps:
//  1. Filter — should this cross the boundary?
//  2. Resolve — do we know who this person is in the community?
//  3. Emit provenance — non-optional
//  4. Save canonical form
//  5. Fan out to active bindings, skipping the source platform
//
// Returns the saved message, or nil if filtered out.
func (p *Pipeline) Relay(ctx context.Context, in Inbound) (*store.RelayMessage, error) {
	// 1. Filter. Rejection is a silent no-op: no provenance, no
	// persistence. Sub-threshold replies still feed the digest tracker.
	if !p.filter.ShouldRelay(in.Content) {
		p.metrics.incFiltered()
		p.recordReply(ctx, in)
		return nil, nil
	}

	// Process-local retry absorption. The store's uniqueness constraint
	// is the durable guarantee; this just skips the work early.
	if p.dedupe.Seen(in.Platform + ":" + in.MessageID) {
		existing, err := p.store.GetRelayMessageBySource(ctx, p.scopeID, in.Platform, in.MessageID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrMessageNotFound) {
			return nil, fmt.Errorf("looking up duplicate: %w", err)
		}
		// Marked but never persisted; fall through and process.
	}

	// 2. Resolve member identity. Best-effort: not-found or a failing
	// resolver never blocks the relay.
	var resolvedID *string
	displayName := in.AuthorHandle
	member, err := p.store.GetMemberByHandle(ctx, in.Platform, in.AuthorHandle, p.scopeID)
	switch {
	case err == nil:
		resolvedID = &member.ID
		displayName = member.DisplayName
	case !errors.Is(err, store.ErrMemberNotFound):
		p.logger.Warn("identity resolution failed, continuing with raw handle",
			"platform", in.Platform,
			"handle", in.AuthorHandle,
			"error", err,
		)
	}

	// 3. Record that we received this. Unconditional for every message
	// that passes the filter, resolved or not.
	prov := &store.Provenance{
		ScopeID:        p.scopeID,
		Action:         store.ActionMessageReceived,
		SourcePlatform: &in.Platform,
		SourceIdentity: &in.AuthorHandle,
		SubjectID:      &in.MessageID,
		Detail: map[string]any{
			"channel":         in.Channel,
			"content_length":  utf8.RuneCountInString(in.Content),
			"resolved_member": memberIDOrNil(resolvedID),
		},
	}
	if err := p.store.AppendProvenance(ctx, prov); err != nil {
		return nil, fmt.Errorf("recording receipt: %w", err)
	}
	p.metrics.incReceived()

	// 4. Save canonical form. A duplicate native id is absorbed: the
	// first stored row wins and the message is treated as already handled.
	msg := &store.RelayMessage{
		ScopeID:          p.scopeID,
		ProvenanceID:     prov.ID,
		Content:          in.Content,
		SourcePlatform:   in.Platform,
		SourceChannel:    in.Channel,
		SourceMessageID:  in.MessageID,
		AuthorHandle:     in.AuthorHandle,
		ResolvedMemberID: resolvedID,
	}
	inserted, err := p.store.SaveRelayMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("saving relay message: %w", err)
	}
	if !inserted {
		existing, err := p.store.GetRelayMessageBySource(ctx, p.scopeID, in.Platform, in.MessageID)
		if err != nil {
			return nil, fmt.Errorf("looking up absorbed duplicate: %w", err)
		}
		return existing, nil
	}

	// 5. Fan out to all active bindings.
	text := p.formatter.FormatRelay(in.Content, displayName, in.Platform)
	dispatched, err := p.fanOut(ctx, in.Platform, text)
	if err != nil {
		return nil, err
	}

	if len(dispatched) > 0 {
		if err := p.store.IncrementRelayCount(ctx, msg.ID, len(dispatched)); err != nil {
			p.logger.Warn("incrementing relay count failed", "message_id", msg.ID, "error", err)
		} else {
			msg.RelayCount = len(dispatched)
		}

		if err := p.store.AppendProvenance(ctx, &store.Provenance{
			ScopeID:        p.scopeID,
			Action:         store.ActionMessageRelayed,
			SourcePlatform: &in.Platform,
			SourceIdentity: &in.AuthorHandle,
			SubjectID:      &msg.ID,
			Detail:         map[string]any{"dispatched_to": dispatched},
		}); err != nil {
			return nil, fmt.Errorf("recording relay: %w", err)
		}
		p.metrics.incRelayed()

		// The channel is hot now; follow-up replies feed the digest.
		p.tracker.Open(in.Platform, in.Channel)
	}

	return msg, nil
}

// fanOut dispatches rendered text to every eligible binding and returns
// the platforms that succeeded. A failing binding is logged and skipped;
// it never aborts delivery to the others.
func (p *Pipeline) fanOut(ctx context.Context, sourcePlatform, text string) ([]string, error) {
	bindings, err := p.store.ListActiveBindings(ctx, p.scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing bindings: %w", err)
	}

	var dispatched []string
	for _, b := range bindings {
		if b.Platform == sourcePlatform {
			continue // never echo back to where it came from
		}
		channelID := b.DefaultChannelID()
		if channelID == "" {
			continue
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
		err := p.registry.Dispatch(dispatchCtx, b.Platform, channelID, text)
		cancel()
		if err != nil {
			p.logger.Warn("dispatch failed",
				"platform", b.Platform,
				"channel", channelID,
				"error", err,
			)
			p.metrics.incDispatchFailure(b.Platform)
			continue
		}
		dispatched = append(dispatched, b.Platform)
	}
	return dispatched, nil
}

// recordReply feeds a filtered message into the digest tracker and
// emits a thread digest when the reply threshold is reached. Failures
// here are logged only: the filtered path stays a silent no-op for the
// caller.
func (p *Pipeline) recordReply(ctx context.Context, in Inbound) {
	replies, ready := p.tracker.Record(in.Platform, in.Channel, in.AuthorHandle)
	if !ready {
		return
	}

	if err := p.summarize(ctx, in, replies); err != nil {
		p.logger.Warn("thread digest failed",
			"platform", in.Platform,
			"channel", in.Channel,
			"error", err,
		)
	}
}

// summarize persists and fans out one thread activity digest.
func (p *Pipeline) summarize(ctx context.Context, in Inbound, replies []SummaryMessage) error {
	text := p.formatter.FormatSummary(replies, in.Platform, in.Channel)

	prov := &store.Provenance{
		ScopeID:        p.scopeID,
		Action:         store.ActionThreadSummarized,
		SourcePlatform: &in.Platform,
		SubjectID:      &in.Channel,
		Detail: map[string]any{
			"channel":     in.Channel,
			"reply_count": len(replies),
		},
	}
	if err := p.store.AppendProvenance(ctx, prov); err != nil {
		return fmt.Errorf("recording digest: %w", err)
	}

	msg := &store.RelayMessage{
		ScopeID:         p.scopeID,
		ProvenanceID:    prov.ID,
		Content:         text,
		SourcePlatform:  in.Platform,
		SourceChannel:   in.Channel,
		SourceMessageID: "digest:" + prov.ID,
		AuthorHandle:    in.AuthorHandle,
		IsSummary:       true,
	}
	if _, err := p.store.SaveRelayMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving digest: %w", err)
	}

	dispatched, err := p.fanOut(ctx, in.Platform, text)
	if err != nil {
		return err
	}
	if len(dispatched) > 0 {
		if err := p.store.IncrementRelayCount(ctx, msg.ID, len(dispatched)); err != nil {
			p.logger.Warn("incrementing digest relay count failed", "message_id", msg.ID, "error", err)
		}
	}
	p.metrics.incSummarized()

	p.logger.Info("thread digest relayed",
		"platform", in.Platform,
		"channel", in.Channel,
		"replies", len(replies),
		"dispatched_to", dispatched,
	)
	return nil
}

// memberIDOrNil renders an optional member id for provenance detail.
func memberIDOrNil(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}
