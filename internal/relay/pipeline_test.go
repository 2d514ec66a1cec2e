// ABOUTME: End-to-end tests for the relay pipeline over a real SQLite store
// ABOUTME: Covers filtering, identity resolution, idempotence, fan-out isolation, and digests

package relay

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobrachicken/scope-relay/internal/store"
)

type fakePost struct {
	channelID string
	text      string
}

// fakeBinding records posts; set err to make every post fail.
type fakeBinding struct {
	platform string
	err      error

	mu    sync.Mutex
	posts []fakePost
}

func (b *fakeBinding) Platform() string { return b.platform }

func (b *fakeBinding) Post(_ context.Context, channelID, text string) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append(b.posts, fakePost{channelID: channelID, text: text})
	return nil
}

func (b *fakeBinding) postCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    store.Store
	scope    *store.Scope
}

// setupPipeline creates a store with one scope and an active binding row
// per fake binding, then wires a pipeline over them.
func setupPipeline(t *testing.T, cfg Config, bindings ...*fakeBinding) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scope := &store.Scope{Name: "Test Community", Slug: "test", OwnerID: "owner@example.com"}
	require.NoError(t, st.CreateScope(ctx, scope))

	registry := NewRegistry()
	for _, b := range bindings {
		registry.Register(b)
		require.NoError(t, st.UpsertBinding(ctx, &store.Binding{
			ScopeID:  scope.ID,
			Platform: b.platform,
			Config:   map[string]string{"default_channel_id": b.platform + "-chan"},
			Active:   true,
		}))
	}

	return &pipelineFixture{
		pipeline: New(scope.ID, st, registry, cfg, nil),
		store:    st,
		scope:    scope,
	}
}

// registerMember creates a member with an unverified discord claim and
// returns the member plus the issued verification codes.
func registerMember(t *testing.T, fx *pipelineFixture, displayName, discordHandle string) (*store.Member, map[string]string) {
	t.Helper()
	member := &store.Member{
		ScopeID:           fx.scope.ID,
		ArchetypeName:     "member",
		DisplayName:       displayName,
		CanonicalIdentity: displayName + "@example.com",
		PlatformHandles:   map[string]string{"discord": discordHandle},
	}
	codes, err := fx.store.CreateMember(context.Background(), member)
	require.NoError(t, err)
	return member, codes
}

func inbound(content string) Inbound {
	return Inbound{
		Platform:     "discord",
		Channel:      "general",
		MessageID:    "msg-1",
		AuthorHandle: "alice",
		Content:      content,
	}
}

const relayWorthy = "I think this is worth talking about across all of our community spaces."

func TestRelayFansOutToOtherPlatforms(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	slack := &fakeBinding{platform: "slack"}
	fx := setupPipeline(t, Config{}, matrix, slack)
	registerMember(t, fx, "Alice", "alice")

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Equal(t, 1, matrix.postCount())
	require.Equal(t, 1, slack.postCount())
	assert.Equal(t, "matrix-chan", matrix.posts[0].channelID)
	assert.Equal(t, "📡 from Discord — @Alice:\n> "+relayWorthy, matrix.posts[0].text)
	assert.Equal(t, matrix.posts[0].text, slack.posts[0].text)

	assert.Equal(t, 2, msg.RelayCount)
	require.NotNil(t, msg.ResolvedMemberID)
}

func TestRelayNeverEchoesToSourcePlatform(t *testing.T) {
	discord := &fakeBinding{platform: "discord"}
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, discord, matrix)

	_, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)

	assert.Equal(t, 0, discord.postCount())
	assert.Equal(t, 1, matrix.postCount())
}

func TestRelayUnknownAuthorUsesRawHandle(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)

	assert.Nil(t, msg.ResolvedMemberID)
	require.Equal(t, 1, matrix.postCount())
	assert.Contains(t, matrix.posts[0].text, "@alice:")
}

func TestRelayFilteredMessageIsSilentNoOp(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)

	msg, err := fx.pipeline.Relay(context.Background(), inbound("lol"))
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 0, matrix.postCount())

	// Nothing recorded either: no provenance, no stored message
	records, err := fx.store.ListProvenance(context.Background(), fx.scope.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRelayDuplicateMessageAbsorbed(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)

	first, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)

	// Same native message id, different content: the first row wins
	dup := inbound("A retried delivery with edited content that is long enough to pass the filter.")
	second, err := fx.pipeline.Relay(context.Background(), dup)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, relayWorthy, second.Content)
	assert.Equal(t, 1, matrix.postCount(), "duplicate must not be redelivered")

	// Still just one received and one relayed record
	records, err := fx.store.ListProvenance(context.Background(), fx.scope.ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRelayOneFailingBindingDoesNotBlockOthers(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	slack := &fakeBinding{platform: "slack", err: errors.New("socket closed")}
	signal := &fakeBinding{platform: "signal"}
	fx := setupPipeline(t, Config{}, matrix, slack, signal)

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)

	assert.Equal(t, 1, matrix.postCount())
	assert.Equal(t, 1, signal.postCount())
	assert.Equal(t, 2, msg.RelayCount)

	// The relayed record names exactly the destinations that succeeded
	records, err := fx.store.ListProvenance(context.Background(), fx.scope.ID, 0)
	require.NoError(t, err)
	require.Equal(t, store.ActionMessageRelayed, records[0].Action)
	assert.ElementsMatch(t, []any{"matrix", "signal"}, records[0].Detail["dispatched_to"])
}

func TestRelaySkipsBindingWithoutDefaultChannel(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)

	// An active binding with no default channel is not a usable destination
	require.NoError(t, fx.store.UpsertBinding(context.Background(), &store.Binding{
		ScopeID:  fx.scope.ID,
		Platform: "slack",
		Config:   map[string]string{"token": "xoxb-123"},
		Active:   true,
	}))

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)
	assert.Equal(t, 1, msg.RelayCount)
}

func TestRelayRecordsProvenance(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)
	member, _ := registerMember(t, fx, "Alice", "alice")

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)

	records, err := fx.store.ListProvenance(context.Background(), fx.scope.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first: relayed, then received
	relayed, received := records[0], records[1]

	assert.Equal(t, store.ActionMessageRelayed, relayed.Action)
	require.NotNil(t, relayed.SubjectID)
	assert.Equal(t, msg.ID, *relayed.SubjectID)
	assert.Equal(t, []any{"matrix"}, relayed.Detail["dispatched_to"])

	assert.Equal(t, store.ActionMessageReceived, received.Action)
	assert.Equal(t, msg.ProvenanceID, received.ID)
	require.NotNil(t, received.SourcePlatform)
	assert.Equal(t, "discord", *received.SourcePlatform)
	assert.Equal(t, member.ID, received.Detail["resolved_member"])
}

func TestRelayNoDestinationsStillPersists(t *testing.T) {
	fx := setupPipeline(t, Config{})

	msg, err := fx.pipeline.Relay(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 0, msg.RelayCount)

	// Received is recorded; relayed is not
	records, err := fx.store.ListProvenance(context.Background(), fx.scope.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.ActionMessageReceived, records[0].Action)
}

func TestThreadDigestAfterThresholdReplies(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{SummaryThreshold: 3}, matrix)
	ctx := context.Background()

	// A relayed message opens the activity window
	_, err := fx.pipeline.Relay(ctx, inbound(relayWorthy))
	require.NoError(t, err)
	require.Equal(t, 1, matrix.postCount())

	// Sub-threshold replies relay nothing on their own
	for i, author := range []string{"bob", "carol"} {
		msg, err := fx.pipeline.Relay(ctx, Inbound{
			Platform: "discord", Channel: "general",
			MessageID: "reply-" + author, AuthorHandle: author,
			Content: "nice",
		})
		require.NoError(t, err)
		assert.Nil(t, msg)
		assert.Equal(t, 1, matrix.postCount(), "reply %d must not relay", i)
	}

	// The threshold reply triggers one digest
	msg, err := fx.pipeline.Relay(ctx, Inbound{
		Platform: "discord", Channel: "general",
		MessageID: "reply-dave", AuthorHandle: "dave",
		Content: "+1",
	})
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.Equal(t, 2, matrix.postCount())
	digest := matrix.posts[1].text
	assert.Contains(t, digest, "3 replies on Discord #general")
	assert.Contains(t, digest, "@bob, @carol, @dave")

	// The digest is persisted as a summary message with its own provenance
	records, err := fx.store.ListProvenance(ctx, fx.scope.ID, 0)
	require.NoError(t, err)
	require.Equal(t, store.ActionThreadSummarized, records[0].Action)

	stored, err := fx.store.GetRelayMessageBySource(ctx, fx.scope.ID, "discord", "digest:"+records[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSummary)
}

func TestThreadDigestWindowClosesAfterFiring(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{SummaryThreshold: 2}, matrix)
	ctx := context.Background()

	_, err := fx.pipeline.Relay(ctx, inbound(relayWorthy))
	require.NoError(t, err)

	for _, id := range []string{"r1", "r2"} {
		_, err := fx.pipeline.Relay(ctx, Inbound{
			Platform: "discord", Channel: "general",
			MessageID: id, AuthorHandle: "bob", Content: "ok",
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, matrix.postCount())

	// Window closed with the digest; further replies accumulate nothing
	_, err = fx.pipeline.Relay(ctx, Inbound{
		Platform: "discord", Channel: "general",
		MessageID: "r3", AuthorHandle: "bob", Content: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, matrix.postCount())
}

func TestRelayExpiredWindowSuppressesDigest(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{SummaryThreshold: 1, SummaryWindow: 10 * time.Millisecond}, matrix)
	ctx := context.Background()

	_, err := fx.pipeline.Relay(ctx, inbound(relayWorthy))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = fx.pipeline.Relay(ctx, Inbound{
		Platform: "discord", Channel: "general",
		MessageID: "r1", AuthorHandle: "bob", Content: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, matrix.postCount())
}

func TestHandleVerificationCommandLinksClaim(t *testing.T) {
	fx := setupPipeline(t, Config{})
	member, codes := registerMember(t, fx, "Alice", "alice")
	ctx := context.Background()

	reply, msg, err := fx.pipeline.Handle(ctx, Inbound{
		Platform: "discord", Channel: "general", MessageID: "m1",
		AuthorHandle: "alice", Content: "verify " + codes["discord"],
	})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, "Verified! You're now linked as Alice in this community.", reply)

	claims, err := fx.store.ListClaims(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].Verified)
}

func TestHandleVerificationWrongCode(t *testing.T) {
	fx := setupPipeline(t, Config{})
	registerMember(t, fx, "Alice", "alice")

	reply, _, err := fx.pipeline.Handle(context.Background(), Inbound{
		Platform: "discord", Channel: "general", MessageID: "m1",
		AuthorHandle: "alice", Content: "VERIFY DEADBEEF",
	})
	require.NoError(t, err)
	assert.Equal(t, replyBadCode, reply)
}

func TestHandleVerificationUsedCodeLooksLikeWrongCode(t *testing.T) {
	fx := setupPipeline(t, Config{})
	_, codes := registerMember(t, fx, "Alice", "alice")
	ctx := context.Background()

	cmd := Inbound{
		Platform: "discord", Channel: "general", MessageID: "m1",
		AuthorHandle: "alice", Content: "VERIFY " + codes["discord"],
	}
	_, _, err := fx.pipeline.Handle(ctx, cmd)
	require.NoError(t, err)

	reply, _, err := fx.pipeline.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, replyBadCode, reply)
}

func TestHandleVerificationUnknownHandle(t *testing.T) {
	fx := setupPipeline(t, Config{})

	reply, _, err := fx.pipeline.Handle(context.Background(), Inbound{
		Platform: "discord", Channel: "general", MessageID: "m1",
		AuthorHandle: "stranger", Content: "VERIFY DEADBEEF",
	})
	require.NoError(t, err)
	assert.Equal(t, replyNotRecognized, reply)
}

func TestHandleNonCommandFallsThroughToRelay(t *testing.T) {
	matrix := &fakeBinding{platform: "matrix"}
	fx := setupPipeline(t, Config{}, matrix)

	reply, msg, err := fx.pipeline.Handle(context.Background(), inbound(relayWorthy))
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.NotNil(t, msg)
	assert.Equal(t, 1, matrix.postCount())
}

func TestHandleMalformedVerifyIsNotACommand(t *testing.T) {
	fx := setupPipeline(t, Config{})

	// Wrong code shape: treated as ordinary (filtered) content, no lookup
	reply, msg, err := fx.pipeline.Handle(context.Background(), Inbound{
		Platform: "discord", Channel: "general", MessageID: "m1",
		AuthorHandle: "alice", Content: "VERIFY abc",
	})
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Nil(t, msg)
}
