// ABOUTME: Store interface and data types for scope-relay persistence
// ABOUTME: Defines Scope, Member, Binding, RelayMessage, Provenance and the Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrScopeNotFound is returned when a requested scope does not exist
	ErrScopeNotFound = errors.New("scope not found")

	// ErrDuplicateSlug is returned when creating a scope whose slug is taken
	ErrDuplicateSlug = errors.New("slug already taken")

	// ErrMemberNotFound is returned when no member matches the lookup
	ErrMemberNotFound = errors.New("member not found")

	// ErrBindingNotFound is returned when a requested binding does not exist
	ErrBindingNotFound = errors.New("binding not found")

	// ErrMessageNotFound is returned when a requested relay message does not exist
	ErrMessageNotFound = errors.New("relay message not found")
)

// Scope is the bounded community identity that owns all data,
// independent of any single platform.
type Scope struct {
	ID        string // UUID v4
	Name      string
	Slug      string // URL-safe canonical identifier, unique
	OwnerID   string // creator's canonical identity (email)
	CreatedAt time.Time
}

// Member is a community identity with a canonical cross-platform anchor.
// PlatformHandles maps platform name to the member's self-declared handle
// there; the authoritative per-claim state lives in identity_claims.
type Member struct {
	ID                string // UUID v4
	ScopeID           string
	ArchetypeName     string // "creator", "member", "moderator", "relay_agent"
	DisplayName       string
	CanonicalIdentity string            // primary auth identifier (email, OAuth sub)
	PlatformHandles   map[string]string // {"discord": "alice"}
	IsAgent           bool
	JoinedAt          time.Time
}

// IdentityClaim is a member's mapping from a platform handle to their
// community identity, with per-claim verification state.
type IdentityClaim struct {
	MemberID         string
	Platform         string
	Handle           string
	VerificationCode string // 8 uppercase hex chars, single use
	Verified         bool
	ClaimedAt        time.Time
}

// Connector is an inbound integration watching a platform for
// relay-worthy events. One per (scope, platform).
type Connector struct {
	ID       string // UUID v4
	ScopeID  string
	Platform string
	Config   map[string]string
	Active   bool
}

// Binding is an outbound integration that receives relayed content.
// Config must contain "default_channel_id" for the binding to be usable
// as a fan-out destination. One per (scope, platform).
type Binding struct {
	ID       string // UUID v4
	ScopeID  string
	Platform string
	Config   map[string]string
	Active   bool
}

// DefaultChannelID returns the destination channel for relays on this
// binding, or empty string if the binding is not usable.
func (b *Binding) DefaultChannelID() string {
	return b.Config["default_channel_id"]
}

// RelayMessage is the canonical, platform-agnostic form of an inbound
// message, prior to per-platform formatting. Immutable after creation
// except for RelayCount.
type RelayMessage struct {
	ID               string // UUID v4
	ScopeID          string
	ProvenanceID     string // receipt record, always set
	Content          string
	SourcePlatform   string
	SourceChannel    string
	SourceMessageID  string  // platform-native ID, dedupe key within scope
	AuthorHandle     string  // raw handle on the source platform
	ResolvedMemberID *string // set only if identity resolution succeeded at receipt
	IsSummary        bool    // true = thread digest, not a direct relay
	RelayCount       int     // destination platforms delivered to
	ReceivedAt       time.Time
}

// ProvenanceAction names a recorded pipeline or surface action.
type ProvenanceAction string

const (
	ActionScopeCreated        ProvenanceAction = "scope.created"
	ActionMemberRegistered    ProvenanceAction = "member.registered"
	ActionConnectorRegistered ProvenanceAction = "connector.registered"
	ActionBindingRegistered   ProvenanceAction = "binding.registered"
	ActionMessageReceived     ProvenanceAction = "message.received"
	ActionMessageRelayed      ProvenanceAction = "message.relayed"
	ActionThreadSummarized    ProvenanceAction = "thread.summarized"
)

// Provenance is an immutable record of a significant action. The store
// exposes append and list only; there is no update or delete surface.
type Provenance struct {
	ID             string // UUID v4
	ScopeID        string
	Action         ProvenanceAction
	SourcePlatform *string // originating platform, if any
	SourceIdentity *string // raw handle on the source platform, if any
	SubjectID      *string // entity the record is about, if any
	Detail         map[string]any
	Timestamp      time.Time
}

// Store defines the persistence contract for scope-relay.
type Store interface {
	// Scopes
	CreateScope(ctx context.Context, scope *Scope) error
	GetScope(ctx context.Context, id string) (*Scope, error)
	GetScopeBySlug(ctx context.Context, slug string) (*Scope, error)

	// Members and identity claims
	CreateMember(ctx context.Context, member *Member) (map[string]string, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	GetMemberByHandle(ctx context.Context, platform, handle, scopeID string) (*Member, error)
	VerifyClaim(ctx context.Context, memberID, platform, code string) (bool, error)
	ListClaims(ctx context.Context, memberID string) ([]IdentityClaim, error)

	// Connectors and bindings
	UpsertConnector(ctx context.Context, c *Connector) error
	UpsertBinding(ctx context.Context, b *Binding) error
	ListActiveBindings(ctx context.Context, scopeID string) ([]Binding, error)

	// Relay messages
	SaveRelayMessage(ctx context.Context, msg *RelayMessage) (inserted bool, err error)
	GetRelayMessageBySource(ctx context.Context, scopeID, platform, messageID string) (*RelayMessage, error)
	IncrementRelayCount(ctx context.Context, id string, delta int) error

	// Provenance (append-only)
	AppendProvenance(ctx context.Context, p *Provenance) error
	ListProvenance(ctx context.Context, scopeID string, limit int) ([]Provenance, error)

	// Close releases any resources held by the store
	Close() error
}
