// ABOUTME: Dispatch registry mapping platform names to outbound bindings
// ABOUTME: Built once at startup and passed into the pipeline; no ambient global lookup

package relay

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoBinding means no outbound binding is registered for a platform.
// The fan-out loop treats it as a per-binding dispatch failure: logged
// and skipped, never fatal.
var ErrNoBinding = errors.New("no binding registered for platform")

// Binding is the outbound half of a platform integration: it posts
// relayed text to a destination channel on its platform.
type Binding interface {
	// Platform returns the platform name this binding posts to.
	Platform() string

	// Post delivers text to the given channel. Implementations should
	// honor ctx cancellation; the pipeline applies a per-dispatch timeout.
	Post(ctx context.Context, channelID, text string) error
}

// Registry holds the outbound bindings for connected platforms.
// Construct it during startup wiring; it is read-only afterwards.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry creates a registry from the given bindings.
func NewRegistry(bindings ...Binding) *Registry {
	r := &Registry{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		r.bindings[b.Platform()] = b
	}
	return r
}

// Register adds a binding. Call during startup wiring only.
func (r *Registry) Register(b Binding) {
	r.bindings[b.Platform()] = b
}

// Dispatch posts text to a channel on the named platform.
func (r *Registry) Dispatch(ctx context.Context, platform, channelID, text string) error {
	b, ok := r.bindings[platform]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBinding, platform)
	}
	return b.Post(ctx, channelID, text)
}
