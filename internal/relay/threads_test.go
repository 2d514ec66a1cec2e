// ABOUTME: Tests for the per-channel reply tracker behind thread digests
// ABOUTME: Covers window opening, threshold triggering, expiry, and channel isolation

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerIgnoresRepliesWithoutOpenWindow(t *testing.T) {
	tr := NewTracker(3, time.Minute)

	replies, ready := tr.Record("discord", "general", "alice")
	assert.False(t, ready)
	assert.Nil(t, replies)
}

func TestTrackerFiresAtThreshold(t *testing.T) {
	tr := NewTracker(3, time.Minute)
	tr.Open("discord", "general")

	_, ready := tr.Record("discord", "general", "alice")
	assert.False(t, ready)
	_, ready = tr.Record("discord", "general", "bob")
	assert.False(t, ready)

	replies, ready := tr.Record("discord", "general", "carol")
	require.True(t, ready)
	require.Len(t, replies, 3)
	assert.Equal(t, "alice", replies[0].Author)
	assert.Equal(t, "carol", replies[2].Author)
}

func TestTrackerClosesWindowAfterFiring(t *testing.T) {
	tr := NewTracker(2, time.Minute)
	tr.Open("discord", "general")

	tr.Record("discord", "general", "alice")
	_, ready := tr.Record("discord", "general", "bob")
	require.True(t, ready)

	// Window is closed; further replies don't count until reopened
	_, ready = tr.Record("discord", "general", "carol")
	assert.False(t, ready)
}

func TestTrackerChannelsAreIndependent(t *testing.T) {
	tr := NewTracker(2, time.Minute)
	tr.Open("discord", "general")
	tr.Open("discord", "dev")

	tr.Record("discord", "general", "alice")
	_, ready := tr.Record("discord", "dev", "bob")
	assert.False(t, ready)

	_, ready = tr.Record("discord", "general", "carol")
	assert.True(t, ready)
}

func TestTrackerSamePlatformDifferentChannelKey(t *testing.T) {
	tr := NewTracker(2, time.Minute)
	tr.Open("discord", "general")

	// Replies on matrix don't count toward the discord window
	_, ready := tr.Record("matrix", "general", "alice")
	assert.False(t, ready)
	tr.Record("discord", "general", "bob")
	_, ready = tr.Record("discord", "general", "carol")
	assert.True(t, ready)
}

func TestTrackerExpiredWindowDropsReplies(t *testing.T) {
	tr := NewTracker(2, 10*time.Millisecond)
	tr.Open("discord", "general")

	time.Sleep(20 * time.Millisecond)

	_, ready := tr.Record("discord", "general", "alice")
	assert.False(t, ready)
	// Window was deleted on expiry; a second reply is still outside one
	_, ready = tr.Record("discord", "general", "bob")
	assert.False(t, ready)
}

func TestTrackerReopenResetsCount(t *testing.T) {
	tr := NewTracker(3, time.Minute)
	tr.Open("discord", "general")
	tr.Record("discord", "general", "alice")
	tr.Record("discord", "general", "bob")

	// Reopening discards accumulated replies
	tr.Open("discord", "general")
	_, ready := tr.Record("discord", "general", "carol")
	assert.False(t, ready)
	_, ready = tr.Record("discord", "general", "dave")
	assert.False(t, ready)
	_, ready = tr.Record("discord", "general", "erin")
	assert.True(t, ready)
}

func TestTrackerZeroValuesSelectDefaults(t *testing.T) {
	tr := NewTracker(0, 0)
	assert.Equal(t, DefaultSummaryThreshold, tr.threshold)
	assert.Equal(t, DefaultSummaryWindow, tr.window)
}
