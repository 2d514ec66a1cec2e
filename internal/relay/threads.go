// ABOUTME: Per-channel reply tracking behind the thread digest path
// ABOUTME: A relay opens an activity window; enough follow-up replies trigger one digest

package relay

import (
	"sync"
	"time"
)

// Digest trigger defaults.
const (
	DefaultSummaryThreshold = 5
	DefaultSummaryWindow    = 30 * time.Minute
)

// Tracker counts reply activity per (platform, channel) after a relayed
// message. Safe for concurrent use by multiple connectors.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	threads   map[string]*threadActivity
}

type threadActivity struct {
	openedAt time.Time
	replies  []SummaryMessage
}

// NewTracker creates a tracker. Zero values select the defaults.
func NewTracker(threshold int, window time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	return &Tracker{
		threshold: threshold,
		window:    window,
		threads:   make(map[string]*threadActivity),
	}
}

// Open starts (or restarts) an activity window for a channel after a
// message from it was relayed. Replies recorded while the window is
// open count toward the digest threshold.
func (t *Tracker) Open(platform, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads[platform+":"+channel] = &threadActivity{openedAt: time.Now()}
}

// Record registers one reply in a channel. When the reply count reaches
// the threshold the accumulated replies are returned with ready=true
// and the window closes; otherwise ready is false. Replies outside any
// open window are ignored.
func (t *Tracker) Record(platform, channel, author string) (replies []SummaryMessage, ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := platform + ":" + channel
	activity, ok := t.threads[key]
	if !ok {
		return nil, false
	}
	if time.Since(activity.openedAt) > t.window {
		delete(t.threads, key)
		return nil, false
	}

	activity.replies = append(activity.replies, SummaryMessage{Author: author})
	if len(activity.replies) < t.threshold {
		return nil, false
	}

	delete(t.threads, key)
	return activity.replies, true
}
