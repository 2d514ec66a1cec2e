// ABOUTME: Tests for the dedupe cache
// ABOUTME: Covers first-sighting vs duplicate, TTL expiry and size capping

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SeenMarksAndDetects(t *testing.T) {
	c := New(5*time.Minute, 100)

	assert.False(t, c.Seen("discord:m1"), "first sighting is not a duplicate")
	assert.True(t, c.Seen("discord:m1"), "second sighting is a duplicate")
	assert.False(t, c.Seen("discord:m2"), "different key is independent")
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 100)

	assert.False(t, c.Seen("k"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("k"), "expired key counts as unseen")
}

func TestCache_MaxSizeEviction(t *testing.T) {
	c := New(time.Hour, 3)

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Inserting past capacity evicts the oldest unexpired key
	c.Seen("k3")
	assert.LessOrEqual(t, c.Len(), 3)
	assert.True(t, c.Seen("k3"), "newest key is retained")
}
