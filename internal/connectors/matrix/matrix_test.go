// ABOUTME: Tests for the Matrix connector's room allowlist filtering

package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedSet(t *testing.T) {
	set := allowedSet([]string{"!room1:matrix.org", "!room2:matrix.org"})
	assert.True(t, set["!room1:matrix.org"])
	assert.True(t, set["!room2:matrix.org"])
	assert.False(t, set["!other:matrix.org"])
}

func TestAllowedSetEmptyMeansAllRooms(t *testing.T) {
	assert.Nil(t, allowedSet(nil))
	assert.Nil(t, allowedSet([]string{}))
}
