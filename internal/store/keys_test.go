package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor_ValidPatterns(t *testing.T) {
	cases := []struct {
		pattern ClearPattern
		id      string
		want    string
	}{
		{ClearCustomerChat, "U1", "customer:chat:U1"},
		{ClearCustomerTicket, "C1", "customer:ticket:C1"},
		{ClearMappingThread, "Th1", "mapping:thread:Th1"},
		{ClearMappingTicket, "T1", "mapping:ticket:T1"},
		{ClearBotConfig, "greeting", "bot:config:greeting"},
	}
	for _, tc := range cases {
		key, err := keyFor(tc.pattern, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, key)
	}
}

func TestKeyFor_RejectsUnknownPattern(t *testing.T) {
	// Arbitrary strings must never reach the key space.
	_, err := keyFor(ClearPattern("mapping:thread:*; FLUSHALL"), "x")
	assert.ErrorIs(t, err, ErrUnknownPattern)

	_, err = keyFor(ClearPattern(""), "x")
	assert.ErrorIs(t, err, ErrUnknownPattern)
}

func TestKeyFor_RequiresID(t *testing.T) {
	_, err := keyFor(ClearMappingThread, "")
	assert.Error(t, err)
}

func TestMappingStatus_Valid(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusClosed.Valid())
	assert.True(t, StatusArchived.Valid())
	assert.False(t, MappingStatus("deleted").Valid())
	assert.False(t, MappingStatus("").Valid())
}
