package redis_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	redisstore "github.com/gosuda/pinboard/internal/store/redis"
)

func TestRoomChannel(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		got := redisstore.RoomChannel("board-1")
		assert.Equal(t, "room:board-1", got)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()

		got := redisstore.RoomChannel("anything")
		assert.True(t, strings.HasPrefix(got, "room:"), "expected prefix 'room:', got %q", got)
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, redisstore.RoomChannel("b"), redisstore.RoomChannel("b"))
	})

	t.Run("different inputs produce different outputs", func(t *testing.T) {
		t.Parallel()

		assert.NotEqual(t, redisstore.RoomChannel("board-1"), redisstore.RoomChannel("board-2"))
	})
}

func TestRoomPattern_MatchesChannels(t *testing.T) {
	t.Parallel()

	pattern := redisstore.RoomPattern()
	assert.Equal(t, "room:*", pattern)
	assert.True(t, strings.HasPrefix(redisstore.RoomChannel("x"), strings.TrimSuffix(pattern, "*")))
}
