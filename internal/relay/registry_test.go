package relay_test

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/pinboard/internal/relay"
)

func TestRegistry_JoinLeave(t *testing.T) {
	t.Parallel()

	t.Run("join creates room", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		prev := r.Join("a", "board-1")

		assert.Empty(t, prev)
		assert.Equal(t, []string{"a"}, r.MembersOf("board-1"))
		assert.Equal(t, 1, r.RoomCount())
	})

	t.Run("rejoin same room is a no-op", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		r.Join("a", "board-1")
		prev := r.Join("a", "board-1")

		assert.Empty(t, prev)
		assert.Equal(t, []string{"a"}, r.MembersOf("board-1"))
	})

	t.Run("join moves between rooms", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		r.Join("a", "board-1")
		r.Join("b", "board-1")
		prev := r.Join("a", "board-2")

		assert.Equal(t, "board-1", prev)
		assert.Equal(t, []string{"b"}, r.MembersOf("board-1"))
		assert.Equal(t, []string{"a"}, r.MembersOf("board-2"))
		room, ok := r.RoomOf("a")
		assert.True(t, ok)
		assert.Equal(t, "board-2", room)
	})

	t.Run("leave discards empty room", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		r.Join("a", "board-1")

		assert.True(t, r.Leave("a", "board-1"))
		assert.Empty(t, r.MembersOf("board-1"))
		assert.Equal(t, 0, r.RoomCount())
	})

	t.Run("leave other room is ignored", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		r.Join("a", "board-1")

		assert.False(t, r.Leave("a", "board-2"))
		assert.Equal(t, []string{"a"}, r.MembersOf("board-1"))
	})

	t.Run("disconnect reports room", func(t *testing.T) {
		t.Parallel()

		r := relay.NewRegistry()
		r.Join("a", "board-1")
		r.Join("b", "board-1")

		assert.Equal(t, "board-1", r.OnDisconnect("a"))
		assert.Equal(t, []string{"b"}, r.MembersOf("board-1"))
		assert.Empty(t, r.OnDisconnect("a"))
		_, ok := r.RoomOf("a")
		assert.False(t, ok)
	})
}

// A connection is listed in a room iff its last room operation was a join of
// that room.
func TestRegistry_MembershipFollowsLastOperation(t *testing.T) {
	t.Parallel()

	conns := []string{"a", "b", "c", "d"}
	rooms := []string{"r1", "r2", "r3"}
	rng := rand.New(rand.NewSource(42))

	r := relay.NewRegistry()
	last := make(map[string]string) // conn -> room, "" when left

	for range 2000 {
		c := conns[rng.Intn(len(conns))]
		room := rooms[rng.Intn(len(rooms))]
		switch rng.Intn(3) {
		case 0, 1:
			r.Join(c, room)
			last[c] = room
		case 2:
			if r.Leave(c, room) {
				last[c] = ""
			}
		}

		for _, rm := range rooms {
			for _, cc := range conns {
				want := last[cc] == rm
				assert.Equal(t, want, slices.Contains(r.MembersOf(rm), cc), "conn %s room %s", cc, rm)
			}
		}
	}
}
