package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/pinboard/internal/protocol"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    protocol.Event
		wantErr error
	}{
		{name: "join board", raw: `{"event":"join-board","data":{"boardId":"board-1"}}`, want: protocol.EventJoinBoard},
		{name: "cursor", raw: `{"event":"cursor-update","data":{"x":10,"y":20,"boardId":"b","userId":"u","timestamp":1}}`, want: protocol.EventCursorUpdate},
		{name: "typing start", raw: `{"event":"typing-start","data":{"cardId":"c1","fieldType":"title","boardId":"b","userId":"u"}}`, want: protocol.EventTypingStart},
		{name: "card deleted", raw: `{"event":"card-deleted","data":{"cardId":"c1","boardId":"b","userId":"u"}}`, want: protocol.EventCardDeleted},
		{name: "not json", raw: `{{`, wantErr: protocol.ErrMalformed},
		{name: "missing event", raw: `{"data":{}}`, wantErr: protocol.ErrMalformed},
		{name: "unknown event", raw: `{"event":"explode","data":{}}`, wantErr: protocol.ErrUnknownEvent},
		{name: "join without board", raw: `{"event":"join-board","data":{}}`, wantErr: protocol.ErrMalformed},
		{name: "join without data", raw: `{"event":"join-board"}`, wantErr: protocol.ErrMalformed},
		{name: "typing without field", raw: `{"event":"typing-stop","data":{"cardId":"c1","userId":"u"}}`, wantErr: protocol.ErrMalformed},
		{name: "cursor wrong type", raw: `{"event":"cursor-update","data":{"x":"left","userId":"u"}}`, wantErr: protocol.ErrMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env, err := protocol.Decode([]byte(tc.raw))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, env.Event)
		})
	}
}

func TestReframe_KeepsPayloadAndSetsOrigin(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"event":"cursor-update","origin":"forged","data":{"x":10,"y":20,"boardId":"b","userId":"u","timestamp":5}}`)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)

	out, err := protocol.Reframe(env, "conn-a")
	require.NoError(t, err)

	got, err := protocol.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "conn-a", got.Origin)

	var cur protocol.Cursor
	require.NoError(t, got.Unmarshal(&cur))
	assert.Equal(t, protocol.Cursor{X: 10, Y: 20, BoardID: "b", UserID: "u", Timestamp: 5}, cur)
}

func TestEventClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, protocol.EventCardUpdated.Relayed())
	assert.True(t, protocol.EventCursorUpdate.Relayed())
	assert.False(t, protocol.EventJoinBoard.Relayed())
	assert.False(t, protocol.EventUserLeft.Relayed(), "membership notices are produced by the relay only")
	assert.False(t, protocol.Event("nope").Known())
}

func TestEncode_NilPayload(t *testing.T) {
	t.Parallel()

	b, err := protocol.Encode(protocol.EventLeaveBoard, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"leave-board"}`, string(b))
}
