package collab

import (
	"sort"
	"sync"

	"github.com/gosuda/pinboard/internal/protocol"
)

// Topic is a typed subscription point. The zero value is ready to use.
type Topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

// Subscribe registers fn and returns a func that removes it. Handlers run
// synchronously on the goroutine that publishes, in subscription order.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.next
	t.next++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *Topic[T]) publish(v T) {
	t.mu.RLock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Disconnect describes a lost or closed relay link.
type Disconnect struct {
	// Err is the transport error, nil after an explicit Disconnect.
	Err error
	// Retrying is set while the client is still trying to reconnect.
	Retrying bool
}

// Events are the notifications a client raises for the UI.
type Events struct {
	StateChanged Topic[State]
	Connected    Topic[struct{}]
	Disconnected Topic[Disconnect]
	Reconnected  Topic[struct{}]

	RemoteCardCreated        Topic[protocol.Card]
	RemoteCardUpdated        Topic[protocol.Card]
	RemoteCardDeleted        Topic[string]
	RemoteCardPositionUpdate Topic[protocol.CardPosition]

	UserJoined Topic[string]
	UserLeft   Topic[string]

	CursorMoved   Topic[CursorMarker]
	CursorHidden  Topic[CursorMarker]
	TypingChanged Topic[TypingChange]
}
