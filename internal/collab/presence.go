package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/gosuda/pinboard/internal/protocol"
)

// CursorMarker is a peer's pointer on the board.
type CursorMarker struct {
	UserID    string
	X, Y      float64
	Visible   bool
	UpdatedAt time.Time
}

// CursorTracker keeps one marker per remote user. A marker with no update
// for ttl is hidden, never removed, so resumed movement reuses it.
type CursorTracker struct {
	mu      sync.Mutex
	markers map[string]*CursorMarker
	expiry  *Expiry[string]

	onMove func(CursorMarker)
	onHide func(CursorMarker)
}

// NewCursorTracker hides markers idle for ttl. onMove and onHide may be nil.
func NewCursorTracker(ttl time.Duration, onMove, onHide func(CursorMarker)) *CursorTracker {
	t := &CursorTracker{
		markers: make(map[string]*CursorMarker),
		onMove:  onMove,
		onHide:  onHide,
	}
	t.expiry = NewExpiry(ttl, t.hide)
	return t
}

// Update moves (or creates) the sender's marker and restarts its hide timer.
func (t *CursorTracker) Update(c protocol.Cursor) CursorMarker {
	t.mu.Lock()
	m, ok := t.markers[c.UserID]
	if !ok {
		m = &CursorMarker{UserID: c.UserID}
		t.markers[c.UserID] = m
	}
	m.X, m.Y = c.X, c.Y
	m.Visible = true
	m.UpdatedAt = time.Now()
	snapshot := *m
	t.mu.Unlock()

	t.expiry.Touch(c.UserID)
	if t.onMove != nil {
		t.onMove(snapshot)
	}
	return snapshot
}

// Marker returns the marker for userID.
func (t *CursorTracker) Marker(userID string) (CursorMarker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.markers[userID]
	if !ok {
		return CursorMarker{}, false
	}
	return *m, true
}

// Markers returns every marker, visible or hidden, ordered by user.
func (t *CursorTracker) Markers() []CursorMarker {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]CursorMarker, 0, len(t.markers))
	for _, m := range t.markers {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Reset forgets every marker, e.g. when the board changes.
func (t *CursorTracker) Reset() {
	t.expiry.Reset()
	t.mu.Lock()
	t.markers = make(map[string]*CursorMarker)
	t.mu.Unlock()
}

// Close cancels all hide timers permanently.
func (t *CursorTracker) Close() { t.expiry.Stop() }

func (t *CursorTracker) hide(userID string) {
	t.mu.Lock()
	m, ok := t.markers[userID]
	if !ok || !m.Visible {
		t.mu.Unlock()
		return
	}
	m.Visible = false
	snapshot := *m
	t.mu.Unlock()

	if t.onHide != nil {
		t.onHide(snapshot)
	}
}

// TypingKey identifies one typing indicator.
type TypingKey struct {
	UserID    string
	CardID    string
	FieldType string
}

// TypingChange reports an indicator appearing or disappearing.
type TypingChange struct {
	Key    TypingKey
	Active bool
}

// TypingTracker shows who is typing in which card field. Each indicator
// clears itself after ttl unless refreshed.
type TypingTracker struct {
	mu       sync.Mutex
	active   map[TypingKey]struct{}
	expiry   *Expiry[TypingKey]
	onChange func(TypingChange)
}

// NewTypingTracker clears indicators not refreshed within ttl.
func NewTypingTracker(ttl time.Duration, onChange func(TypingChange)) *TypingTracker {
	t := &TypingTracker{
		active:   make(map[TypingKey]struct{}),
		onChange: onChange,
	}
	t.expiry = NewExpiry(ttl, t.clear)
	return t
}

// Start shows the indicator for key and restarts its timer.
func (t *TypingTracker) Start(key TypingKey) {
	t.mu.Lock()
	_, was := t.active[key]
	t.active[key] = struct{}{}
	t.mu.Unlock()

	t.expiry.Touch(key)
	if !was {
		t.notify(TypingChange{Key: key, Active: true})
	}
}

// Stop removes the indicator for key.
func (t *TypingTracker) Stop(key TypingKey) {
	t.expiry.Cancel(key)
	t.clear(key)
}

// IsTyping reports whether the indicator for key is shown.
func (t *TypingTracker) IsTyping(key TypingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[key]
	return ok
}

// Active returns the shown indicators in a stable order.
func (t *TypingTracker) Active() []TypingKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TypingKey, 0, len(t.active))
	for k := range t.active {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.CardID != b.CardID {
			return a.CardID < b.CardID
		}
		return a.FieldType < b.FieldType
	})
	return out
}

// Reset forgets every indicator without notifying.
func (t *TypingTracker) Reset() {
	t.expiry.Reset()
	t.mu.Lock()
	t.active = make(map[TypingKey]struct{})
	t.mu.Unlock()
}

// Close cancels all clear timers permanently.
func (t *TypingTracker) Close() { t.expiry.Stop() }

func (t *TypingTracker) clear(key TypingKey) {
	t.mu.Lock()
	_, was := t.active[key]
	delete(t.active, key)
	t.mu.Unlock()

	if was {
		t.notify(TypingChange{Key: key, Active: false})
	}
}

func (t *TypingTracker) notify(ch TypingChange) {
	if t.onChange != nil {
		t.onChange(ch)
	}
}
