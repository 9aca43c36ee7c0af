// Package collab is the client side of the real-time layer: one persistent
// relay link per client, room membership following the active board, and
// local display state for peers' cursors, typing and card edits.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pinboard/internal/protocol"
)

var (
	// ErrClosed is returned by Connect after Disconnect.
	ErrClosed = errors.New("client closed")
	// ErrAlreadyStarted is returned by Connect while a link is being kept.
	ErrAlreadyStarted = errors.New("client already connecting or connected")
)

// State is the client's link state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInRoom
)

// String returns the state's display name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in-room"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Client. Zero durations and attempt counts take
// defaults.
type Config struct {
	URL   string
	Token string

	// MaxAttempts is the dial budget of one connect cycle.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration

	CursorTTL time.Duration
	TypingTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.CursorTTL <= 0 {
		c.CursorTTL = 3 * time.Second
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 3 * time.Second
	}
	return c
}

// Client keeps one relay link alive and mirrors peers' activity locally.
type Client struct {
	cfg       Config
	dialer    Dialer
	sessionID string

	events  *Events
	board   *BoardState
	cursors *CursorTracker
	typing  *TypingTracker

	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	conn     Conn
	room     string // joined on the current link
	wantRoom string // to (re)join once linked
	running  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a disconnected client with a fresh session id.
func New(cfg Config, dialer Dialer) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		dialer:    dialer,
		sessionID: uuid.NewString(),
		events:    &Events{},
		board:     NewBoardState(),
	}
	c.cursors = NewCursorTracker(c.cfg.CursorTTL, c.events.CursorMoved.publish, c.events.CursorHidden.publish)
	c.typing = NewTypingTracker(c.cfg.TypingTTL, c.events.TypingChanged.publish)
	return c
}

// SessionID identifies this client instance on the wire. The relay adopts
// it as the connection id, so peers see it in user-joined and user-left.
func (c *Client) SessionID() string { return c.sessionID }

// Events returns the client's outbound subscriptions.
func (c *Client) Events() *Events { return c.events }

// Board returns the local card copies for the joined room.
func (c *Client) Board() *BoardState { return c.board }

// Cursors returns peers' cursor markers.
func (c *Client) Cursors() *CursorTracker { return c.cursors }

// Typing returns peers' typing indicators.
func (c *Client) Typing() *TypingTracker { return c.typing }

// State returns the current link state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the room joined on the current link, if any.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Connect starts the connection manager and returns immediately. Progress is
// reported through Events. A client that gave up after its retry budget may
// be connected again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("collab.Client.Connect: %w", ErrClosed)
	}
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collab.Client.Connect: %w", ErrAlreadyStarted)
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.notifyState(changed, StateConnecting)
	go c.run(ctx, done)
	return nil
}

// Done is closed when the current connection manager exits.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Disconnect leaves the current room, closes the link and stops
// reconnecting. The client cannot be reused afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn, room, cancel := c.conn, c.room, c.cancel
	c.conn, c.room, c.wantRoom = nil, "", ""
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if room != "" {
			_ = c.write(conn, protocol.EventLeaveBoard, protocol.BoardRef{BoardID: room})
		}
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.cursors.Close()
	c.typing.Close()

	c.notifyState(changed, StateDisconnected)
	c.events.Disconnected.publish(Disconnect{})
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	reconnect := false
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			c.giveUp(err)
			return
		}
		if !c.attach(conn, reconnect) {
			_ = conn.Close()
			return
		}
		reconnect = true

		err = c.readLoop(ctx, conn)
		if !c.detach(conn, err) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	target, err := withSession(c.cfg.URL, c.sessionID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	var conn Conn
	op := func() error {
		cn, err := c.dialer.Dial(ctx, target, header)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Str("url", c.cfg.URL).Msg("collab.Client: dial failed")
	}
	err = backoff.RetryNotify(op, policy, notify)
	if err != nil {
		return nil, fmt.Errorf("collab.Client.dial: %w", err)
	}
	return conn, nil
}

// withSession adds the session id to the relay URL's query.
func withSession(raw, session string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("collab.withSession: %w", err)
	}
	q := u.Query()
	q.Set(protocol.SessionParam, session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// attach installs a fresh link and rejoins the remembered room.
func (c *Client) attach(conn Conn, reconnect bool) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.room = ""
	changed := c.setStateLocked(StateConnected)
	want := c.wantRoom
	c.mu.Unlock()

	c.notifyState(changed, StateConnected)
	if reconnect {
		log.Info().Str("session_id", c.sessionID).Msg("collab.Client: reconnected")
		c.events.Reconnected.publish(struct{}{})
	} else {
		c.events.Connected.publish(struct{}{})
	}
	if want != "" {
		c.JoinRoom(want)
	}
	return true
}

// detach drops a dead link. It reports whether the manager should redial.
func (c *Client) detach(conn Conn, cause error) bool {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	c.room = ""
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	_ = conn.Close()
	log.Warn().Err(cause).Str("session_id", c.sessionID).Msg("collab.Client: link lost, reconnecting")

	c.notifyState(changed, StateConnecting)
	c.events.Disconnected.publish(Disconnect{Err: cause, Retrying: true})
	return true
}

// giveUp is reached when the dial budget is spent or the context ended.
func (c *Client) giveUp(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.conn = nil
	c.room = ""
	cancel := c.cancel
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	log.Error().Err(cause).Str("url", c.cfg.URL).Msg("collab.Client: giving up")

	c.notifyState(changed, StateDisconnected)
	c.events.Disconnected.publish(Disconnect{Err: cause, Retrying: false})
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Msg("collab.Client: dropping frame")
		return
	}

	switch env.Event {
	case protocol.EventCursorUpdate:
		var p protocol.Cursor
		if c.decode(env, &p) && !c.isSelf(p.UserID) {
			c.cursors.Update(p)
		}
	case protocol.EventTypingStart, protocol.EventTypingStop:
		var p protocol.Typing
		if !c.decode(env, &p) || c.isSelf(p.UserID) {
			return
		}
		key := TypingKey{UserID: p.UserID, CardID: p.CardID, FieldType: p.FieldType}
		if env.Event == protocol.EventTypingStart {
			c.typing.Start(key)
		} else {
			c.typing.Stop(key)
		}
	case protocol.EventCardPositionUpdate:
		var p protocol.CardPosition
		if c.decode(env, &p) && !c.isSelf(p.UserID) {
			c.board.ApplyPosition(p)
			c.events.RemoteCardPositionUpdate.publish(p)
		}
	case protocol.EventCardCreated, protocol.EventCardUpdated:
		var p protocol.Card
		if !c.decode(env, &p) || c.isSelf(p.UserID) {
			return
		}
		kept, applied := c.board.ApplyRemote(p)
		if !applied {
			log.Debug().Str("card_id", p.ID).Msg("collab.Client: local card is newer, remote ignored")
			return
		}
		if env.Event == protocol.EventCardCreated {
			c.events.RemoteCardCreated.publish(kept)
		} else {
			c.events.RemoteCardUpdated.publish(kept)
		}
	case protocol.EventCardDeleted:
		var p protocol.CardDeleted
		if c.decode(env, &p) && !c.isSelf(p.UserID) {
			c.board.Remove(p.CardID)
			c.events.RemoteCardDeleted.publish(p.CardID)
		}
	case protocol.EventUserJoined:
		var p protocol.Member
		if c.decode(env, &p) {
			c.events.UserJoined.publish(p.ConnectionID)
		}
	case protocol.EventUserLeft:
		var p protocol.Member
		if c.decode(env, &p) {
			c.events.UserLeft.publish(p.ConnectionID)
		}
	default:
		log.Debug().Str("event", string(env.Event)).Msg("collab.Client: ignoring event")
	}
}

func (c *Client) decode(env *protocol.Envelope, v any) bool {
	if err := env.Unmarshal(v); err != nil {
		log.Warn().Err(err).Str("event", string(env.Event)).Msg("collab.Client: bad payload")
		return false
	}
	return true
}

func (c *Client) isSelf(userID string) bool { return userID == c.sessionID }

// JoinRoom moves the client into roomID, leaving any other room first. When
// no link is up the room is remembered and joined on connect.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wantRoom = roomID
	conn, prev := c.conn, c.room
	if conn == nil || prev == roomID {
		c.mu.Unlock()
		return
	}
	c.room = ""
	changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	if prev != "" {
		c.notifyState(changed, StateConnected)
		if err := c.write(conn, protocol.EventLeaveBoard, protocol.BoardRef{BoardID: prev}); err != nil {
			log.Debug().Err(err).Str("room", prev).Msg("collab.Client: leave failed")
		}
		c.resetBoard()
	}

	if err := c.write(conn, protocol.EventJoinBoard, protocol.BoardRef{BoardID: roomID}); err != nil {
		log.Debug().Err(err).Str("room", roomID).Msg("collab.Client: join failed")
		return
	}

	c.mu.Lock()
	if c.conn != conn || c.wantRoom != roomID {
		c.mu.Unlock()
		return
	}
	c.room = roomID
	changed = c.setStateLocked(StateInRoom)
	c.mu.Unlock()
	c.notifyState(changed, StateInRoom)
}

// LeaveRoom leaves the current room and forgets it.
func (c *Client) LeaveRoom() {
	c.mu.Lock()
	c.wantRoom = ""
	conn, room := c.conn, c.room
	if conn == nil || room == "" {
		c.mu.Unlock()
		return
	}
	c.room = ""
	changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.notifyState(changed, StateConnected)
	if err := c.write(conn, protocol.EventLeaveBoard, protocol.BoardRef{BoardID: room}); err != nil {
		log.Debug().Err(err).Str("room", room).Msg("collab.Client: leave failed")
	}
	c.resetBoard()
}

// SendCursor broadcasts the local pointer. Outside a room it is dropped.
func (c *Client) SendCursor(x, y float64) bool {
	return c.sendInRoom(protocol.EventCursorUpdate, func(room string) any {
		return protocol.Cursor{
			X:         x,
			Y:         y,
			BoardID:   room,
			UserID:    c.sessionID,
			Timestamp: time.Now().UnixMilli(),
		}
	})
}

// SendCardPosition broadcasts a drag and moves the local copy.
func (c *Client) SendCardPosition(cardID string, x, y float64) bool {
	pos := protocol.CardPosition{CardID: cardID, X: x, Y: y, UserID: c.sessionID}
	c.board.ApplyPosition(pos)
	return c.sendInRoom(protocol.EventCardPositionUpdate, func(room string) any {
		pos.BoardID = room
		return pos
	})
}

// SendTypingStart announces that the user is editing fieldType of cardID.
func (c *Client) SendTypingStart(cardID, fieldType string) bool {
	return c.sendTyping(protocol.EventTypingStart, cardID, fieldType)
}

// SendTypingStop withdraws a typing announcement.
func (c *Client) SendTypingStop(cardID, fieldType string) bool {
	return c.sendTyping(protocol.EventTypingStop, cardID, fieldType)
}

func (c *Client) sendTyping(event protocol.Event, cardID, fieldType string) bool {
	return c.sendInRoom(event, func(room string) any {
		return protocol.Typing{CardID: cardID, FieldType: fieldType, BoardID: room, UserID: c.sessionID}
	})
}

// SendCardCreated records a new card locally and announces it.
func (c *Client) SendCardCreated(card protocol.Card) bool {
	return c.sendCard(protocol.EventCardCreated, card)
}

// SendCardUpdated records an edit locally and announces it.
func (c *Client) SendCardUpdated(card protocol.Card) bool {
	return c.sendCard(protocol.EventCardUpdated, card)
}

func (c *Client) sendCard(event protocol.Event, card protocol.Card) bool {
	card.UserID = c.sessionID
	if card.UpdatedAt == 0 {
		card.UpdatedAt = time.Now().UnixMilli()
	}
	if card.BoardID == "" {
		card.BoardID = c.Room()
	}
	c.board.ApplyLocal(card)
	return c.sendInRoom(event, func(room string) any {
		card.BoardID = room
		return card
	})
}

// SendCardDeleted drops the local copy and announces the deletion.
func (c *Client) SendCardDeleted(cardID string) bool {
	c.board.Remove(cardID)
	return c.sendInRoom(protocol.EventCardDeleted, func(room string) any {
		return protocol.CardDeleted{CardID: cardID, BoardID: room, UserID: c.sessionID}
	})
}

func (c *Client) sendInRoom(event protocol.Event, build func(room string) any) bool {
	c.mu.Lock()
	conn, room, state := c.conn, c.room, c.state
	c.mu.Unlock()

	if state != StateInRoom || conn == nil {
		return false
	}
	if err := c.write(conn, event, build(room)); err != nil {
		log.Debug().Err(err).Str("event", string(event)).Msg("collab.Client: send failed")
		return false
	}
	return true
}

func (c *Client) write(conn Conn, event protocol.Event, payload any) error {
	frame, err := protocol.Encode(event, "", payload)
	if err != nil {
		return fmt.Errorf("collab.Client.write: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("collab.Client.write: %w", err)
	}
	return nil
}

func (c *Client) resetBoard() {
	c.board.Reset()
	c.cursors.Reset()
	c.typing.Reset()
}

func (c *Client) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Client) notifyState(changed bool, s State) {
	if changed {
		c.events.StateChanged.publish(s)
	}
}
