// Package relay implements the presence and broadcast relay: it tracks which
// board room each connection occupies and forwards events from one
// connection to every other member of its room.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pinboard/internal/protocol"
)

var (
	// ErrStopped is returned when the relay loop is no longer running.
	ErrStopped = errors.New("relay: stopped")
	// ErrConnIDInUse is returned by Register when another user already holds
	// the connection id.
	ErrConnIDInUse = errors.New("relay: connection id in use")
)

// Config holds relay settings.
type Config struct {
	// InstanceID distinguishes this process on the bridge. Generated when
	// empty.
	InstanceID string
}

// RemoteMessage is a broadcast crossing relay instances. Frame is the
// envelope exactly as it was delivered locally.
type RemoteMessage struct {
	Instance string `json:"instance"`
	Room     string `json:"room"`
	Frame    []byte `json:"frame"`
}

// Bridge carries broadcasts between relay instances. Publish must not block.
type Bridge interface {
	Publish(msg RemoteMessage)
	Subscribe(ctx context.Context) (<-chan RemoteMessage, error)
}

type registration struct {
	conn  *Conn
	reply chan error
}

type inbound struct {
	conn *Conn
	env  *protocol.Envelope
}

type outbound struct {
	sender  string
	room    string
	event   protocol.Event
	payload any
}

// Relay owns the room registry and all connection delivery. Every mutation
// runs on the single Run loop, so events from one connection are handled in
// arrival order.
type Relay struct {
	instanceID string
	registry   *Registry
	bridge     Bridge

	conns     map[string]*Conn // owned by Run
	connCount atomic.Int64

	register   chan registration
	unregister chan *Conn
	inbound    chan inbound
	broadcasts chan outbound
	done       chan struct{}
}

// New creates a relay. bridge may be nil for a single-instance deployment.
func New(cfg Config, bridge Bridge) *Relay {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &Relay{
		instanceID: instanceID,
		registry:   NewRegistry(),
		bridge:     bridge,
		conns:      make(map[string]*Conn),
		register:   make(chan registration),
		unregister: make(chan *Conn),
		inbound:    make(chan inbound),
		broadcasts: make(chan outbound),
		done:       make(chan struct{}),
	}
}

// Registry exposes room membership for read-only inspection.
func (r *Relay) Registry() *Registry { return r.registry }

// ConnCount returns the number of registered connections.
func (r *Relay) ConnCount() int { return int(r.connCount.Load()) }

// InstanceID returns the id this relay publishes under.
func (r *Relay) InstanceID() string { return r.instanceID }

// Run processes relay events until ctx is cancelled. All connections still
// registered are closed on return.
func (r *Relay) Run(ctx context.Context) error {
	defer close(r.done)

	var remote <-chan RemoteMessage
	if r.bridge != nil {
		ch, err := r.bridge.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("relay.Relay.Run: subscribe: %w", err)
		}
		remote = ch
	}

	log.Info().Str("instance", r.instanceID).Bool("bridged", r.bridge != nil).Msg("relay: loop started")

	for {
		select {
		case <-ctx.Done():
			for _, c := range r.conns {
				c.close()
			}
			log.Info().Str("instance", r.instanceID).Msg("relay: loop stopped")
			return nil

		case reg := <-r.register:
			reg.reply <- r.handleRegister(reg.conn)

		case c := <-r.unregister:
			r.handleDisconnect(c)

		case in := <-r.inbound:
			r.handleInbound(in)

		case out := <-r.broadcasts:
			frame, err := protocol.Encode(out.event, out.sender, out.payload)
			if err != nil {
				log.Error().Err(err).Str("event", string(out.event)).Msg("relay: encode broadcast")
				continue
			}
			r.fanout(out.sender, out.room, frame, true)

		case msg, ok := <-remote:
			if !ok {
				log.Warn().Msg("relay: bridge subscription closed")
				remote = nil
				continue
			}
			if msg.Instance == r.instanceID {
				continue
			}
			r.fanout("", msg.Room, msg.Frame, false)
		}
	}
}

// Register adds a connection. It blocks until the loop has accepted it.
// A connection reusing the id of one held by the same user replaces it, so a
// client reattaching after a drop the server has not noticed yet takes over
// its session. The id of another user's connection is refused.
func (r *Relay) Register(c *Conn) error {
	reply := make(chan error, 1)
	select {
	case r.register <- registration{conn: c, reply: reply}:
		return <-reply
	case <-r.done:
		return ErrStopped
	}
}

// Unregister removes a connection, announces user-left to its room and
// closes its outbound channel.
func (r *Relay) Unregister(c *Conn) {
	select {
	case r.unregister <- c:
	case <-r.done:
	}
}

// Submit decodes one frame received from c and hands it to the loop.
// Protocol errors are logged and returned; the frame is dropped and the
// connection stays up.
func (r *Relay) Submit(c *Conn, raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("conn_id", c.id).Msg("relay: dropping message")
		return err
	}

	select {
	case r.inbound <- inbound{conn: c, env: env}:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Broadcast sends event to every member of roomID except senderID. Delivery
// is asynchronous and best-effort.
func (r *Relay) Broadcast(senderID, roomID string, event protocol.Event, payload any) error {
	select {
	case r.broadcasts <- outbound{sender: senderID, room: roomID, event: event, payload: payload}:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

func (r *Relay) handleRegister(c *Conn) error {
	if old, ok := r.conns[c.id]; ok {
		if old.userID != c.userID {
			log.Warn().Str("conn_id", c.id).Str("user_id", c.userID).Msg("relay: connection id held by another user")
			return fmt.Errorf("relay.Relay.Register: %w", ErrConnIDInUse)
		}
		log.Debug().Str("conn_id", c.id).Msg("relay: replacing stale connection")
		r.handleDisconnect(old)
	}

	r.conns[c.id] = c
	r.connCount.Add(1)
	log.Debug().Str("conn_id", c.id).Str("user_id", c.userID).Msg("relay: connection registered")
	return nil
}

func (r *Relay) handleDisconnect(c *Conn) {
	if r.conns[c.id] != c {
		return
	}
	delete(r.conns, c.id)
	r.connCount.Add(-1)
	c.close()

	room := r.registry.OnDisconnect(c.id)
	log.Debug().Str("conn_id", c.id).Str("room", room).Msg("relay: connection unregistered")
	if room != "" {
		r.announce(protocol.EventUserLeft, c.id, room)
	}
}

func (r *Relay) handleInbound(in inbound) {
	c := in.conn
	if r.conns[c.id] != c {
		return
	}

	switch ev := in.env.Event; {
	case ev == protocol.EventJoinBoard:
		var ref protocol.BoardRef
		if err := in.env.Unmarshal(&ref); err != nil {
			log.Warn().Err(err).Str("conn_id", c.id).Msg("relay: dropping join")
			return
		}
		if current, ok := r.registry.RoomOf(c.id); ok && current == ref.BoardID {
			return
		}
		if prev := r.registry.Join(c.id, ref.BoardID); prev != "" {
			r.announce(protocol.EventUserLeft, c.id, prev)
		}
		log.Debug().Str("conn_id", c.id).Str("room", ref.BoardID).Msg("relay: joined room")
		r.announce(protocol.EventUserJoined, c.id, ref.BoardID)

	case ev == protocol.EventLeaveBoard:
		var ref protocol.BoardRef
		if err := in.env.Unmarshal(&ref); err != nil {
			log.Warn().Err(err).Str("conn_id", c.id).Msg("relay: dropping leave")
			return
		}
		if current, ok := r.registry.RoomOf(c.id); !ok || current != ref.BoardID {
			return
		}
		r.announce(protocol.EventUserLeft, c.id, ref.BoardID)
		r.registry.Leave(c.id, ref.BoardID)
		log.Debug().Str("conn_id", c.id).Str("room", ref.BoardID).Msg("relay: left room")

	case ev.Relayed():
		room, ok := r.registry.RoomOf(c.id)
		if !ok {
			log.Debug().Str("conn_id", c.id).Str("event", string(ev)).Msg("relay: sender not in a room, dropping")
			return
		}
		frame, err := protocol.Reframe(in.env, c.id)
		if err != nil {
			log.Error().Err(err).Str("conn_id", c.id).Msg("relay: reframe")
			return
		}
		r.fanout(c.id, room, frame, true)

	default:
		log.Warn().Str("conn_id", c.id).Str("event", string(ev)).Msg("relay: event not accepted from clients")
	}
}

func (r *Relay) announce(event protocol.Event, connID, room string) {
	frame, err := protocol.Encode(event, connID, protocol.Member{ConnectionID: connID, BoardID: room})
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("relay: encode announcement")
		return
	}
	r.fanout(connID, room, frame, true)
}

// fanout queues frame for every local member of room except sender and,
// when publish is set, forwards it to other instances.
func (r *Relay) fanout(sender, room string, frame []byte, publish bool) {
	sent, dropped := 0, 0
	for _, id := range r.registry.MembersOf(room) {
		if id == sender {
			continue
		}
		c, ok := r.conns[id]
		if !ok {
			continue
		}
		if c.deliver(frame) {
			sent++
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		log.Debug().Str("room", room).Int("sent", sent).Int("dropped", dropped).Msg("relay: slow peers skipped")
	}

	if publish && r.bridge != nil {
		r.bridge.Publish(RemoteMessage{Instance: r.instanceID, Room: room, Frame: frame})
	}
}
