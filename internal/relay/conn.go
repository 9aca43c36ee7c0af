package relay

// Conn is the relay's view of one live client session. Frames queued for the
// session are read from Outbound by the transport's write loop.
type Conn struct {
	id     string
	userID string
	send   chan []byte

	// owned by the relay loop
	closed bool
}

// NewConn creates a connection with an outbound buffer of the given size.
func NewConn(id, userID string, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{
		id:     id,
		userID: userID,
		send:   make(chan []byte, buffer),
	}
}

// ID returns the connection id, which peers see as the origin.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated account behind the connection.
func (c *Conn) UserID() string { return c.userID }

// Outbound yields frames addressed to this connection. It is closed once the
// relay has unregistered the connection.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// deliver queues a frame without blocking and reports whether it was
// accepted. Called only from the relay loop.
func (c *Conn) deliver(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close drops pending frames and closes Outbound. Called only from the relay
// loop.
func (c *Conn) close() {
	if c.closed {
		return
	}
	c.closed = true
drain:
	for {
		select {
		case <-c.send:
		default:
			break drain
		}
	}
	close(c.send)
}
