// Package ws exposes the presence relay over WebSocket.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/pinboard/internal/protocol"
	"github.com/gosuda/pinboard/internal/relay"
	"github.com/gosuda/pinboard/internal/server/middleware"
)

const writeTimeout = 5 * time.Second

// Config tunes each relay connection.
type Config struct {
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	// MaxFrameBytes bounds inbound frames; a larger frame closes the
	// connection with StatusMessageTooBig.
	MaxFrameBytes  int64
	PingInterval   time.Duration
	OriginPatterns []string
}

// Handler upgrades authenticated requests and attaches them to the relay.
type Handler struct {
	relay *relay.Relay
	cfg   Config
}

// NewHandler serves relay connections for r.
func NewHandler(r *relay.Relay, cfg Config) *Handler {
	return &Handler{relay: r, cfg: cfg}
}

// ServeHTTP upgrades one request and relays its frames until the socket
// closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		log.Error().Err(err).Msg("ws: accept")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}

	rc := relay.NewConn(connID(r), userID.String(), h.cfg.SendBuffer)
	err = h.relay.Register(rc)
	if errors.Is(err, relay.ErrConnIDInUse) {
		_ = conn.Close(websocket.StatusPolicyViolation, "session in use")
		return
	}
	if err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "relay unavailable")
		return
	}

	log.Debug().Str("conn_id", rc.ID()).Str("user_id", rc.UserID()).Msg("ws: connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, conn, rc)
	}()

	err = h.readLoop(ctx, conn, rc)
	h.relay.Unregister(rc)
	cancel()
	<-writerDone

	status := websocket.CloseStatus(err)
	log.Debug().Err(err).Str("conn_id", rc.ID()).Int("status", int(status)).Msg("ws: disconnected")
	if status == -1 {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// connID adopts the session id the client announced on the handshake, or
// assigns a fresh one when it is missing or not a uuid.
func connID(r *http.Request) string {
	if id, err := uuid.Parse(r.URL.Query().Get(protocol.SessionParam)); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// readLoop feeds frames to the relay until the socket fails. Frames over the
// connection's rate are dropped.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, rc *relay.Conn) error {
	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), max(h.cfg.Burst, 1))
	if h.cfg.MessagesPerSecond <= 0 {
		limiter.SetLimit(rate.Inf)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			log.Debug().Str("conn_id", rc.ID()).Msg("ws: ignoring binary frame")
			continue
		}
		if !limiter.Allow() {
			log.Debug().Str("conn_id", rc.ID()).Msg("ws: over rate, dropping frame")
			continue
		}

		err = h.relay.Submit(rc, data)
		if errors.Is(err, relay.ErrStopped) {
			return err
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, rc *relay.Conn) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-rc.Outbound():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "relay closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", rc.ID()).Msg("ws: write")
				return
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", rc.ID()).Msg("ws: ping")
				return
			}
		}
	}
}
