// Command pinboard-watch joins a board as a headless collaborator and logs
// what other members do there.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pinboard/internal/collab"
	"github.com/gosuda/pinboard/internal/config"
	"github.com/gosuda/pinboard/internal/logging"
	"github.com/gosuda/pinboard/internal/protocol"
)

var errGaveUp = errors.New("relay unreachable, retry budget exhausted")

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("pinboard-watch failed")
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := collab.New(collab.Config{
		URL:            cfg.URL,
		Token:          cfg.Token,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		CursorTTL:      cfg.CursorTTL,
		TypingTTL:      cfg.TypingTTL,
	}, collab.WebSocketDialer{})

	unsubscribe := logActivity(client)
	defer unsubscribe()

	client.JoinRoom(cfg.Board)
	err = client.Connect(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("url", cfg.URL).Str("board", cfg.Board).Str("session", client.SessionID()).Msg("watching")

	select {
	case <-ctx.Done():
		client.Disconnect()
		log.Info().Int("cards", len(client.Board().Cards())).Msg("stopped")
		return nil
	case <-client.Done():
		return errGaveUp
	}
}

// logActivity logs every client event and returns a func that stops it.
func logActivity(c *collab.Client) func() {
	ev := c.Events()
	unsubs := []func(){
		ev.StateChanged.Subscribe(func(s collab.State) {
			log.Debug().Stringer("state", s).Msg("state changed")
		}),
		ev.Connected.Subscribe(func(struct{}) {
			log.Info().Msg("connected")
		}),
		ev.Reconnected.Subscribe(func(struct{}) {
			log.Info().Msg("reconnected")
		}),
		ev.Disconnected.Subscribe(func(d collab.Disconnect) {
			log.Warn().Err(d.Err).Bool("retrying", d.Retrying).Msg("disconnected")
		}),
		ev.UserJoined.Subscribe(func(connID string) {
			log.Info().Str("conn_id", connID).Msg("user joined")
		}),
		ev.UserLeft.Subscribe(func(connID string) {
			log.Info().Str("conn_id", connID).Msg("user left")
		}),
		ev.RemoteCardCreated.Subscribe(func(card protocol.Card) {
			log.Info().Str("card_id", card.ID).Str("title", card.Title).Str("by", card.UserID).Msg("card created")
		}),
		ev.RemoteCardUpdated.Subscribe(func(card protocol.Card) {
			log.Info().Str("card_id", card.ID).Str("title", card.Title).Str("by", card.UserID).Msg("card updated")
		}),
		ev.RemoteCardDeleted.Subscribe(func(cardID string) {
			log.Info().Str("card_id", cardID).Msg("card deleted")
		}),
		ev.RemoteCardPositionUpdate.Subscribe(func(pos protocol.CardPosition) {
			log.Debug().Str("card_id", pos.CardID).Float64("x", pos.X).Float64("y", pos.Y).Msg("card moved")
		}),
		ev.CursorMoved.Subscribe(func(m collab.CursorMarker) {
			log.Trace().Str("user_id", m.UserID).Float64("x", m.X).Float64("y", m.Y).Msg("cursor")
		}),
		ev.CursorHidden.Subscribe(func(m collab.CursorMarker) {
			log.Debug().Str("user_id", m.UserID).Msg("cursor idle")
		}),
		ev.TypingChanged.Subscribe(func(tc collab.TypingChange) {
			log.Debug().Str("user_id", tc.Key.UserID).Str("card_id", tc.Key.CardID).
				Str("field", tc.Key.FieldType).Bool("active", tc.Active).Msg("typing")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
