package v1

import (
	"context"

	"github.com/gosuda/pinboard/internal/domain"
	"github.com/gosuda/pinboard/internal/protocol"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Boards() domain.BoardRepository
	Cards() domain.CardRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Notifier pushes persisted card changes to the board's live members.
// *relay.Relay satisfies this interface.
type Notifier interface {
	Broadcast(senderID, roomID string, event protocol.Event, payload any) error
}
