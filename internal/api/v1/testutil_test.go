package v1_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/pinboard/internal/domain"
	"github.com/gosuda/pinboard/internal/protocol"
	"github.com/gosuda/pinboard/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the authenticated user for DoCtx
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID) context.Context {
	return middleware.WithUserID(context.Background(), userID)
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	boards domain.BoardRepository
	cards  domain.CardRepository
}

func (m *mockDataStore) Boards() domain.BoardRepository { return m.boards }
func (m *mockDataStore) Cards() domain.CardRepository   { return m.cards }

// ---------------------------------------------------------------------------
// Mock BoardRepository
// ---------------------------------------------------------------------------

type mockBoardRepo struct {
	createFunc      func(ctx context.Context, b *domain.Board) error
	getByIDFunc     func(ctx context.Context, id uuid.UUID) (*domain.Board, error)
	updateFunc      func(ctx context.Context, b *domain.Board) error
	listByOwnerFunc func(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Board, error)
	deleteFunc      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockBoardRepo) Create(ctx context.Context, b *domain.Board) error {
	return m.createFunc(ctx, b)
}

func (m *mockBoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockBoardRepo) Update(ctx context.Context, b *domain.Board) error {
	return m.updateFunc(ctx, b)
}

func (m *mockBoardRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Board, error) {
	return m.listByOwnerFunc(ctx, ownerID, limit, offset)
}

func (m *mockBoardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// boardFound returns a getByIDFunc that always yields b.
func boardFound(b *domain.Board) func(context.Context, uuid.UUID) (*domain.Board, error) {
	return func(_ context.Context, _ uuid.UUID) (*domain.Board, error) {
		cp := *b
		return &cp, nil
	}
}

// ---------------------------------------------------------------------------
// Mock CardRepository
// ---------------------------------------------------------------------------

type mockCardRepo struct {
	createFunc         func(ctx context.Context, c *domain.Card) error
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*domain.Card, error)
	updateFunc         func(ctx context.Context, c *domain.Card) error
	updatePositionFunc func(ctx context.Context, id uuid.UUID, x, y float64) (*domain.Card, error)
	listByBoardFunc    func(ctx context.Context, boardID uuid.UUID, tag string) ([]*domain.Card, error)
	deleteFunc         func(ctx context.Context, id uuid.UUID) error
}

func (m *mockCardRepo) Create(ctx context.Context, c *domain.Card) error {
	return m.createFunc(ctx, c)
}

func (m *mockCardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockCardRepo) Update(ctx context.Context, c *domain.Card) error {
	return m.updateFunc(ctx, c)
}

func (m *mockCardRepo) UpdatePosition(ctx context.Context, id uuid.UUID, x, y float64) (*domain.Card, error) {
	return m.updatePositionFunc(ctx, id, x, y)
}

func (m *mockCardRepo) ListByBoard(ctx context.Context, boardID uuid.UUID, tag string) ([]*domain.Card, error) {
	return m.listByBoardFunc(ctx, boardID, tag)
}

func (m *mockCardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, email, password, name string) (*domain.User, error)
	loginFunc        func(ctx context.Context, email, password string) (string, string, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	return m.registerFunc(ctx, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

// ---------------------------------------------------------------------------
// Recording Notifier
// ---------------------------------------------------------------------------

type broadcast struct {
	sender  string
	room    string
	event   protocol.Event
	payload any
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []broadcast
}

func (n *recordingNotifier) Broadcast(senderID, roomID string, event protocol.Event, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, broadcast{sender: senderID, room: roomID, event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) sent() []broadcast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]broadcast(nil), n.calls...)
}
