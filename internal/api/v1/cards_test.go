package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/pinboard/internal/api/v1"
	"github.com/gosuda/pinboard/internal/domain"
	"github.com/gosuda/pinboard/internal/protocol"
)

func fixtureCard(boardID uuid.UUID) *domain.Card {
	now := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	return &domain.Card{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     "Ship it",
		Color:     domain.DefaultCardColor,
		X:         10,
		Y:         20,
		Tags:      []string{"release"},
		CreatedBy: uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func cardFound(c *domain.Card) func(context.Context, uuid.UUID) (*domain.Card, error) {
	return func(_ context.Context, _ uuid.UUID) (*domain.Card, error) {
		cp := *c
		return &cp, nil
	}
}

func notFoundCard(_ context.Context, _ uuid.UUID) (*domain.Card, error) {
	return nil, fmt.Errorf("cardRepo.GetByID: %w", domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// POST /boards/{boardID}/cards
// ---------------------------------------------------------------------------

func TestCreateCard(t *testing.T) {
	t.Parallel()

	t.Run("persists_and_broadcasts", func(t *testing.T) {
		t.Parallel()

		uid := uuid.New()
		b := fixtureBoard(uuid.New())
		var stored *domain.Card
		n := &recordingNotifier{}

		_, api := humatest.New(t)
		v1.RegisterCardRoutes(api, &mockDataStore{
			boards: &mockBoardRepo{getByIDFunc: boardFound(b)},
			cards: &mockCardRepo{
				createFunc: func(_ context.Context, c *domain.Card) error {
					stored = c
					return nil
				},
			},
		}, n)

		resp := api.PostCtx(userCtx(uid), "/boards/"+b.ID.String()+"/cards", map[string]any{
			"title": "Retro notes",
			"color": "#A0C4FF",
			"x":     120.5,
			"y":     64,
			"tags":  []string{"Ideas", "ideas", " todo "},
		})

		require.Equal(t, http.StatusCreated, resp.Code)
		require.NotNil(t, stored)
		assert.Equal(t, b.ID, stored.BoardID)
		assert.Equal(t, uid, stored.CreatedBy)
		assert.Equal(t, "#a0c4ff", stored.Color)
		assert.Equal(t, []string{"ideas", "todo"}, stored.Tags)

		calls := n.sent()
		require.Len(t, calls, 1)
		assert.Empty(t, calls[0].sender)
		assert.Equal(t, b.ID.String(), calls[0].room)
		assert.Equal(t, protocol.EventCardCreated, calls[0].event)
		payload, ok := calls[0].payload.(protocol.Card)
		require.True(t, ok)
		assert.Equal(t, stored.ID.String(), payload.ID)
		assert.Equal(t, uid.String(), payload.UserID)
		assert.Equal(t, stored.UpdatedAt.UnixMilli(), payload.UpdatedAt)
		assert.InDelta(t, 120.5, payload.X, 0)
	})

	t.Run("board_missing", func(t *testing.T) {
		t.Parallel()

		n := &recordingNotifier{}
		_, api := humatest.New(t)
		v1.RegisterCardRoutes(api, &mockDataStore{
			boards: &mockBoardRepo{
				getByIDFunc: func(_ context.Context, _ uuid.UUID) (*domain.Board, error) {
					return nil, domain.ErrNotFound
				},
			},
			cards: &mockCardRepo{},
		}, n)

		resp := api.PostCtx(userCtx(uuid.New()), "/boards/"+uuid.NewString()+"/cards", map[string]any{"title": "x"})

		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Empty(t, n.sent())
	})

	t.Run("bad_color", func(t *testing.T) {
		t.Parallel()

		b := fixtureBoard(uuid.New())
		_, api := humatest.New(t)
		v1.RegisterCardRoutes(api, &mockDataStore{
			boards: &mockBoardRepo{getByIDFunc: boardFound(b)},
			cards:  &mockCardRepo{},
		}, nil)

		resp := api.PostCtx(userCtx(uuid.New()), "/boards/"+b.ID.String()+"/cards", map[string]any{
			"title": "x",
			"color": "red",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /boards/{boardID}/cards
// ---------------------------------------------------------------------------

func TestListCards(t *testing.T) {
	t.Parallel()

	b := fixtureBoard(uuid.New())
	cards := []*domain.Card{fixtureCard(b.ID), fixtureCard(b.ID)}

	tests := []struct {
		name    string
		query   string
		wantTag string
	}{
		{name: "unfiltered", query: "", wantTag: ""},
		{name: "tag_is_normalized", query: "?tag=%20Release%20", wantTag: "release"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			v1.RegisterCardRoutes(api, &mockDataStore{
				boards: &mockBoardRepo{getByIDFunc: boardFound(b)},
				cards: &mockCardRepo{
					listByBoardFunc: func(_ context.Context, boardID uuid.UUID, tag string) ([]*domain.Card, error) {
						assert.Equal(t, b.ID, boardID)
						assert.Equal(t, tt.wantTag, tag)
						return cards, nil
					},
				},
			}, nil)

			resp := api.GetCtx(userCtx(uuid.New()), "/boards/"+b.ID.String()+"/cards"+tt.query)

			require.Equal(t, http.StatusOK, resp.Code)
			var got []domain.Card
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
			assert.Len(t, got, 2)
		})
	}
}

// ---------------------------------------------------------------------------
// GET/PUT/DELETE /cards/{id}
// ---------------------------------------------------------------------------

func TestGetCard(t *testing.T) {
	t.Parallel()

	c := fixtureCard(uuid.New())

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterCardRoutes(api, &mockDataStore{cards: &mockCardRepo{getByIDFunc: cardFound(c)}}, nil)

		resp := api.GetCtx(userCtx(uuid.New()), "/cards/"+c.ID.String())

		require.Equal(t, http.StatusOK, resp.Code)
		var got domain.Card
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, "Ship it", got.Title)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterCardRoutes(api, &mockDataStore{cards: &mockCardRepo{getByIDFunc: notFoundCard}}, nil)

		resp := api.GetCtx(userCtx(uuid.New()), "/cards/"+uuid.NewString())

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestUpdateCard(t *testing.T) {
	t.Parallel()

	uid := uuid.New()
	c := fixtureCard(uuid.New())
	var updated *domain.Card
	n := &recordingNotifier{}

	_, api := humatest.New(t)
	v1.RegisterCardRoutes(api, &mockDataStore{
		cards: &mockCardRepo{
			getByIDFunc: cardFound(c),
			updateFunc: func(_ context.Context, nc *domain.Card) error {
				updated = nc
				return nil
			},
		},
	}, n)

	resp := api.PutCtx(userCtx(uid), "/cards/"+c.ID.String(), map[string]any{
		"title":   "Shipped",
		"content": "v1.2 is out",
		"x":       300,
		"y":       40,
	})

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, updated)
	assert.Equal(t, "Shipped", updated.Title)
	assert.Equal(t, domain.DefaultCardColor, updated.Color)
	assert.InDelta(t, 300, updated.X, 0)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))

	calls := n.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, protocol.EventCardUpdated, calls[0].event)
	assert.Equal(t, c.BoardID.String(), calls[0].room)
}

func TestUpdateCard_NotFoundDoesNotBroadcast(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	_, api := humatest.New(t)
	v1.RegisterCardRoutes(api, &mockDataStore{cards: &mockCardRepo{getByIDFunc: notFoundCard}}, n)

	resp := api.PutCtx(userCtx(uuid.New()), "/cards/"+uuid.NewString(), map[string]any{"title": "x", "x": 0, "y": 0})

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, n.sent())
}

func TestMoveCard(t *testing.T) {
	t.Parallel()

	uid := uuid.New()
	c := fixtureCard(uuid.New())
	n := &recordingNotifier{}

	_, api := humatest.New(t)
	v1.RegisterCardRoutes(api, &mockDataStore{
		cards: &mockCardRepo{
			updatePositionFunc: func(_ context.Context, id uuid.UUID, x, y float64) (*domain.Card, error) {
				assert.Equal(t, c.ID, id)
				moved := *c
				moved.X, moved.Y = x, y
				return &moved, nil
			},
		},
	}, n)

	resp := api.PatchCtx(userCtx(uid), "/cards/"+c.ID.String()+"/position", map[string]any{"x": 5, "y": 7.5})

	require.Equal(t, http.StatusOK, resp.Code)

	calls := n.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, protocol.EventCardPositionUpdate, calls[0].event)
	assert.Equal(t, protocol.CardPosition{
		CardID:  c.ID.String(),
		X:       5,
		Y:       7.5,
		BoardID: c.BoardID.String(),
		UserID:  uid.String(),
	}, calls[0].payload)
}

func TestDeleteCard(t *testing.T) {
	t.Parallel()

	uid := uuid.New()
	c := fixtureCard(uuid.New())
	n := &recordingNotifier{}
	var deleted uuid.UUID

	_, api := humatest.New(t)
	v1.RegisterCardRoutes(api, &mockDataStore{
		cards: &mockCardRepo{
			getByIDFunc: cardFound(c),
			deleteFunc: func(_ context.Context, id uuid.UUID) error {
				deleted = id
				return nil
			},
		},
	}, n)

	resp := api.DeleteCtx(userCtx(uid), "/cards/"+c.ID.String())

	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, c.ID, deleted)

	calls := n.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, protocol.EventCardDeleted, calls[0].event)
	assert.Equal(t, protocol.CardDeleted{
		CardID:  c.ID.String(),
		BoardID: c.BoardID.String(),
		UserID:  uid.String(),
	}, calls[0].payload)
}
