package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pinboard/internal/domain"
	"github.com/gosuda/pinboard/internal/protocol"
	"github.com/gosuda/pinboard/internal/server/middleware"
)

type CardFields struct {
	Title   string   `json:"title" maxLength:"200" doc:"Card title"`
	Content string   `json:"content,omitempty" doc:"Card body"`
	Color   string   `json:"color,omitempty" doc:"Background color as #rrggbb"`
	X       float64  `json:"x,omitempty" doc:"Horizontal position on the board"`
	Y       float64  `json:"y,omitempty" doc:"Vertical position on the board"`
	Tags    []string `json:"tags,omitempty" maxItems:"20" doc:"Tags"`
}

type CreateCardInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	Body    CardFields
}

type ListCardsInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
	Tag     string    `query:"tag" doc:"Only return cards carrying this tag"`
}

type ListCardsOutput struct {
	Body []*domain.Card
}

type CardOutput struct {
	Body *domain.Card
}

type CardIDInput struct {
	ID uuid.UUID `path:"id" doc:"Card ID"`
}

type UpdateCardInput struct {
	ID   uuid.UUID `path:"id" doc:"Card ID"`
	Body CardFields
}

type MoveCardInput struct {
	ID   uuid.UUID `path:"id" doc:"Card ID"`
	Body struct {
		X float64 `json:"x" doc:"Horizontal position on the board"`
		Y float64 `json:"y" doc:"Vertical position on the board"`
	}
}

// RegisterCardRoutes wires card CRUD. Every successful mutation is pushed to
// the card's board room through notifier, which may be nil.
func RegisterCardRoutes(api huma.API, store DataStore, notifier Notifier) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-card",
		Method:        http.MethodPost,
		Path:          "/boards/{boardID}/cards",
		Summary:       "Create a card on a board",
		Tags:          []string{"Cards"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateCardInput) (*CardOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		_, err := store.Boards().GetByID(ctx, input.BoardID)
		if err != nil {
			return nil, boardError(err, "failed to get board")
		}

		f := input.Body
		c, err := domain.NewCard(input.BoardID, userID, f.Title, f.Content, f.Color, f.X, f.Y, f.Tags)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		err = store.Cards().Create(ctx, c)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to create card", err)
		}

		notify(notifier, c.BoardID, protocol.EventCardCreated, cardPayload(c, userID))
		return &CardOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cards",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/cards",
		Summary:     "List a board's cards",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *ListCardsInput) (*ListCardsOutput, error) {
		_, err := store.Boards().GetByID(ctx, input.BoardID)
		if err != nil {
			return nil, boardError(err, "failed to get board")
		}

		var tag string
		if tags := domain.NormalizeTags([]string{input.Tag}); len(tags) == 1 {
			tag = tags[0]
		}

		cards, err := store.Cards().ListByBoard(ctx, input.BoardID, tag)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list cards", err)
		}
		if cards == nil {
			cards = []*domain.Card{}
		}

		return &ListCardsOutput{Body: cards}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-card",
		Method:      http.MethodGet,
		Path:        "/cards/{id}",
		Summary:     "Get a card",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *CardIDInput) (*CardOutput, error) {
		c, err := store.Cards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, cardError(err, "failed to get card")
		}

		return &CardOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-card",
		Method:      http.MethodPut,
		Path:        "/cards/{id}",
		Summary:     "Replace a card's content",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *UpdateCardInput) (*CardOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		c, err := store.Cards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, cardError(err, "failed to get card")
		}

		f := input.Body
		err = c.Edit(f.Title, f.Content, f.Color, f.Tags)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		c.X, c.Y = f.X, f.Y

		err = store.Cards().Update(ctx, c)
		if err != nil {
			return nil, cardError(err, "failed to update card")
		}

		notify(notifier, c.BoardID, protocol.EventCardUpdated, cardPayload(c, userID))
		return &CardOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-card",
		Method:      http.MethodPatch,
		Path:        "/cards/{id}/position",
		Summary:     "Move a card",
		Tags:        []string{"Cards"},
	}, func(ctx context.Context, input *MoveCardInput) (*CardOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		c, err := store.Cards().UpdatePosition(ctx, input.ID, input.Body.X, input.Body.Y)
		if err != nil {
			return nil, cardError(err, "failed to move card")
		}

		notify(notifier, c.BoardID, protocol.EventCardPositionUpdate, protocol.CardPosition{
			CardID:  c.ID.String(),
			X:       c.X,
			Y:       c.Y,
			BoardID: c.BoardID.String(),
			UserID:  userID.String(),
		})
		return &CardOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-card",
		Method:        http.MethodDelete,
		Path:          "/cards/{id}",
		Summary:       "Delete a card",
		Tags:          []string{"Cards"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CardIDInput) (*struct{}, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		c, err := store.Cards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, cardError(err, "failed to get card")
		}

		err = store.Cards().Delete(ctx, input.ID)
		if err != nil {
			return nil, cardError(err, "failed to delete card")
		}

		notify(notifier, c.BoardID, protocol.EventCardDeleted, protocol.CardDeleted{
			CardID:  c.ID.String(),
			BoardID: c.BoardID.String(),
			UserID:  userID.String(),
		})
		return nil, nil
	})
}

func cardPayload(c *domain.Card, editor uuid.UUID) protocol.Card {
	return protocol.Card{
		ID:        c.ID.String(),
		BoardID:   c.BoardID.String(),
		Title:     c.Title,
		Content:   c.Content,
		Color:     c.Color,
		X:         c.X,
		Y:         c.Y,
		Tags:      c.Tags,
		UserID:    editor.String(),
		UpdatedAt: c.UpdatedAt.UnixMilli(),
	}
}

// notify broadcasts to every member of the board room. Failures are logged;
// the mutation itself has already been persisted.
func notify(n Notifier, boardID uuid.UUID, event protocol.Event, payload any) {
	if n == nil {
		return
	}
	err := n.Broadcast("", boardID.String(), event, payload)
	if err != nil {
		log.Warn().Err(err).Str("event", string(event)).Str("board_id", boardID.String()).Msg("v1: broadcast failed")
	}
}

func cardError(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound("card not found")
	}
	return huma.Error500InternalServerError(msg, err)
}
