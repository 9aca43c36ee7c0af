package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/pinboard/internal/domain"
	"github.com/gosuda/pinboard/internal/server/middleware"
)

type CreateBoardInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"120" doc:"Board name"`
	}
}

type BoardOutput struct {
	Body *domain.Board
}

type ListBoardsInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"50" doc:"Page size"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
}

type ListBoardsOutput struct {
	Body []*domain.Board
}

type BoardIDInput struct {
	ID uuid.UUID `path:"id" doc:"Board ID"`
}

type RenameBoardInput struct {
	ID   uuid.UUID `path:"id" doc:"Board ID"`
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"120" doc:"Board name"`
	}
}

func RegisterBoardRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-board",
		Method:        http.MethodPost,
		Path:          "/boards",
		Summary:       "Create a board",
		Tags:          []string{"Boards"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateBoardInput) (*BoardOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		b, err := domain.NewBoard(userID, input.Body.Name)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		err = store.Boards().Create(ctx, b)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to create board", err)
		}

		return &BoardOutput{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-boards",
		Method:      http.MethodGet,
		Path:        "/boards",
		Summary:     "List the caller's boards",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *ListBoardsInput) (*ListBoardsOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		boards, err := store.Boards().ListByOwner(ctx, userID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list boards", err)
		}
		if boards == nil {
			boards = []*domain.Board{}
		}

		return &ListBoardsOutput{Body: boards}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{id}",
		Summary:     "Get a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *BoardIDInput) (*BoardOutput, error) {
		b, err := store.Boards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, boardError(err, "failed to get board")
		}

		return &BoardOutput{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-board",
		Method:      http.MethodPut,
		Path:        "/boards/{id}",
		Summary:     "Rename a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *RenameBoardInput) (*BoardOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		b, err := store.Boards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, boardError(err, "failed to get board")
		}

		err = b.Rename(userID, input.Body.Name)
		if err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				return nil, huma.Error403Forbidden("only the owner may rename a board")
			}
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		err = store.Boards().Update(ctx, b)
		if err != nil {
			return nil, boardError(err, "failed to update board")
		}

		return &BoardOutput{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-board",
		Method:        http.MethodDelete,
		Path:          "/boards/{id}",
		Summary:       "Delete a board and its cards",
		Tags:          []string{"Boards"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *BoardIDInput) (*struct{}, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		b, err := store.Boards().GetByID(ctx, input.ID)
		if err != nil {
			return nil, boardError(err, "failed to get board")
		}
		if b.OwnerID != userID {
			return nil, huma.Error403Forbidden("only the owner may delete a board")
		}

		err = store.Boards().Delete(ctx, input.ID)
		if err != nil {
			return nil, boardError(err, "failed to delete board")
		}

		return nil, nil
	})
}

func boardError(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound("board not found")
	}
	return huma.Error500InternalServerError(msg, err)
}
