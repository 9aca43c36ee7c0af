package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxBoardNameLen = 120

type Board struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBoard creates a Board with validated required fields.
func NewBoard(ownerID uuid.UUID, name string) (*Board, error) {
	if ownerID == uuid.Nil {
		return nil, errors.New("board: owner ID is required")
	}
	name, err := boardName(name)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Board{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Rename changes the board name on behalf of userID. Only the owner may
// rename a board.
func (b *Board) Rename(userID uuid.UUID, name string) error {
	if userID != b.OwnerID {
		return ErrForbidden
	}
	name, err := boardName(name)
	if err != nil {
		return err
	}
	b.Name = name
	b.UpdatedAt = time.Now()
	return nil
}

func boardName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("board: name is required")
	}
	if len(name) > maxBoardNameLen {
		return "", errors.New("board: name is too long")
	}
	return name, nil
}

type BoardRepository interface {
	Create(ctx context.Context, b *Board) error
	GetByID(ctx context.Context, id uuid.UUID) (*Board, error)
	Update(ctx context.Context, b *Board) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Board, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
