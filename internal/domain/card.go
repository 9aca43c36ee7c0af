package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCardColor is the sticky-note yellow used when no color is given.
const DefaultCardColor = "#fff59d"

const (
	maxCardTitleLen = 200
	maxCardTags     = 20
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type Card struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"boardId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Tags      []string  `json:"tags"`
	CreatedBy uuid.UUID `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ModifiedAt is the last-writer-wins version of the card.
func (c Card) ModifiedAt() time.Time { return c.UpdatedAt }

// NewCard creates a Card with validated fields and defaults.
func NewCard(boardID, createdBy uuid.UUID, title, content, color string, x, y float64, tags []string) (*Card, error) {
	if boardID == uuid.Nil {
		return nil, errors.New("card: board ID is required")
	}
	if createdBy == uuid.Nil {
		return nil, errors.New("card: creator is required")
	}
	c := &Card{
		ID:        uuid.New(),
		BoardID:   boardID,
		CreatedBy: createdBy,
		X:         x,
		Y:         y,
	}
	if err := c.Edit(title, content, color, tags); err != nil {
		return nil, err
	}
	c.CreatedAt = c.UpdatedAt
	return c, nil
}

// Edit replaces the card's text fields, color and tags.
func (c *Card) Edit(title, content, color string, tags []string) error {
	title = strings.TrimSpace(title)
	if len(title) > maxCardTitleLen {
		return errors.New("card: title is too long")
	}
	if color == "" {
		color = DefaultCardColor
	}
	if !colorPattern.MatchString(color) {
		return errors.New("card: color must be #rrggbb")
	}
	tags = NormalizeTags(tags)
	if len(tags) > maxCardTags {
		return errors.New("card: too many tags")
	}

	c.Title = title
	c.Content = content
	c.Color = strings.ToLower(color)
	c.Tags = tags
	c.UpdatedAt = time.Now()
	return nil
}

// Move sets the card position.
func (c *Card) Move(x, y float64) {
	c.X, c.Y = x, y
	c.UpdatedAt = time.Now()
}

// HasTag reports whether the card carries tag, compared after normalization.
func (c *Card) HasTag(tag string) bool {
	tag = normalizeTag(tag)
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags lower-cases and trims tags, dropping blanks and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

type CardRepository interface {
	Create(ctx context.Context, c *Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)
	Update(ctx context.Context, c *Card) error
	UpdatePosition(ctx context.Context, id uuid.UUID, x, y float64) (*Card, error)
	// ListByBoard returns the board's cards; a non-empty tag filters them.
	ListByBoard(ctx context.Context, boardID uuid.UUID, tag string) ([]*Card, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
