package protocol

import "time"

// BoardRef is the payload of join-board and leave-board.
type BoardRef struct {
	BoardID string `json:"boardId"`
}

// Cursor is the payload of cursor-update. Timestamp is unix milliseconds.
type Cursor struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	BoardID   string  `json:"boardId"`
	UserID    string  `json:"userId"`
	Timestamp int64   `json:"timestamp"`
}

// Typing is the payload of typing-start and typing-stop.
type Typing struct {
	CardID    string `json:"cardId"`
	FieldType string `json:"fieldType"`
	BoardID   string `json:"boardId"`
	UserID    string `json:"userId"`
}

// CardPosition is the payload of card-position-update.
type CardPosition struct {
	CardID  string  `json:"cardId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	BoardID string  `json:"boardId"`
	UserID  string  `json:"userId"`
}

// Card is the payload of card-created and card-updated. It is a full or
// partial copy of the persisted card; UpdatedAt is unix milliseconds.
type Card struct {
	ID        string   `json:"id"`
	BoardID   string   `json:"boardId"`
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content,omitempty"`
	Color     string   `json:"color,omitempty"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Tags      []string `json:"tags,omitempty"`
	UserID    string   `json:"userId"`
	UpdatedAt int64    `json:"updatedAt"`
}

// ModifiedAt implements the resolver's versioning contract.
func (c Card) ModifiedAt() time.Time { return time.UnixMilli(c.UpdatedAt) }

// CardDeleted is the payload of card-deleted.
type CardDeleted struct {
	CardID  string `json:"cardId"`
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
}

// Member is the payload of user-joined and user-left.
type Member struct {
	ConnectionID string `json:"connectionId"`
	BoardID      string `json:"boardId,omitempty"`
}
