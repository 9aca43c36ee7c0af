package collab

import (
	"sort"
	"sync"

	"github.com/gosuda/pinboard/internal/protocol"
)

// BoardState is the client's copy of the cards on the current board:
// optimistic local edits plus whatever peers have broadcast.
type BoardState struct {
	mu    sync.RWMutex
	cards map[string]protocol.Card
}

// NewBoardState returns an empty board.
func NewBoardState() *BoardState {
	return &BoardState{cards: make(map[string]protocol.Card)}
}

// ApplyLocal records a local edit unconditionally.
func (b *BoardState) ApplyLocal(card protocol.Card) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cards[card.ID] = card
}

// ApplyRemote merges a card from a peer and returns the version kept.
// applied is false when the local copy was newer.
func (b *BoardState) ApplyRemote(card protocol.Card) (kept protocol.Card, applied bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	local, ok := b.cards[card.ID]
	if !ok {
		b.cards[card.ID] = card
		return card, true
	}

	kept = Resolve(local, card)
	b.cards[card.ID] = kept
	return kept, !local.ModifiedAt().After(card.ModifiedAt())
}

// ApplyPosition moves a cached card. It reports false for unknown cards.
func (b *BoardState) ApplyPosition(pos protocol.CardPosition) (protocol.Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	card, ok := b.cards[pos.CardID]
	if !ok {
		return protocol.Card{}, false
	}
	card.X, card.Y = pos.X, pos.Y
	b.cards[pos.CardID] = card
	return card, true
}

// Remove drops a card and reports whether it was present.
func (b *BoardState) Remove(cardID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.cards[cardID]
	delete(b.cards, cardID)
	return ok
}

// Card returns the cached copy of cardID.
func (b *BoardState) Card(cardID string) (protocol.Card, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.cards[cardID]
	return c, ok
}

// Cards returns all cards ordered by id.
func (b *BoardState) Cards() []protocol.Card {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]protocol.Card, 0, len(b.cards))
	for _, c := range b.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset empties the state, e.g. when switching boards.
func (b *BoardState) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cards = make(map[string]protocol.Card)
}
