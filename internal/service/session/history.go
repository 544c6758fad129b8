package session

import "github.com/zhouzirui/clanker/backend/internal/model/chat"

// History is a fixed-capacity FIFO of conversation turns. When full, appending
// evicts the oldest turn.
type History struct {
	turns []chat.Turn
	head  int
	size  int
}

// NewHistory returns an empty history holding at most capacity turns.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{turns: make([]chat.Turn, capacity)}
}

// Append adds a turn, dropping the oldest one when the history is full.
func (h *History) Append(turn chat.Turn) {
	idx := (h.head + h.size) % len(h.turns)
	if h.size == len(h.turns) {
		h.turns[h.head] = turn
		h.head = (h.head + 1) % len(h.turns)
		return
	}
	h.turns[idx] = turn
	h.size++
}

// AppendUser appends a user turn.
func (h *History) AppendUser(text string) { h.Append(chat.UserTurn(text)) }

// AppendModel appends a model turn.
func (h *History) AppendModel(text string) { h.Append(chat.ModelTurn(text)) }

// AppendSystem appends a system turn.
func (h *History) AppendSystem(text string) { h.Append(chat.SystemTurn(text)) }

// Len returns the number of stored turns.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of stored turns.
func (h *History) Cap() int { return len(h.turns) }

// Snapshot copies the turns oldest first. The copy is safe to hand to a worker.
func (h *History) Snapshot() []chat.Turn {
	out := make([]chat.Turn, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.turns[(h.head+i)%len(h.turns)]
	}
	return out
}
