package service

import "ragchat/internal/domain"

// Window keeps the most recent turns, evicting the oldest first.
type Window struct {
	size  int
	turns []domain.Turn
}

func NewWindow(size int) *Window {
	if size < 0 {
		size = 0
	}
	return &Window{size: size, turns: make([]domain.Turn, 0, size)}
}

func (w *Window) Push(turn domain.Turn) {
	if w.size == 0 {
		return
	}
	if len(w.turns) == w.size {
		copy(w.turns, w.turns[1:])
		w.turns = w.turns[:len(w.turns)-1]
	}
	w.turns = append(w.turns, turn)
}

// Turns returns a copy, oldest first.
func (w *Window) Turns() []domain.Turn {
	out := make([]domain.Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

func (w *Window) Len() int { return len(w.turns) }
