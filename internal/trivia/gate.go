package trivia

import (
	"fmt"
	"sync/atomic"
)

// Gate decides which of the events racing on a question gets to resolve it:
// a correct answer, another correct answer or the question timer.
//
// The gate remembers the turn of the open question so that an event raised for
// an older question can never resolve a newer one.
type Gate struct {
	open atomic.Int64 // turn of the open question, 0 when closed
}

// Open marks the question of turn as unresolved. Opening a gate that is still open
// is a logic error.
func (g *Gate) Open(turn int) {
	if turn <= 0 {
		panic(fmt.Sprintf("trivia: open gate with invalid turn %d", turn))
	}
	if !g.open.CompareAndSwap(0, int64(turn)) {
		panic(fmt.Sprintf("trivia: open gate for turn %d while turn %d is still open", turn, g.open.Load()))
	}
}

// TryClose closes the gate of turn. Exactly one caller gets true per opened question.
func (g *Gate) TryClose(turn int) bool {
	return turn > 0 && g.open.CompareAndSwap(int64(turn), 0)
}

// IsOpen reports whether the question of turn is still unresolved.
func (g *Gate) IsOpen(turn int) bool {
	return turn > 0 && g.open.Load() == int64(turn)
}

// Close closes the gate whatever question is open.
func (g *Gate) Close() {
	g.open.Store(0)
}
