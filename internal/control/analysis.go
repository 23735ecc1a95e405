package control

import (
	"strings"
	"sync"
)

// Analysis accumulates streamed analysis responses per request id.
type Analysis struct {
	mu      sync.Mutex
	pending map[string]*strings.Builder
}

func NewAnalysis() *Analysis {
	return &Analysis{pending: make(map[string]*strings.Builder)}
}

// Chunk appends delta and returns the text accumulated so far.
func (a *Analysis) Chunk(id, delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.pending[id]
	if !ok {
		b = &strings.Builder{}
		a.pending[id] = b
	}
	b.WriteString(delta)
	return b.String()
}

// Done ends a streamed response and returns the full text. ok is false
// when no chunk was seen for id.
func (a *Analysis) Done(id string) (text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.pending[id]
	if !ok {
		return "", false
	}
	delete(a.pending, id)
	return b.String(), true
}

// Complete records a non-streamed response, dropping any partial text.
func (a *Analysis) Complete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
}

func (a *Analysis) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
