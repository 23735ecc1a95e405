package media

import (
	"slices"
	"sync"
)

// Stream is the composite of every track received during one connection.
// Tracks are only ever appended; the Stream itself is never replaced.
type Stream struct {
	mu     sync.RWMutex
	id     string
	tracks []Track
}

func NewStream(id string) *Stream {
	return &Stream{id: id}
}

func (s *Stream) ID() string { return s.id }

// Add appends t and reports the new track count. A track already present
// (same id) is not added twice.
func (s *Stream) Add(t Track) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.tracks, func(o Track) bool { return o.ID() == t.ID() }) {
		return len(s.tracks), false
	}
	s.tracks = append(s.tracks, t)
	return len(s.tracks), true
}

func (s *Stream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tracks)
}

func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Kinds counts tracks per kind.
func (s *Stream) Kinds() map[Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Kind]int, 2)
	for _, t := range s.tracks {
		out[t.Kind()]++
	}
	return out
}
