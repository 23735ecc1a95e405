package relay

import (
	"time"

	"github.com/dkeye/remoterg/internal/domain"
)

// Session is the in-memory record of one relay session. Functions over it
// are pure: they return a new value instead of mutating.
type Session struct {
	ID     domain.SessionID
	TTL    time.Duration
	Host   Endpoint
	Viewer Endpoint
}

func NewSession(id domain.SessionID, ttl time.Duration) Session {
	return Session{ID: id, TTL: ttl}
}

// Slot returns the endpoint occupying role, or nil.
func (s Session) Slot(role domain.Role) Endpoint {
	switch role {
	case domain.RoleHost:
		return s.Host
	case domain.RoleViewer:
		return s.Viewer
	}
	return nil
}

func (s Session) Occupied(role domain.Role) bool {
	return s.Slot(role) != nil
}

func (s Session) withSlot(role domain.Role, ep Endpoint) Session {
	switch role {
	case domain.RoleHost:
		s.Host = ep
	case domain.RoleViewer:
		s.Viewer = ep
	}
	return s
}

// Assign puts ep into the role slot. The previous occupant, if it is a
// different endpoint, is returned so the caller can evict it.
func Assign(s Session, role domain.Role, ep Endpoint) (Session, Endpoint) {
	prev := s.Slot(role)
	s = s.withSlot(role, ep)
	if prev == ep {
		return s, nil
	}
	return s, prev
}

// Release empties the role slot only if ep is still its occupant.
func Release(s Session, role domain.Role, ep Endpoint) (Session, bool) {
	if ep == nil || s.Slot(role) != ep {
		return s, false
	}
	return s.withSlot(role, nil), true
}
