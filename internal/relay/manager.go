package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/domain"
)

type entry struct {
	hub   *Hub
	relay *Relay // nil while suspended
}

// Manager hosts the relays of every session, keyed by session id.
type Manager struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*entry
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

func NewManager(ttl time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[domain.SessionID]*entry),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Status is a read-only view of one session for APIs.
type Status struct {
	SessionID domain.SessionID `json:"session_id"`
	Host      bool             `json:"host"`
	Viewer    bool             `json:"viewer"`
	Suspended bool             `json:"suspended"`
	Endpoints int              `json:"endpoints"`
}

// Relay returns the live relay for id, cold-starting it when the session is
// new or suspended. A cold start always runs Recover before the relay is
// handed out.
func (m *Manager) Relay(id domain.SessionID) *Relay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.relayLocked(id)
}

func (m *Manager) relayLocked(id domain.SessionID) *Relay {
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{hub: NewHub()}
		m.sessions[id] = e
	}
	if e.relay == nil {
		r := New(id, m.ttl, e.hub, m.logger)
		r.now = m.now
		r.Recover()
		e.relay = r
		m.logger.Info().Str("module", "relay.manager").Str("session_id", string(id)).Msg("relay started")
	}
	e.relay.keepAlive()
	return e.relay
}

// Attach registers an accepted endpoint with the session and binds it to
// role. The endpoint carries its attachment before it joins the hub, so a
// relay recovering in between still sees a valid identity.
func (m *Manager) Attach(id domain.SessionID, role domain.Role, ep Endpoint) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	att, err := domain.EncodeAttachment(domain.NewAttachment(role, id))
	if err != nil {
		return err
	}
	ep.SetAttachment(att)

	m.mu.Lock()
	r := m.relayLocked(id)
	m.sessions[id].hub.Add(ep)
	m.mu.Unlock()
	return r.Upgrade(role, ep)
}

func (m *Manager) Message(id domain.SessionID, ep Endpoint, raw []byte) {
	m.Relay(id).OnMessage(ep, raw)
}

// Detach removes a closed endpoint from the session.
func (m *Manager) Detach(id domain.SessionID, ep Endpoint, code int, reason string) {
	r, ok := m.remove(id, ep)
	if !ok {
		return
	}
	r.OnClose(ep, code, reason)
}

func (m *Manager) Fault(id domain.SessionID, ep Endpoint, err error) {
	r, ok := m.remove(id, ep)
	if !ok {
		return
	}
	r.OnError(ep, err)
}

func (m *Manager) remove(id domain.SessionID, ep Endpoint) (*Relay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.hub.Remove(ep)
	return m.relayLocked(id), true
}

// Suspend drops the in-memory relay of id while its endpoints stay open.
func (m *Manager) Suspend(id domain.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.relay == nil {
		return false
	}
	e.relay = nil
	m.logger.Info().Str("module", "relay.manager").Str("session_id", string(id)).Msg("relay suspended")
	return true
}

// Sweep suspends relays idle for longer than the ttl and forgets suspended
// sessions that have no endpoints left.
func (m *Manager) Sweep() (suspended, forgotten int) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.relay != nil && now.Sub(e.relay.LastActive()) > m.ttl {
			e.relay = nil
			suspended++
			m.logger.Info().Str("module", "relay.manager").Str("session_id", string(id)).Msg("idle relay suspended")
		}
		if e.relay == nil && len(e.hub.Endpoints()) == 0 {
			delete(m.sessions, id)
			forgotten++
		}
	}
	return suspended, forgotten
}

// Run sweeps every period until ctx is done.
func (m *Manager) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, f := m.Sweep(); s > 0 || f > 0 {
				m.logger.Debug().Str("module", "relay.manager").Int("suspended", s).Int("forgotten", f).Msg("sweep")
			}
		}
	}
}

func (m *Manager) Status(id domain.SessionID) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Status{}, false
	}
	st := Status{SessionID: id, Suspended: e.relay == nil, Endpoints: e.hub.Len()}
	if e.relay != nil {
		s := e.relay.Session()
		st.Host, st.Viewer = s.Host != nil, s.Viewer != nil
	}
	return st, true
}
