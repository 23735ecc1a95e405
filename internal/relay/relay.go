package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/domain"
)

var ErrSessionMismatch = errors.New("session id mismatch")

// Relay is the per-session actor. Events are serialized by mu; each slot
// write is a single replace through Assign or Release.
type Relay struct {
	mu         sync.Mutex
	session    Session
	source     EndpointSource
	lastActive time.Time
	now        func() time.Time
	logger     zerolog.Logger
}

func New(id domain.SessionID, ttl time.Duration, source EndpointSource, logger zerolog.Logger) *Relay {
	r := &Relay{
		session: NewSession(id, ttl),
		source:  source,
		now:     time.Now,
		logger:  logger.With().Str("module", "relay").Str("session_id", string(id)).Logger(),
	}
	r.lastActive = r.now()
	return r
}

// Upgrade binds an accepted endpoint to role. The newest connection for a
// role always wins: the previous occupant is closed.
func (r *Relay) Upgrade(role domain.Role, ep Endpoint) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	att, err := domain.EncodeAttachment(domain.NewAttachment(role, r.session.ID))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()

	ep.SetAttachment(att)
	var evicted Endpoint
	r.session, evicted = Assign(r.session, role, ep)
	if evicted != nil {
		r.logger.Warn().Str("role", string(role)).Str("evicted", evicted.ID()).Str("endpoint", ep.ID()).
			Msg("duplicate role connection, evicting previous endpoint")
		evicted.Close(CloseNormal, ReasonReplaced)
	}
	r.logger.Info().Str("role", string(role)).Str("endpoint", ep.ID()).Msg("endpoint attached")
	return nil
}

// OnMessage forwards raw to the opposite role. Delivery is at-most-once:
// when the peer slot is empty or not open the message is dropped.
func (r *Relay) OnMessage(ep Endpoint, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()

	att, ok := r.identify(ep)
	if !ok {
		return
	}
	target, out, err := Route(att.Role, r.session.ID, raw)
	if err != nil {
		r.logger.Warn().Err(err).Str("role", string(att.Role)).Msg("dropping unroutable message")
		return
	}
	peer := r.session.Slot(target)
	if peer == nil || !peer.IsOpen() {
		r.logger.Warn().Str("from", string(att.Role)).Str("to", string(target)).Msg("peer not connected, message dropped")
		return
	}
	if err := peer.Send(out); err != nil {
		r.logger.Warn().Err(err).Str("to", string(target)).Str("endpoint", peer.ID()).Msg("forward failed, message dropped")
		return
	}
	r.logger.Debug().Str("from", string(att.Role)).Str("to", string(target)).Int("bytes", len(out)).Msg("forwarded")
}

// OnClose clears whichever slot ep still occupies. An evicted endpoint
// closing late never clobbers its successor.
func (r *Relay) OnClose(ep Endpoint, code int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()

	for _, role := range domain.Roles {
		var cleared bool
		r.session, cleared = Release(r.session, role, ep)
		if cleared {
			r.logger.Info().Str("role", string(role)).Str("endpoint", ep.ID()).Int("code", code).Str("reason", reason).
				Msg("endpoint closed, slot cleared")
			return
		}
	}
	r.logger.Debug().Str("endpoint", ep.ID()).Int("code", code).Msg("closed endpoint held no slot")
}

func (r *Relay) OnError(ep Endpoint, err error) {
	r.logger.Warn().Err(err).Str("endpoint", ep.ID()).Msg("endpoint error")
	r.OnClose(ep, 0, "error")
}

// Session returns a copy of the current session record.
func (r *Relay) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Relay) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

func (r *Relay) touch() { r.lastActive = r.now() }

func (r *Relay) keepAlive() {
	r.mu.Lock()
	r.touch()
	r.mu.Unlock()
}

// identify resolves the role of ep from its persisted identity. Anything
// that does not resolve is treated as protocol corruption and the endpoint
// is closed. Caller holds mu.
func (r *Relay) identify(ep Endpoint) (domain.Attachment, bool) {
	att, err := domain.DecodeAttachment(ep.Attachment())
	if err != nil {
		r.logger.Error().Err(err).Str("endpoint", ep.ID()).Msg("unresolvable endpoint identity, closing")
		ep.Close(CloseNormal, ReasonInvalidAttachment)
		r.session, _ = Release(r.session, domain.RoleHost, ep)
		r.session, _ = Release(r.session, domain.RoleViewer, ep)
		return domain.Attachment{}, false
	}
	if att.SessionID != r.session.ID {
		r.logger.Error().Err(ErrSessionMismatch).Str("endpoint", ep.ID()).Str("attached", string(att.SessionID)).
			Msg("endpoint bound to another session, closing")
		ep.Close(CloseNormal, ReasonSessionMismatch)
		r.session, _ = Release(r.session, att.Role, ep)
		return domain.Attachment{}, false
	}
	return att, true
}
