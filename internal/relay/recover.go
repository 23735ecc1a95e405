package relay

import (
	"github.com/dkeye/remoterg/internal/domain"
)

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	Restored   []domain.Role
	Mismatched int
	Invalid    int
	Duplicates int
}

// Recover rebuilds the role slots from the live endpoints' persisted
// identities. It runs once per cold start. Endpoints bound to another
// session or carrying an unreadable identity are closed; when two
// endpoints claim one role the later one is kept. Running it twice yields
// the same slots and closes nothing more.
func (r *Relay) Recover() RecoveryReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()

	var rep RecoveryReport
	s := NewSession(r.session.ID, r.session.TTL)
	for _, ep := range r.source.Endpoints() {
		att, err := domain.DecodeAttachment(ep.Attachment())
		if err != nil {
			r.logger.Warn().Err(err).Str("endpoint", ep.ID()).Msg("recover: invalid attachment, closing")
			ep.Close(CloseNormal, ReasonInvalidAttachment)
			rep.Invalid++
			continue
		}
		if att.SessionID != s.ID {
			r.logger.Warn().Str("endpoint", ep.ID()).Str("attached", string(att.SessionID)).
				Msg("recover: session id mismatch, closing")
			ep.Close(CloseNormal, ReasonSessionMismatch)
			rep.Mismatched++
			continue
		}
		var older Endpoint
		s, older = Assign(s, att.Role, ep)
		if older != nil {
			r.logger.Warn().Str("role", string(att.Role)).Str("closed", older.ID()).Str("kept", ep.ID()).
				Msg("recover: duplicate role, keeping newest")
			older.Close(CloseNormal, ReasonDuplicateRole)
			rep.Duplicates++
		}
	}
	for _, role := range domain.Roles {
		if s.Occupied(role) {
			rep.Restored = append(rep.Restored, role)
		}
	}
	r.session = s
	r.logger.Info().Int("restored", len(rep.Restored)).Int("mismatched", rep.Mismatched).
		Int("invalid", rep.Invalid).Int("duplicates", rep.Duplicates).Msg("recovered session")
	return rep
}
