package orch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/signaling"
)

// pumpSignaling applies inbound negotiation messages. The end of the link
// and an explicit error from the peer both end the generation.
func (o *Orchestrator) pumpSignaling(ctx context.Context, link SignalLink, tr Transport, logger zerolog.Logger) error {
	msgs := link.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return &LinkRuntimeError{Err: link.Err()}
			}
			if err := o.applySignal(ctx, m, tr, logger); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) applySignal(ctx context.Context, m signaling.Message, tr Transport, logger zerolog.Logger) error {
	switch m.Type {
	case signaling.TypeAnswer:
		if err := tr.SetAnswer(ctx, m.SDP); err != nil {
			logger.Warn().Err(&NegotiationError{Op: "set answer", Err: err}).Msg("answer not applied")
			return nil
		}
		logger.Info().Str("negotiation_id", m.NegotiationID).Msg("answer applied")
	case signaling.TypeICECandidate:
		if err := tr.AddICECandidate(m.AsCandidate()); err != nil {
			logger.Warn().Err(&NegotiationError{Op: "add candidate", Err: err}).Msg("candidate not applied")
		}
	case signaling.TypeError:
		return &PeerError{Message: m.Message}
	default:
		logger.Debug().Str("type", m.Type).Msg("ignoring signaling message")
	}
	return nil
}

// pumpCandidates trickles local ICE candidates to the peer.
func (o *Orchestrator) pumpCandidates(ctx context.Context, link SignalLink, tr Transport) error {
	cands := tr.LocalCandidates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-cands:
			if !ok {
				return nil
			}
			if err := link.Send(ctx, signaling.ICECandidate(c)); err != nil {
				return &LinkRuntimeError{Err: err}
			}
		}
	}
}

func (o *Orchestrator) observeConnection(ctx context.Context, gen uint64, tr Transport, logger zerolog.Logger) error {
	states := tr.ConnectionStates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-states:
			if !ok {
				return &TransportError{State: StateClosed}
			}
			logger.Info().Str("state", string(s)).Msg("connection state")
			o.update(gen, func(st *State) {
				st.Connection = s
				if s == StateConnected {
					st.Status = StatusConnected
				}
			})
			if s.Terminal() {
				return &TransportError{State: s}
			}
		}
	}
}

func (o *Orchestrator) observeICE(ctx context.Context, gen uint64, tr Transport, logger zerolog.Logger) error {
	states := tr.ICEStates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-states:
			if !ok {
				return nil
			}
			logger.Debug().Str("state", string(s)).Msg("ice state")
			o.update(gen, func(st *State) { st.ICE = s })
		}
	}
}
