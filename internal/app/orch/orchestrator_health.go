package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/app/queue"
)

// pollHealth samples transport statistics. A failed sample is logged and
// the next tick tries again.
func (o *Orchestrator) pollHealth(ctx context.Context, gen uint64, tr Transport, logger zerolog.Logger) error {
	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, err := tr.Stats(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn().Err(err).Msg("stats sample failed")
				continue
			}
			o.update(gen, func(s *State) { s.Health = st })
			if o.cb.OnHealth != nil {
				o.cb.OnHealth(st)
			}
		}
	}
}

// injectFaults breaks the link or the transport on request so recovery
// paths can be exercised.
func (o *Orchestrator) injectFaults(ctx context.Context, cmds *Commands, link SignalLink, tr Transport, logger zerolog.Logger) error {
	for {
		f, err := cmds.Faults.Take(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		logger.Warn().Str("fault", string(f)).Msg("injecting fault")
		switch f {
		case FaultSignaling:
			err = link.Close()
		case FaultTransport:
			err = tr.Close()
		}
		if err != nil {
			logger.Warn().Err(err).Str("fault", string(f)).Msg("fault injection")
		}
	}
}
