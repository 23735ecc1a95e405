package orch

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/remoterg/internal/media"
)

// aggregateMedia appends every incoming track to stream and starts a
// forwarder for the outputs configured for it.
func (o *Orchestrator) aggregateMedia(ctx context.Context, gen uint64, tr Transport, stream *media.Stream, forwarders *conc.WaitGroup, logger zerolog.Logger) error {
	tracks := tr.Tracks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-tracks:
			if !ok {
				return nil
			}
			n, added := stream.Add(t)
			if !added {
				continue
			}
			logger.Info().Str("track_id", t.ID()).Str("kind", string(t.Kind())).Str("codec", t.MimeType()).
				Int("tracks", n).Msg("track added")
			o.update(gen, func(st *State) { st.Tracks = n })
			if o.cb.OnTrack != nil {
				o.cb.OnTrack(t, stream)
			}
			o.forward(ctx, t, forwarders, logger)
		}
	}
}

func (o *Orchestrator) forward(ctx context.Context, t media.Track, forwarders *conc.WaitGroup, logger zerolog.Logger) {
	if o.cfg.Sinks == nil {
		return
	}
	outputs := o.cfg.Sinks(t)
	if len(outputs) == 0 {
		return
	}
	fw := media.NewForwarder(t, logger)
	for _, out := range outputs {
		fw.AddOutput(out)
	}
	forwarders.Go(func() {
		if err := fw.Run(ctx); err != nil {
			logger.Warn().Err(err).Str("track_id", t.ID()).Msg("forwarder stopped")
		}
	})
}
