package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/remoterg/internal/app/queue"
	"github.com/dkeye/remoterg/internal/control"
)

// controlSlot holds the generation's current control channel so the
// release action can close whichever instance is live.
type controlSlot struct {
	mu sync.Mutex
	ch ControlChannel
}

func (s *controlSlot) set(ch ControlChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
}

func (s *controlSlot) get() ControlChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *controlSlot) close() error {
	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

// controlLoop runs control channel sessions. A channel that closes before
// it ever opened ends the loop quietly; a channel lost after opening is
// replaced after ControlRetryDelay for as long as the transport is alive.
func (o *Orchestrator) controlLoop(ctx context.Context, gen uint64, tr Transport, slot *controlSlot, cmds *Commands, logger zerolog.Logger) error {
	analysis := control.NewAnalysis()
	for {
		ch := slot.get()
		if ch == nil {
			var err error
			if ch, err = tr.OpenControlChannel(o.cfg.ControlLabel); err != nil {
				logger.Warn().Err(&ControlChannelError{Err: err}).Msg("open control channel")
			} else {
				slot.set(ch)
			}
		}
		if ch != nil {
			opened, err := o.runControl(ctx, gen, ch, cmds, analysis, logger)
			_ = slot.close()
			o.update(gen, func(st *State) { st.ControlOpen = false })
			if ctx.Err() != nil {
				return nil
			}
			if !opened {
				logger.Info().Msg("control channel closed before opening")
				return nil
			}
			logger.Warn().Err(err).Dur("retry_in", o.cfg.ControlRetryDelay).Msg("control channel lost")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.cfg.ControlRetryDelay):
		}
		if !tr.Alive() {
			logger.Info().Msg("transport gone, control channel not retried")
			return nil
		}
	}
}

// runControl serves one channel until it closes or ctx is done. opened
// reports whether the channel ever opened.
func (o *Orchestrator) runControl(ctx context.Context, gen uint64, ch ControlChannel, cmds *Commands, analysis *control.Analysis, logger zerolog.Logger) (opened bool, err error) {
	select {
	case <-ctx.Done():
		return false, nil
	case <-ch.Closed():
		return false, nil
	case <-ch.Opened():
	}
	o.update(gen, func(st *State) { st.ControlOpen = true })
	logger.Info().Str("label", ch.Label()).Msg("control channel open")

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error { return o.keepalive(ctx, ch) })
	p.Go(consume(ch, cmds.Keys, logger, control.EncodeKey))
	p.Go(consume(ch, cmds.Screenshots, logger, func(ScreenshotRequest) ([]byte, error) {
		return control.EncodeScreenshotRequest(), nil
	}))
	p.Go(consume(ch, cmds.Analyses, logger, control.EncodeAnalyzeRequest))
	p.Go(consume(ch, cmds.Clicks, logger, control.EncodeMouseClick))
	p.Go(consume(ch, cmds.Config, logger, func(c ConfigCommand) ([]byte, error) {
		if c.Set == nil {
			return control.EncodeGetLlmConfig(), nil
		}
		return control.EncodeUpdateLlmConfig(*c.Set)
	}))
	p.Go(func(ctx context.Context) error { return o.handleControl(ctx, gen, ch, analysis, logger) })
	return true, &ControlChannelError{Err: p.Wait()}
}

// consume sends every command taken from q over ch, in order.
func consume[T any](ch ControlChannel, q *queue.Queue[T], logger zerolog.Logger, encode func(T) ([]byte, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			v, err := q.Take(ctx)
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			data, err := encode(v)
			if err != nil {
				logger.Warn().Err(err).Msg("dropping unencodable command")
				continue
			}
			if err := ch.SendText(data); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) keepalive(ctx context.Context, ch ControlChannel) error {
	ticker := time.NewTicker(o.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			data, err := control.EncodePing(time.Now().UnixMilli())
			if err != nil {
				return err
			}
			if err := ch.SendText(data); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) handleControl(ctx context.Context, gen uint64, ch ControlChannel, analysis *control.Analysis, logger zerolog.Logger) error {
	var shots control.Assembler
	msgs := ch.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-msgs:
			if !ok {
				return ErrControlClosed
			}
			o.dispatchControl(gen, f, &shots, analysis, logger)
		}
	}
}

func (o *Orchestrator) dispatchControl(gen uint64, f Frame, shots *control.Assembler, analysis *control.Analysis, logger zerolog.Logger) {
	if f.Binary {
		shot, err := shots.Chunk(f.Data)
		if err != nil {
			logger.Warn().Err(err).Int("bytes", len(f.Data)).Msg("screenshot chunk dropped")
			return
		}
		if shot != nil {
			logger.Info().Str("id", shot.ID).Str("format", shot.Format).Int("bytes", len(shot.Data)).Msg("screenshot received")
			if o.cb.OnScreenshot != nil {
				o.cb.OnScreenshot(*shot)
			}
		}
		return
	}

	msg, err := control.Decode(f.Data)
	if err != nil {
		logger.Warn().Err(err).Msg("control message dropped")
		return
	}
	switch m := msg.(type) {
	case control.ScreenshotMetadata:
		discarded, err := shots.Begin(m)
		if discarded != nil {
			logger.Warn().Str("id", discarded.ID).Msg("incomplete screenshot discarded")
		}
		if err != nil {
			logger.Warn().Err(err).Str("id", m.ID).Msg("screenshot rejected")
		}
	case control.AnalyzeResponse:
		analysis.Complete(m.ID)
		if o.cb.OnAnalysis != nil {
			o.cb.OnAnalysis(m.ID, m.Text)
		}
	case control.AnalyzeChunk:
		analysis.Chunk(m.ID, m.Delta)
		if o.cb.OnAnalysisDelta != nil {
			o.cb.OnAnalysisDelta(m.ID, m.Delta)
		}
	case control.AnalyzeDone:
		text, ok := analysis.Done(m.ID)
		if !ok {
			logger.Warn().Str("id", m.ID).Msg("analysis done without chunks")
		}
		if o.cb.OnAnalysis != nil {
			o.cb.OnAnalysis(m.ID, text)
		}
	case control.LlmConfigResponse:
		if o.cb.OnLlmConfig != nil {
			o.cb.OnLlmConfig(m.Config)
		}
	case control.Pong:
		if m.Timestamp == nil {
			return
		}
		rtt := time.Since(time.UnixMilli(*m.Timestamp))
		o.update(gen, func(st *State) { st.ControlRTT = rtt })
		if o.cb.OnPong != nil {
			o.cb.OnPong(rtt)
		}
	}
}
