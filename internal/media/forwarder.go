package media

import (
	"context"
	"errors"
	"io"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Forwarder reads RTP packets from one track and fans them out to its
// outputs. A failing output is marked for delete and dropped; the source
// keeps flowing to the others.
type Forwarder struct {
	Src Track

	mu      sync.RWMutex
	outputs map[string]*Output

	packets uint64
	logger  zerolog.Logger
}

func NewForwarder(src Track, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		Src:     src,
		outputs: make(map[string]*Output),
		logger: logger.With().Str("module", "media").Str("track_id", src.ID()).
			Str("kind", string(src.Kind())).Logger(),
	}
}

func (f *Forwarder) AddOutput(o *Output) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[o.Name] = o
}

func (f *Forwarder) Output(name string) (*Output, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	o, ok := f.outputs[name]
	return o, ok
}

// Run forwards until the track ends or ctx is done, then closes every
// output. The end of the track is not an error.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			f.logger.Debug().Msg("forwarder ctx done")
			return nil
		default:
		}
		pkt, err := f.Src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.logger.Info().Uint64("packets", f.packets).Msg("track ended")
				return nil
			}
			f.logger.Warn().Err(err).Msg("read RTP error, stopping")
			return err
		}
		f.packets++
		f.forward(pkt)
	}
}

func (f *Forwarder) forward(pkt *rtp.Packet) {
	f.mu.RLock()
	snapshot := make(map[string]*Output, len(f.outputs))
	maps.Copy(snapshot, f.outputs)
	f.mu.RUnlock()

	var dirty []string
	for name, o := range snapshot {
		switch o.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := o.Sink.WriteRTP(pkt); err != nil {
				f.logger.Error().Err(err).Str("output", name).Msg("write RTP error, marking output as delete")
				o.MarkDelete()
				dirty = append(dirty, name)
				continue
			}
			o.written.Add(1)
		}
	}
	if len(dirty) > 0 {
		f.cleanupDeleted(dirty)
	}
}

func (f *Forwarder) cleanupDeleted(dirty []string) {
	f.mu.Lock()
	removed := make([]*Output, 0, len(dirty))
	for _, name := range dirty {
		if o, ok := f.outputs[name]; ok {
			removed = append(removed, o)
			delete(f.outputs, name)
		}
	}
	f.mu.Unlock()
	for _, o := range removed {
		f.closeOutput(o)
	}
}

func (f *Forwarder) closeAll() {
	f.mu.Lock()
	outputs := f.outputs
	f.outputs = make(map[string]*Output)
	f.mu.Unlock()
	for _, o := range outputs {
		o.MarkDelete()
		f.closeOutput(o)
	}
}

func (f *Forwarder) closeOutput(o *Output) {
	if err := o.Sink.Close(); err != nil {
		f.logger.Warn().Err(err).Str("output", o.Name).Msg("close output")
	}
}
