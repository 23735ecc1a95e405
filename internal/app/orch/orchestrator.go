// Package orch runs the viewer side of a session: one generation per
// Connect, each owning a signaling link, a transport, a control channel and
// the background flows that drive them.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/remoterg/internal/app/queue"
	"github.com/dkeye/remoterg/internal/app/scope"
	"github.com/dkeye/remoterg/internal/control"
	"github.com/dkeye/remoterg/internal/media"
	"github.com/dkeye/remoterg/internal/signaling"
)

const (
	DefaultControlLabel      = "control"
	DefaultKeepaliveInterval = 5 * time.Second
	DefaultHealthInterval    = 2 * time.Second
	DefaultControlRetryDelay = time.Second
)

type Config struct {
	// Codec is the preferred video codec, "any" or empty for no preference.
	Codec             string
	ControlLabel      string
	KeepaliveInterval time.Duration
	HealthInterval    time.Duration
	ControlRetryDelay time.Duration
	// Sinks returns the local outputs a new track is forwarded to.
	Sinks func(t media.Track) []*media.Output
}

func (c Config) withDefaults() Config {
	if c.ControlLabel == "" {
		c.ControlLabel = DefaultControlLabel
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.ControlRetryDelay <= 0 {
		c.ControlRetryDelay = DefaultControlRetryDelay
	}
	return c
}

// Orchestrator drives connect/disconnect. Only one generation holds
// resources at a time: a new generation starts acquiring only after the
// previous one has released everything.
type Orchestrator struct {
	cfg        Config
	dialer     LinkDialer
	transports TransportFactory
	cb         Callbacks
	logger     zerolog.Logger
	parent     context.Context

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
	done   chan struct{}
	state  State

	commands atomic.Pointer[Commands]
}

func New(ctx context.Context, cfg Config, dialer LinkDialer, transports TransportFactory, cb Callbacks, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		dialer:     dialer,
		transports: transports,
		cb:         cb,
		logger:     logger.With().Str("module", "orch").Logger(),
		parent:     ctx,
		state:      State{Status: StatusIdle},
	}
}

// Connect starts a new generation, superseding any running one, and
// returns its number.
func (o *Orchestrator) Connect() uint64 {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	if o.cancel != nil {
		o.cancel(ErrSuperseded)
	}
	prev := o.done
	ctx, cancel := context.WithCancelCause(o.parent)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	o.state = State{Gen: gen, Status: StatusConnecting, Connection: StateNew, ICE: StateNew}
	st := o.state
	o.mu.Unlock()

	o.logger.Info().Uint64("gen", gen).Msg("connect")
	o.notify(st)
	go o.run(ctx, gen, prev, done)
	return gen
}

// Disconnect cancels the running generation. It is a no-op when idle.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return
	}
	o.logger.Info().Uint64("gen", o.gen).Msg("disconnect")
	o.cancel(ErrDisconnected)
	o.cancel = nil
}

// Done is closed once the latest generation released its resources.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.done
}

// Close disconnects and waits for the release to finish.
func (o *Orchestrator) Close() {
	o.Disconnect()
	<-o.Done()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Commands returns the live generation's queues, or nil when none runs.
func (o *Orchestrator) Commands() *Commands {
	return o.commands.Load()
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	logger := o.logger.With().Uint64("gen", gen).Logger()
	var err error
	if ctx.Err() == nil {
		err = o.session(ctx, gen, logger)
	}

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrSuperseded):
		logger.Debug().Msg("generation superseded")
	case ctx.Err() != nil:
		o.update(gen, func(s *State) {
			s.Status, s.ControlOpen, s.Err = StatusDisconnected, false, nil
		})
	case err != nil:
		logger.Error().Err(err).Msg("generation failed")
		o.update(gen, func(s *State) {
			s.Status, s.ControlOpen, s.Err = StatusError, false, err
		})
	default:
		o.update(gen, func(s *State) { s.Status, s.ControlOpen = StatusDisconnected, false })
	}
}

// session acquires the generation's resources in order and runs its flows
// until the first terminal failure or cancellation. Every acquired resource
// is released in reverse order before it returns.
func (o *Orchestrator) session(ctx context.Context, gen uint64, logger zerolog.Logger) error {
	sc := scope.New(ctx, logger)
	defer func() {
		if err := sc.Close(); err != nil {
			logger.Warn().Err(err).Msg("release errors")
		}
		logger.Info().Msg("generation released")
	}()

	link, err := o.dialer.Dial(ctx)
	if err != nil {
		return &LinkOpenError{Err: err}
	}
	sc.Defer("signaling link", link.Close)

	var forwarders conc.WaitGroup
	sc.Defer("media forwarders", func() error {
		forwarders.Wait()
		return nil
	})

	tr, err := o.transports.NewTransport(ctx)
	if err != nil {
		return &TransportError{Err: err}
	}
	sc.Defer("transport", tr.Close)
	if err := tr.SetCodecPreference(o.cfg.Codec); err != nil {
		logger.Warn().Err(err).Str("codec", o.cfg.Codec).Msg("codec preference not applied")
	}

	slot := &controlSlot{}
	sc.Defer("control channel", slot.close)
	if ch, err := tr.OpenControlChannel(o.cfg.ControlLabel); err != nil {
		logger.Warn().Err(err).Msg("control channel not created, control loop will retry")
	} else {
		slot.set(ch)
	}

	cmds := NewCommands()
	o.commands.Store(cmds)
	sc.Defer("command queues", func() error {
		o.commands.CompareAndSwap(cmds, nil)
		cmds.Close()
		return nil
	})

	offer, err := tr.CreateOffer(ctx)
	if err != nil {
		return &NegotiationError{Op: "create offer", Err: err}
	}
	if err := link.Send(ctx, signaling.Offer(offer, o.cfg.Codec)); err != nil {
		return &LinkRuntimeError{Err: err}
	}
	logger.Info().Str("codec", o.cfg.Codec).Msg("offer sent")

	stream := media.NewStream(fmt.Sprintf("gen-%d", gen))
	sc.Go("signaling", func(ctx context.Context) error {
		return o.pumpSignaling(ctx, link, tr, logger)
	})
	sc.Go("ice", func(ctx context.Context) error {
		return o.pumpCandidates(ctx, link, tr)
	})
	sc.Go("connection state", func(ctx context.Context) error {
		return o.observeConnection(ctx, gen, tr, logger)
	})
	sc.Go("ice state", func(ctx context.Context) error {
		return o.observeICE(ctx, gen, tr, logger)
	})
	sc.Go("media", func(ctx context.Context) error {
		return o.aggregateMedia(ctx, gen, tr, stream, &forwarders, logger)
	})
	sc.Go("control", func(ctx context.Context) error {
		return o.controlLoop(ctx, gen, tr, slot, cmds, logger)
	})
	sc.Go("health", func(ctx context.Context) error {
		return o.pollHealth(ctx, gen, tr, logger)
	})
	sc.Go("faults", func(ctx context.Context) error {
		return o.injectFaults(ctx, cmds, link, tr, logger)
	})
	return sc.Wait()
}

// update applies fn to the state if gen is still the current generation.
func (o *Orchestrator) update(gen uint64, fn func(*State)) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	fn(&o.state)
	st := o.state
	o.mu.Unlock()
	o.notify(st)
}

func (o *Orchestrator) notify(st State) {
	if o.cb.OnState != nil {
		o.cb.OnState(st)
	}
}

func push[T any](o *Orchestrator, pick func(*Commands) *queue.Queue[T], v T) error {
	cmds := o.commands.Load()
	if cmds == nil {
		return ErrNotConnected
	}
	if err := pick(cmds).Push(v); err != nil {
		return ErrNotConnected
	}
	return nil
}

func (o *Orchestrator) SendKey(key string, down bool) error {
	return push(o, func(c *Commands) *queue.Queue[control.KeyEvent] { return c.Keys }, control.KeyEvent{Key: key, Down: down})
}

func (o *Orchestrator) RequestScreenshot() error {
	return push(o, func(c *Commands) *queue.Queue[ScreenshotRequest] { return c.Screenshots }, ScreenshotRequest{})
}

// Analyze queues an analysis of the current frame and returns its request id.
func (o *Orchestrator) Analyze(maxEdge int) (string, error) {
	req := control.AnalyzeRequest{ID: uuid.NewString(), MaxEdge: maxEdge}
	if err := push(o, func(c *Commands) *queue.Queue[control.AnalyzeRequest] { return c.Analyses }, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

func (o *Orchestrator) Click(x, y float64, button control.MouseButton) error {
	return push(o, func(c *Commands) *queue.Queue[control.MouseClick] { return c.Clicks }, control.MouseClick{X: x, Y: y, Button: button})
}

func (o *Orchestrator) GetLlmConfig() error {
	return push(o, func(c *Commands) *queue.Queue[ConfigCommand] { return c.Config }, ConfigCommand{})
}

func (o *Orchestrator) SetLlmConfig(cfg control.LlmConfig) error {
	return push(o, func(c *Commands) *queue.Queue[ConfigCommand] { return c.Config }, ConfigCommand{Set: &cfg})
}

func (o *Orchestrator) InjectFault(f Fault) error {
	return push(o, func(c *Commands) *queue.Queue[Fault] { return c.Faults }, f)
}
