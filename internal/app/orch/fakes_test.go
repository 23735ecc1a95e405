package orch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/remoterg/internal/media"
	"github.com/dkeye/remoterg/internal/signaling"
)

// recorder collects release events across fakes in the order they happen.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeLink struct {
	rec  *recorder
	name string

	mu     sync.Mutex
	sent   []signaling.Message
	closed bool
	in     chan signaling.Message
	once   sync.Once
}

func newFakeLink(rec *recorder, name string) *fakeLink {
	return &fakeLink{rec: rec, name: name, in: make(chan signaling.Message, 16)}
}

func (l *fakeLink) Send(_ context.Context, m signaling.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("link closed")
	}
	l.sent = append(l.sent, m)
	return nil
}

func (l *fakeLink) Messages() <-chan signaling.Message { return l.in }
func (l *fakeLink) Err() error                         { return io.EOF }

func (l *fakeLink) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.in)
		l.rec.add("close " + l.name)
	})
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) messages() []signaling.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]signaling.Message(nil), l.sent...)
}

type fakeDialer struct {
	rec *recorder
	err error

	mu    sync.Mutex
	links []*fakeLink
}

func (d *fakeDialer) Dial(ctx context.Context) (SignalLink, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l := newFakeLink(d.rec, "link")
	d.links = append(d.links, l)
	return l, nil
}

func (d *fakeDialer) all() []*fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeLink(nil), d.links...)
}

func (d *fakeDialer) open() int {
	n := 0
	for _, l := range d.all() {
		if !l.isClosed() {
			n++
		}
	}
	return n
}

type fakeChannel struct {
	rec *recorder

	opened chan struct{}
	closed chan struct{}
	msgs   chan Frame
	sent   chan []byte

	openOnce  sync.Once
	closeOnce sync.Once
	mu        sync.Mutex
	isClosed  bool
}

func newFakeChannel(rec *recorder) *fakeChannel {
	return &fakeChannel{
		rec:    rec,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
		msgs:   make(chan Frame, 16),
		sent:   make(chan []byte, 64),
	}
}

func (c *fakeChannel) Label() string           { return DefaultControlLabel }
func (c *fakeChannel) Opened() <-chan struct{} { return c.opened }
func (c *fakeChannel) Closed() <-chan struct{} { return c.closed }
func (c *fakeChannel) Messages() <-chan Frame  { return c.msgs }
func (c *fakeChannel) open()                   { c.openOnce.Do(func() { close(c.opened) }) }
func (c *fakeChannel) deliver(f Frame)         { c.msgs <- f }
func (c *fakeChannel) deliverText(s string)    { c.deliver(Frame{Data: []byte(s)}) }
func (c *fakeChannel) deliverBinary(b []byte)  { c.deliver(Frame{Binary: true, Data: b}) }

func (c *fakeChannel) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return errors.New("channel closed")
	}
	c.sent <- data
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		c.mu.Unlock()
		close(c.closed)
		close(c.msgs)
		c.rec.add("close control")
	})
	return nil
}

func (c *fakeChannel) closedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

type fakeTransport struct {
	rec      *recorder
	autoOpen bool

	candidates chan signaling.Candidate
	conn       chan ConnState
	ice        chan ConnState
	tracks     chan media.Track

	mu        sync.Mutex
	closed    bool
	codec     string
	answers   []string
	remote    []signaling.Candidate
	iceErr    error
	statsErrs int
	channels  []*fakeChannel
	closeOnce sync.Once
}

func newFakeTransport(rec *recorder, autoOpen bool) *fakeTransport {
	return &fakeTransport{
		rec:        rec,
		autoOpen:   autoOpen,
		candidates: make(chan signaling.Candidate, 16),
		conn:       make(chan ConnState, 16),
		ice:        make(chan ConnState, 16),
		tracks:     make(chan media.Track, 16),
	}
}

func (t *fakeTransport) SetCodecPreference(codec string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.codec = codec
	if codec == "vp9" {
		return errors.New("unsupported codec")
	}
	return nil
}

func (t *fakeTransport) CreateOffer(context.Context) (string, error) { return "v=0 offer", nil }

func (t *fakeTransport) SetAnswer(_ context.Context, sdp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, sdp)
	return nil
}

func (t *fakeTransport) AddICECandidate(c signaling.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.iceErr != nil {
		return t.iceErr
	}
	t.remote = append(t.remote, c)
	return nil
}

func (t *fakeTransport) LocalCandidates() <-chan signaling.Candidate { return t.candidates }
func (t *fakeTransport) ConnectionStates() <-chan ConnState          { return t.conn }
func (t *fakeTransport) ICEStates() <-chan ConnState                 { return t.ice }
func (t *fakeTransport) Tracks() <-chan media.Track                  { return t.tracks }

func (t *fakeTransport) OpenControlChannel(string) (ControlChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("transport closed")
	}
	ch := newFakeChannel(t.rec)
	if t.autoOpen {
		ch.open()
	}
	t.channels = append(t.channels, ch)
	return ch, nil
}

func (t *fakeTransport) Stats(context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statsErrs > 0 {
		t.statsErrs--
		return Stats{}, errors.New("stats unavailable")
	}
	return Stats{At: time.Now(), PacketsReceived: 10}, nil
}

func (t *fakeTransport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.conn <- StateClosed
		close(t.candidates)
		close(t.conn)
		close(t.ice)
		close(t.tracks)
		t.rec.add("close transport")
	})
	return nil
}

func (t *fakeTransport) isClosed() bool { return !t.Alive() }

func (t *fakeTransport) channelList() []*fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeChannel(nil), t.channels...)
}

func (t *fakeTransport) answerList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.answers...)
}

type fakeFactory struct {
	rec      *recorder
	autoOpen bool

	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) NewTransport(context.Context) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport(f.rec, f.autoOpen)
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) all() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.transports...)
}

func (f *fakeFactory) open() int {
	n := 0
	for _, t := range f.all() {
		if !t.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeFactory) last(t *testing.T) *fakeTransport {
	t.Helper()
	all := f.all()
	if len(all) == 0 {
		t.Fatal("no transport created")
	}
	return all[len(all)-1]
}

type fakeTrack struct {
	id   string
	kind media.Kind
}

func (t fakeTrack) ID() string                    { return t.id }
func (t fakeTrack) StreamID() string              { return "remote" }
func (t fakeTrack) Kind() media.Kind              { return t.kind }
func (t fakeTrack) MimeType() string              { return "video/H264" }
func (t fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
