package media

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type fakeTrack struct {
	id      string
	kind    Kind
	mime    string
	packets chan *rtp.Packet
	err     error
}

func newFakeTrack(id string, kind Kind, n int) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind, mime: webrtc.MimeTypeH264, packets: make(chan *rtp.Packet, n)}
	for i := 0; i < n; i++ {
		t.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}
	}
	close(t.packets)
	return t
}

func (t *fakeTrack) ID() string       { return t.id }
func (t *fakeTrack) StreamID() string { return "stream" }
func (t *fakeTrack) Kind() Kind       { return t.kind }
func (t *fakeTrack) MimeType() string { return t.mime }

func (t *fakeTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-t.packets
	if !ok {
		if t.err != nil {
			return nil, t.err
		}
		return nil, io.EOF
	}
	return pkt, nil
}

type fakeSink struct {
	mu      sync.Mutex
	packets int
	failAt  int
	closed  int
}

func (s *fakeSink) WriteRTP(*rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && s.packets+1 >= s.failAt {
		return errors.New("disk full")
	}
	s.packets++
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func TestStreamIsAppendOnly(t *testing.T) {
	s := NewStream("gen-1")
	v := newFakeTrack("v", KindVideo, 0)
	a := newFakeTrack("a", KindAudio, 0)

	if n, added := s.Add(v); n != 1 || !added {
		t.Fatalf("Add(v) = %d %v", n, added)
	}
	first := s.Tracks()
	if n, added := s.Add(a); n != 2 || !added {
		t.Fatalf("Add(a) = %d %v", n, added)
	}
	if n, added := s.Add(v); n != 2 || added {
		t.Fatalf("duplicate Add(v) = %d %v", n, added)
	}
	if len(first) != 1 {
		t.Fatalf("earlier snapshot mutated: %d tracks", len(first))
	}
	kinds := s.Kinds()
	if kinds[KindVideo] != 1 || kinds[KindAudio] != 1 {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestForwarderFansOut(t *testing.T) {
	src := newFakeTrack("v", KindVideo, 5)
	fw := NewForwarder(src, zerolog.Nop())
	good, muted := &fakeSink{}, &fakeSink{}
	fw.AddOutput(NewOutput("good", good))
	m := NewOutput("muted", muted)
	m.MarkMuted()
	fw.AddOutput(m)

	if err := fw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if good.packets != 5 {
		t.Errorf("good sink got %d packets, want 5", good.packets)
	}
	if muted.packets != 0 {
		t.Errorf("muted sink got %d packets", muted.packets)
	}
	if good.closed != 1 || muted.closed != 1 {
		t.Errorf("sinks closed good=%d muted=%d, want 1 each", good.closed, muted.closed)
	}
}

func TestForwarderDropsFailingSink(t *testing.T) {
	src := newFakeTrack("v", KindVideo, 4)
	fw := NewForwarder(src, zerolog.Nop())
	bad, good := &fakeSink{failAt: 2}, &fakeSink{}
	fw.AddOutput(NewOutput("bad", bad))
	fw.AddOutput(NewOutput("good", good))

	if err := fw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bad.packets != 1 || bad.closed != 1 {
		t.Errorf("bad sink packets=%d closed=%d", bad.packets, bad.closed)
	}
	if good.packets != 4 {
		t.Errorf("good sink got %d packets, want 4", good.packets)
	}
	if _, ok := fw.Output("bad"); ok {
		t.Error("failing output still attached")
	}
}

func TestForwarderReportsReadError(t *testing.T) {
	src := newFakeTrack("v", KindVideo, 0)
	src.err = errors.New("srtp failure")
	fw := NewForwarder(src, zerolog.Nop())
	if err := fw.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil on read error")
	}
}

func TestRecordingPath(t *testing.T) {
	v := newFakeTrack("video/1", KindVideo, 0)
	if got, want := RecordingPath("/tmp", v), filepath.Join("/tmp", "video-video_1.h264"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	a := newFakeTrack("mic", KindAudio, 0)
	if got, want := RecordingPath("/tmp", a), filepath.Join("/tmp", "audio-mic.ogg"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestNewRecordingSinkRejectsUnknownCodec(t *testing.T) {
	tr := newFakeTrack("v", KindVideo, 0)
	tr.mime = webrtc.MimeTypeVP8
	if _, err := NewRecordingSink(t.TempDir(), tr); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("err = %v, want ErrUnsupportedCodec", err)
	}
}

func TestNewRecordingSinkWritesFile(t *testing.T) {
	dir := t.TempDir()
	tr := newFakeTrack("cam", KindVideo, 0)
	s, err := NewRecordingSink(dir, tr)
	if err != nil {
		t.Fatalf("NewRecordingSink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestForwarderAcceptsOutputWhileRunning(t *testing.T) {
	src := &fakeTrack{id: "v", kind: KindVideo, mime: webrtc.MimeTypeH264, packets: make(chan *rtp.Packet)}
	fw := NewForwarder(src, zerolog.Nop())
	early, late := &fakeSink{}, &fakeSink{}
	fw.AddOutput(NewOutput("early", early))

	done := make(chan error, 1)
	go func() { done <- fw.Run(context.Background()) }()

	src.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}
	fw.AddOutput(NewOutput("late", late))
	src.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 2}}
	close(src.packets)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if early.packets != 2 {
		t.Errorf("early sink got %d packets, want 2", early.packets)
	}
	if late.packets < 1 {
		t.Errorf("late sink got %d packets, want the packet sent after it joined", late.packets)
	}
}
