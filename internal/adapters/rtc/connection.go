// Package rtc adapts pion/webrtc to the orchestrator's transport.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/app/orch"
	"github.com/dkeye/remoterg/internal/media"
	"github.com/dkeye/remoterg/internal/signaling"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

const eventBuffer = 64

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Factory creates a receive-only connection per generation.
type Factory struct {
	Config webrtc.Configuration
	Logger zerolog.Logger
}

func (f Factory) NewTransport(_ context.Context) (orch.Transport, error) {
	return NewConnection(f.Config, f.Logger)
}

// Connection is the viewer's peer connection: receive-only video and
// audio plus data channels for control.
type Connection struct {
	pc     *webrtc.PeerConnection
	video  *webrtc.RTPTransceiver
	logger zerolog.Logger

	candidates chan signaling.Candidate
	conn       chan orch.ConnState
	ice        chan orch.ConnState
	tracks     chan media.Track

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Value // orch.ConnState

	statsMu    sync.Mutex
	lastFrames *frameSample
}

func NewConnection(cfg webrtc.Configuration, logger zerolog.Logger) (*Connection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(logger)}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		pc:         pc,
		logger:     logger.With().Str("module", "webrtc").Logger(),
		candidates: make(chan signaling.Candidate, eventBuffer),
		conn:       make(chan orch.ConnState, eventBuffer),
		ice:        make(chan orch.ConnState, eventBuffer),
		tracks:     make(chan media.Track, eventBuffer),
		done:       make(chan struct{}),
	}
	c.state.Store(orch.StateNew)

	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if c.video, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}
	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	c.bind()
	return c, nil
}

func (c *Connection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
		emit(c, c.ice, orch.ConnState(s.String()))
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		st := orch.ConnState(s.String())
		c.state.Store(st)
		emit(c, c.conn, st)
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		emit(c, c.candidates, signaling.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		emit(c, c.tracks, media.Track(remoteTrack{track}))
	})
}

// emit delivers v unless the connection is closing.
func emit[T any](c *Connection, ch chan T, v T) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case ch <- v:
	case <-c.done:
	}
}

// SetCodecPreference restricts the video transceiver to codec. "any" and
// the empty string keep every registered codec.
func (c *Connection) SetCodecPreference(codec string) error {
	codec = strings.ToLower(strings.TrimSpace(codec))
	if codec == "" || codec == "any" {
		return nil
	}
	params, ok := videoCodecs[codec]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}
	return c.video.SetCodecPreferences(params)
}

var videoCodecs = map[string][]webrtc.RTPCodecParameters{
	"h264": {{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 106,
	}},
	"vp8": {{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}},
	"vp9": {{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"},
		PayloadType:        98,
	}},
}

// CreateOffer sets and returns the local offer. Candidates trickle
// through LocalCandidates.
func (c *Connection) CreateOffer(_ context.Context) (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *Connection) SetAnswer(_ context.Context, sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *Connection) AddICECandidate(cand signaling.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *Connection) LocalCandidates() <-chan signaling.Candidate { return c.candidates }
func (c *Connection) ConnectionStates() <-chan orch.ConnState     { return c.conn }
func (c *Connection) ICEStates() <-chan orch.ConnState            { return c.ice }
func (c *Connection) Tracks() <-chan media.Track                  { return c.tracks }

func (c *Connection) OpenControlChannel(label string) (orch.ControlChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return newDataChannel(dc), nil
}

func (c *Connection) Alive() bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	return !closed && !c.state.Load().(orch.ConnState).Terminal()
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.pc.Close()
		close(c.done)

		c.mu.Lock()
		c.closed = true
		close(c.candidates)
		close(c.conn)
		close(c.ice)
		close(c.tracks)
		c.mu.Unlock()

		if err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
	return err
}

type remoteTrack struct {
	*webrtc.TrackRemote
}

func (t remoteTrack) Kind() media.Kind { return media.Kind(t.TrackRemote.Kind().String()) }
func (t remoteTrack) MimeType() string { return t.Codec().MimeType }

func (t remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.TrackRemote.ReadRTP()
	return pkt, err
}
