package orch

import (
	"time"

	"github.com/dkeye/remoterg/internal/control"
	"github.com/dkeye/remoterg/internal/media"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// State is the externally observable view of the current generation.
type State struct {
	Gen         uint64
	Status      Status
	Connection  ConnState
	ICE         ConnState
	ControlOpen bool
	Tracks      int
	Health      Stats
	ControlRTT  time.Duration
	Err         error
}

// Callbacks are optional observers. They run on the orchestrator's
// goroutines and must not block.
type Callbacks struct {
	OnState      func(State)
	OnTrack      func(t media.Track, stream *media.Stream)
	OnHealth     func(Stats)
	OnScreenshot func(control.Screenshot)
	// OnAnalysis receives the complete text of an analysis response.
	OnAnalysis      func(id, text string)
	OnAnalysisDelta func(id, delta string)
	OnLlmConfig     func(control.LlmConfig)
	OnPong          func(rtt time.Duration)
}
