package orch

import (
	"github.com/dkeye/remoterg/internal/app/queue"
	"github.com/dkeye/remoterg/internal/control"
)

// Fault is a test-only command that breaks part of a live generation.
type Fault string

const (
	FaultSignaling Fault = "signaling"
	FaultTransport Fault = "transport"
)

func ParseFault(s string) (Fault, bool) {
	switch f := Fault(s); f {
	case FaultSignaling, FaultTransport:
		return f, true
	}
	return "", false
}

// ConfigCommand either fetches (Set == nil) or replaces the remote LLM
// configuration.
type ConfigCommand struct {
	Set *control.LlmConfig
}

type ScreenshotRequest struct{}

// Commands are the outbound queues of one generation. Each queue has a
// single consumer.
type Commands struct {
	Keys        *queue.Queue[control.KeyEvent]
	Screenshots *queue.Queue[ScreenshotRequest]
	Analyses    *queue.Queue[control.AnalyzeRequest]
	Clicks      *queue.Queue[control.MouseClick]
	Config      *queue.Queue[ConfigCommand]
	Faults      *queue.Queue[Fault]
}

func NewCommands() *Commands {
	return &Commands{
		Keys:        queue.New[control.KeyEvent](),
		Screenshots: queue.New[ScreenshotRequest](),
		Analyses:    queue.New[control.AnalyzeRequest](),
		Clicks:      queue.New[control.MouseClick](),
		Config:      queue.New[ConfigCommand](),
		Faults:      queue.New[Fault](),
	}
}

func (c *Commands) Close() {
	c.Keys.Close()
	c.Screenshots.Close()
	c.Analyses.Close()
	c.Clicks.Close()
	c.Config.Close()
	c.Faults.Close()
}
