// Package control implements the message protocol spoken over the control
// data channel: commands to the host and the telemetry it sends back.
package control

import (
	"encoding/json"
	"fmt"
)

// Outbound tags. Unit commands are encoded as a bare JSON string, the rest
// as a single-key object wrapping the payload.
const (
	TagPing              = "Ping"
	TagKey               = "Key"
	TagScreenshotRequest = "ScreenshotRequest"
	TagMouseClick        = "MouseClick"
	TagAnalyzeRequest    = "AnalyzeRequest"
	TagGetLlmConfig      = "GetLlmConfig"
	TagUpdateLlmConfig   = "UpdateLlmConfig"
)

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type KeyEvent struct {
	Key  string `json:"key"`
	Down bool   `json:"down"`
}

type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

func ParseMouseButton(s string) (MouseButton, error) {
	switch b := MouseButton(s); b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return b, nil
	case "":
		return ButtonLeft, nil
	}
	return "", fmt.Errorf("invalid mouse button %q", s)
}

// MouseClick coordinates are normalized to the remote frame, 0..1.
type MouseClick struct {
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Button MouseButton `json:"button"`
}

type AnalyzeRequest struct {
	ID      string `json:"id"`
	MaxEdge int    `json:"max_edge,omitempty"`
}

type LlmConfig struct {
	Port       uint16 `json:"port"`
	ModelPath  string `json:"model_path"`
	MmprojPath string `json:"mmproj_path"`
}

type updateLlmConfig struct {
	Config LlmConfig `json:"config"`
}

func tagged(tag string, payload any) ([]byte, error) {
	b, err := json.Marshal(map[string]any{tag: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	return b, nil
}

func unit(tag string) []byte {
	b, _ := json.Marshal(tag)
	return b
}

func EncodePing(timestampMillis int64) ([]byte, error) {
	return tagged(TagPing, Ping{Timestamp: timestampMillis})
}

func EncodeKey(k KeyEvent) ([]byte, error) {
	return tagged(TagKey, k)
}

func EncodeScreenshotRequest() []byte {
	return unit(TagScreenshotRequest)
}

func EncodeMouseClick(c MouseClick) ([]byte, error) {
	if c.Button == "" {
		c.Button = ButtonLeft
	}
	return tagged(TagMouseClick, c)
}

func EncodeAnalyzeRequest(r AnalyzeRequest) ([]byte, error) {
	return tagged(TagAnalyzeRequest, r)
}

func EncodeGetLlmConfig() []byte {
	return unit(TagGetLlmConfig)
}

func EncodeUpdateLlmConfig(cfg LlmConfig) ([]byte, error) {
	return tagged(TagUpdateLlmConfig, updateLlmConfig{Config: cfg})
}
