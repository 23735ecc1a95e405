package control

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownMessage = errors.New("unknown control message")

// Inbound type tags used by the host for telemetry.
const (
	TypeScreenshotMetadata   = "SCREENSHOT_METADATA"
	TypeAnalyzeResponse      = "ANALYZE_RESPONSE"
	TypeAnalyzeResponseChunk = "ANALYZE_RESPONSE_CHUNK"
	TypeAnalyzeResponseDone  = "ANALYZE_RESPONSE_DONE"

	TagLlmConfigResponse = "LlmConfigResponse"
	TagPong              = "Pong"
)

// Inbound is one decoded text message from the host.
type Inbound interface {
	inbound()
}

type ScreenshotMetadata struct {
	ID     string `json:"id"`
	Size   int    `json:"size"`
	Format string `json:"format"`
}

type AnalyzeResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type AnalyzeChunk struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type AnalyzeDone struct {
	ID string `json:"id"`
}

type LlmConfigResponse struct {
	Config LlmConfig `json:"config"`
}

// Pong answers a Ping. Timestamp echoes the ping's when the host sends it.
type Pong struct {
	Timestamp *int64 `json:"timestamp,omitempty"`
}

func (ScreenshotMetadata) inbound() {}
func (AnalyzeResponse) inbound()    {}
func (AnalyzeChunk) inbound()       {}
func (AnalyzeDone) inbound()        {}
func (LlmConfigResponse) inbound()  {}
func (Pong) inbound()               {}

// Decode parses a text control message.
func Decode(data []byte) (Inbound, error) {
	var tag string
	if json.Unmarshal(data, &tag) == nil {
		if tag == TagPong {
			return Pong{}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrUnknownMessage)
	}
	if raw, ok := obj["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			return nil, fmt.Errorf("%w: bad type", ErrUnknownMessage)
		}
		return decodeTyped(typ, obj, data)
	}
	if raw, ok := obj[TagLlmConfigResponse]; ok {
		var m LlmConfigResponse
		if err := decodeInto(TagLlmConfigResponse, raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if raw, ok := obj[TagPong]; ok {
		var m Pong
		if string(raw) == "null" {
			return m, nil
		}
		if err := decodeInto(TagPong, raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: no known tag", ErrUnknownMessage)
}

func decodeTyped(typ string, obj map[string]json.RawMessage, data []byte) (Inbound, error) {
	switch typ {
	case TypeScreenshotMetadata:
		var m ScreenshotMetadata
		raw, ok := obj["payload"]
		if !ok {
			return nil, fmt.Errorf("decode %s: missing payload", typ)
		}
		if err := decodeInto(typ, raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeAnalyzeResponse:
		var m AnalyzeResponse
		if err := decodeInto(typ, data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeAnalyzeResponseChunk:
		var m AnalyzeChunk
		if err := decodeInto(typ, data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeAnalyzeResponseDone:
		var m AnalyzeDone
		if err := decodeInto(typ, data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, typ)
}

func decodeInto(tag string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", tag, err)
	}
	return nil
}
