package relay

import (
	"errors"
	"sync"
)

type fakeEndpoint struct {
	mu          sync.Mutex
	id          string
	open        bool
	attachment  []byte
	sent        [][]byte
	closeCode   int
	closeReason string
	closes      int
	sendErr     error
}

func newFakeEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{id: id, open: true}
}

func (f *fakeEndpoint) ID() string { return f.id }

func (f *fakeEndpoint) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return errors.New("closed")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeEndpoint) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if !f.open {
		return
	}
	f.open = false
	f.closeCode, f.closeReason = code, reason
}

func (f *fakeEndpoint) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeEndpoint) Attachment() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachment
}

func (f *fakeEndpoint) SetAttachment(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachment = b
}

func (f *fakeEndpoint) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// drop simulates an abnormal close seen by the transport, not by the relay.
func (f *fakeEndpoint) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}

type staticSource []Endpoint

func (s staticSource) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(s))
	for _, ep := range s {
		if ep.IsOpen() {
			out = append(out, ep)
		}
	}
	return out
}
