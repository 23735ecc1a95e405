package control

import (
	"errors"
	"fmt"
)

var (
	ErrChunkWithoutMetadata = errors.New("screenshot chunk without metadata")
	ErrScreenshotOverflow   = errors.New("screenshot chunk exceeds announced size")
	ErrInvalidScreenshot    = errors.New("invalid screenshot metadata")
)

// MaxScreenshotSize bounds the buffer a metadata message may announce.
const MaxScreenshotSize = 64 << 20

type Screenshot struct {
	ID     string
	Format string
	Data   []byte
}

// Assembler reassembles one screenshot at a time from a metadata message
// followed by binary chunks summing to exactly the announced size.
type Assembler struct {
	meta *ScreenshotMetadata
	buf  []byte
}

// Begin starts a transfer. A transfer still pending is discarded and
// returned so the caller can report it.
func (a *Assembler) Begin(m ScreenshotMetadata) (discarded *ScreenshotMetadata, err error) {
	discarded = a.meta
	a.reset()
	if m.Size <= 0 || m.Size > MaxScreenshotSize {
		return discarded, fmt.Errorf("%w: size %d", ErrInvalidScreenshot, m.Size)
	}
	a.meta = &m
	a.buf = make([]byte, 0, m.Size)
	return discarded, nil
}

// Chunk appends binary data to the pending transfer. It returns the
// finished screenshot once exactly Size bytes have arrived.
func (a *Assembler) Chunk(data []byte) (*Screenshot, error) {
	if a.meta == nil {
		return nil, ErrChunkWithoutMetadata
	}
	if len(a.buf)+len(data) > a.meta.Size {
		id, size, got := a.meta.ID, a.meta.Size, len(a.buf)+len(data)
		a.reset()
		return nil, fmt.Errorf("%w: %s got %d of %d bytes", ErrScreenshotOverflow, id, got, size)
	}
	a.buf = append(a.buf, data...)
	if len(a.buf) < a.meta.Size {
		return nil, nil
	}
	shot := &Screenshot{ID: a.meta.ID, Format: a.meta.Format, Data: a.buf}
	a.meta, a.buf = nil, nil
	return shot, nil
}

// Pending reports the transfer in progress and how many bytes it holds.
func (a *Assembler) Pending() (ScreenshotMetadata, int, bool) {
	if a.meta == nil {
		return ScreenshotMetadata{}, 0, false
	}
	return *a.meta, len(a.buf), true
}

func (a *Assembler) reset() {
	a.meta, a.buf = nil, nil
}
