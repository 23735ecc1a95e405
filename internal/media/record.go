package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

var ErrUnsupportedCodec = errors.New("unsupported codec for recording")

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// RecordingPath is the file a track is recorded to inside dir.
func RecordingPath(dir string, t Track) string {
	ext := ".h264"
	if t.Kind() == KindAudio {
		ext = ".ogg"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", t.Kind(), sanitize(t.ID()), ext))
}

// NewRecordingSink opens a file sink for t: H.264 video goes to an Annex-B
// file and Opus audio to an Ogg container.
func NewRecordingSink(dir string, t Track) (Sink, error) {
	path := RecordingPath(dir, t)
	switch {
	case strings.EqualFold(t.MimeType(), webrtc.MimeTypeH264):
		return h264writer.New(path)
	case strings.EqualFold(t.MimeType(), webrtc.MimeTypeOpus):
		return oggwriter.New(path, opusSampleRate, opusChannels)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, t.MimeType())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
