package rtc

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/remoterg/internal/app/orch"
)

// frameSample is the decoded frame counter seen at one poll. pion only
// reports the cumulative count, so the frame rate comes from two samples.
type frameSample struct {
	decoded uint32
	at      time.Time
}

// Stats folds the pion stats report into one sample: inbound RTP counters
// summed over tracks, video frame metrics, and the RTT of the nominated
// candidate pair.
func (c *Connection) Stats(ctx context.Context) (orch.Stats, error) {
	if err := ctx.Err(); err != nil {
		return orch.Stats{}, err
	}
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out, frames := summarize(c.pc.GetStats(), time.Now(), c.lastFrames)
	c.lastFrames = frames
	return out, nil
}

func summarize(report webrtc.StatsReport, at time.Time, prev *frameSample) (orch.Stats, *frameSample) {
	out := orch.Stats{At: at}
	var frames *frameSample
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			out.PacketsReceived += st.PacketsReceived
			out.PacketsLost += st.PacketsLost
			out.BytesReceived += st.BytesReceived
			if st.Jitter > out.Jitter {
				out.Jitter = st.Jitter
			}
			if st.Kind == "video" {
				frames = &frameSample{decoded: st.FramesDecoded, at: at}
				out.FrameWidth, out.FrameHeight = st.FrameWidth, st.FrameHeight
			}
		case webrtc.ICECandidatePairStats:
			if !st.Nominated {
				continue
			}
			out.RoundTripTime = time.Duration(st.CurrentRoundTripTime * float64(time.Second))
			out.CandidatePair = st.LocalCandidateID + "/" + st.RemoteCandidateID
		}
	}
	if frames != nil && prev != nil && frames.decoded >= prev.decoded {
		if dt := frames.at.Sub(prev.at).Seconds(); dt > 0 {
			out.FramesPerSecond = float64(frames.decoded-prev.decoded) / dt
		}
	}
	return out, frames
}
