// Package transport adapts this module's Annex-B H.264 output to a pion
// WebRTC video track, and turns viewer RTCP feedback into a forced keyframe
// request on the underlying Encoder. SDP negotiation and ICE gathering
// remain the caller's responsibility; this package only owns the video
// track and its RTCP drain loop, the one corner of the ICE/STUN/SDP/RTP
// stack spec.md gives a concrete hook for.
package transport

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/breeze-rmm/h264enc/internal/encoder"
	"github.com/breeze-rmm/h264enc/internal/logging"
)

var log = logging.L("transport")

// keyframeRateLimit prevents a burst of PLI/FIR packets (common right after
// a viewer (re)joins) from forcing more than one keyframe in quick
// succession.
const keyframeRateLimit = 500 * time.Millisecond

// Track wires one Encoder's output to one WebRTC peer connection's video
// track, and that peer's RTCP feedback back into the encoder. Grounded on
// desktop/webrtc.go's Session: the H264 TrackLocalStaticSample construction
// (profile-level-id fmtp line), AddTrack, and the PLI/FIR-draining goroutine
// spawned right after — minus everything webrtc.go does beyond the
// video/RTCP path (data channels, screen capture, audio, input handling),
// which are out of scope here.
type Track struct {
	id    string
	local *webrtc.TrackLocalStaticSample
	enc   encoder.Encoder
}

// NewTrack creates an H264 video track, adds it to pc, and starts draining
// RTCP on the resulting sender so PictureLossIndication/FullIntraRequest
// packets force a keyframe on enc. The returned Track is tagged with a
// fresh session id used for log correlation, the same role uuid plays
// throughout the teacher's internal/remote packages.
func NewTrack(pc *webrtc.PeerConnection, enc encoder.Encoder) (*Track, error) {
	id := uuid.NewString()

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeH264,
			ClockRate: 90000,
			// Baseline profile, CABAC-free, matches a software/CPU encoder's
			// typical default; a hardware backend negotiating a richer
			// profile is free to override this on its own track.
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
		},
		"video",
		"h264enc-"+id,
	)
	if err != nil {
		return nil, fmt.Errorf("transport: new video track: %w", err)
	}

	sender, err := pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("transport: add track: %w", err)
	}

	t := &Track{id: id, local: local, enc: enc}
	go t.drainRTCP(sender)
	logging.WithSession(log, id).Info("video track created")
	return t, nil
}

// drainRTCP reads RTCP packets off sender until the peer connection closes
// it (Read returns an error), so the sender's RTCP buffer never backs up.
// A PLI or FIR is treated identically: both mean "the decoder needs a fresh
// IDR", rate-limited so a burst of feedback only forces one.
func (t *Track) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	var lastKeyframe time.Time
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		if !isKeyframeRequest(pkts) {
			continue
		}
		if time.Since(lastKeyframe) < keyframeRateLimit {
			continue
		}
		lastKeyframe = time.Now()
		if err := t.enc.ForceKeyframe(); err != nil {
			logging.WithSession(log, t.id).Warn("force keyframe failed", logging.KeyError, err)
		}
	}
}

// isKeyframeRequest reports whether pkts contains a PictureLossIndication or
// FullIntraRequest, the two RTCP feedback messages a viewer sends when its
// decoder needs a fresh IDR.
func isKeyframeRequest(pkts []rtcp.Packet) bool {
	for _, p := range pkts {
		switch p.(type) {
		case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
			return true
		}
	}
	return false
}

// WriteSample delivers one Annex-B access unit — a blob returned from
// Encoder.PollResult or WaitResult — to the track as a single pion media
// sample of the given duration.
func (t *Track) WriteSample(blob []byte, duration time.Duration) error {
	if err := t.local.WriteSample(media.Sample{Data: blob, Duration: duration}); err != nil {
		return fmt.Errorf("transport: write sample: %w", err)
	}
	return nil
}

// ID returns the session id this track was tagged with at creation, for the
// caller's own log correlation.
func (t *Track) ID() string {
	return t.id
}
