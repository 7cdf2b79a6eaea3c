// Package localmedia holds the local tracks shared by every peer link of
// a call. Enabling or disabling a kind affects all links at once.
package localmedia

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var ErrNoTracks = errors.New("localmedia: neither audio nor video requested")

const (
	frameDuration      = 20 * time.Millisecond
	videoFrameDuration = 100 * time.Millisecond
)

var (
	// opusSilence is a single Opus frame carrying 20ms of silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// vp8Placeholder is a 16x16 VP8 key frame header with an empty partition.
	vp8Placeholder = []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00, 0x00, 0x00}
)

type Options struct {
	Audio    bool
	Video    bool
	StreamID string
}

type Media struct {
	audio   *webrtc.TrackLocalStaticSample
	video   *webrtc.TrackLocalStaticSample
	audioOn atomic.Bool
	videoOn atomic.Bool

	audioFrames atomic.Uint64
	videoFrames atomic.Uint64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open creates the requested tracks and starts feeding them. The headless
// client has no capture device, so audio carries silence and video a
// placeholder frame. Tracks keep flowing while disabled: remote peers only
// see a track once its first packet arrives.
func Open(ctx context.Context, opts Options) (*Media, error) {
	if !opts.Audio && !opts.Video {
		return nil, ErrNoTracks
	}
	if opts.StreamID == "" {
		opts.StreamID = "hush"
	}

	m := &Media{}
	var err error
	if opts.Audio {
		m.audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", opts.StreamID)
		if err != nil {
			return nil, err
		}
		m.audioOn.Store(true)
	}
	if opts.Video {
		m.video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", opts.StreamID)
		if err != nil {
			return nil, err
		}
		m.videoOn.Store(true)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	if m.audio != nil {
		m.wg.Add(1)
		go m.pump(ctx, m.audio, opusSilence, frameDuration, &m.audioFrames)
	}
	if m.video != nil {
		m.wg.Add(1)
		go m.pump(ctx, m.video, vp8Placeholder, videoFrameDuration, &m.videoFrames)
	}
	return m, nil
}

func (m *Media) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if m.audio != nil {
		out = append(out, m.audio)
	}
	if m.video != nil {
		out = append(out, m.video)
	}
	return out
}

func (m *Media) Has(kind webrtc.RTPCodecType) bool {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return m.audio != nil
	case webrtc.RTPCodecTypeVideo:
		return m.video != nil
	}
	return false
}

func (m *Media) flag(kind webrtc.RTPCodecType) *atomic.Bool {
	if kind == webrtc.RTPCodecTypeVideo {
		return &m.videoOn
	}
	return &m.audioOn
}

func (m *Media) Enabled(kind webrtc.RTPCodecType) bool {
	return m.Has(kind) && m.flag(kind).Load()
}

func (m *Media) SetEnabled(kind webrtc.RTPCodecType, on bool) {
	if m.Has(kind) {
		m.flag(kind).Store(on)
	}
}

// Toggle flips kind and returns the new state.
func (m *Media) Toggle(kind webrtc.RTPCodecType) bool {
	if !m.Has(kind) {
		return false
	}
	f := m.flag(kind)
	for {
		cur := f.Load()
		if f.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

// Close stops the pump and waits for it to exit.
func (m *Media) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// Frames counts samples written to the kind's track.
func (m *Media) Frames(kind webrtc.RTPCodecType) uint64 {
	if kind == webrtc.RTPCodecTypeVideo {
		return m.videoFrames.Load()
	}
	return m.audioFrames.Load()
}

// pump writes frame every d. A disabled kind has no live source to mute,
// so it carries the same silence or placeholder.
func (m *Media) pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, frame []byte, d time.Duration, written *atomic.Uint64) {
	defer m.wg.Done()
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: frame, Duration: d}); err != nil {
				log.Debug().Str("module", "localmedia").Err(err).Str("track", track.ID()).Msg("write sample")
				continue
			}
			written.Add(1)
		}
	}
}
