package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Hush/internal/client/mesh"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func DefaultWebRTCConfig(stun []string) webrtc.Configuration {
	if len(stun) == 0 {
		stun = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	}
}

// Factory builds one WebRTCConnection per remote participant. Every
// connection carries the same local tracks.
type Factory struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	tracks []webrtc.TrackLocal
}

func NewFactory(cfg webrtc.Configuration, tracks []webrtc.TrackLocal, level zerolog.Level) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	s := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Level: level}}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s))
	return &Factory{api: api, cfg: cfg, tracks: tracks}, nil
}

// New satisfies mesh.TransportFactory.
func (f *Factory) New(remote domain.EndpointID, ev mesh.TransportEvents) (mesh.Transport, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:     pc,
		remote: remote,
		cancel: cancel,
		logger: log.With().Str("module", "webrtc").Str("peer", string(remote)).Logger(),
	}

	for _, t := range f.tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		go drainRTCP(sender)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks end of gathering; nothing to send for it
		if cand != nil && ev.OnCandidate != nil {
			ev.OnCandidate(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed && ev.OnFailed != nil {
			ev.OnFailed()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		rt := &RemoteTrack{track: track}
		go rt.consume(ctx)
		if ev.OnTrack != nil {
			ev.OnTrack(rt)
		}
	})

	return c, nil
}

// WebRTCConnection adapts a pion PeerConnection to mesh.Transport.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.EndpointID
	cancel context.CancelFunc
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) AcceptAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddCandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.pc.Close()
		if c.closeErr != nil {
			c.logger.Error().Err(c.closeErr).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
	return c.closeErr
}

// RemoteTrack is a received track. Its packets are read and counted so
// pion's receive buffers never back up.
type RemoteTrack struct {
	track   *webrtc.TrackRemote
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (t *RemoteTrack) ID() string                { return t.track.ID() }
func (t *RemoteTrack) StreamID() string          { return t.track.StreamID() }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.track.Kind() }
func (t *RemoteTrack) Packets() uint64           { return t.packets.Load() }
func (t *RemoteTrack) Bytes() uint64             { return t.bytes.Load() }

func (t *RemoteTrack) consume(ctx context.Context) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		n, _, err := t.track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("module", "webrtc").Err(err).Str("track_id", t.track.ID()).Msg("remote track ended")
			}
			return
		}
		t.packets.Add(1)
		t.bytes.Add(uint64(n))
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
