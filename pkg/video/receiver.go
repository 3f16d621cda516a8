// Package video receives a browser webcam over WebRTC and publishes decoded
// frames to a camera mailbox.
package video

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"
	"github.com/teslashibe/go-mimic/internal/log"
	"github.com/teslashibe/go-mimic/pkg/camera"
	"github.com/teslashibe/go-mimic/pkg/debug"
)

// Config controls the WebRTC receiver.
type Config struct {
	ICEServers []string // STUN/TURN URLs; empty for host candidates only

	// GatherTimeout bounds ICE gathering before the answer is returned.
	GatherTimeout time.Duration

	// KeyframeInterval is how often a keyframe is requested until the
	// first image decodes.
	KeyframeInterval time.Duration

	// MaxSessions caps concurrent peers. 0 means 1.
	MaxSessions int

	JPEGQuality int // ffmpeg -q:v
}

// DefaultConfig returns a receiver config for a single local browser.
func DefaultConfig() Config {
	return Config{
		GatherTimeout:    5 * time.Second,
		KeyframeInterval: 2 * time.Second,
		MaxSessions:      1,
		JPEGQuality:      3,
	}
}

// Stats counts receiver activity.
type Stats struct {
	Sessions  int    `json:"sessions"`
	Packets   uint64 `json:"packets"`
	Samples   uint64 `json:"samples"`
	Frames    uint64 `json:"frames"`
	Discarded uint64 `json:"discarded"`
}

// Receiver answers WebRTC offers from camera clients.
type Receiver struct {
	config     Config
	sink       camera.Publisher
	newDecoder DecoderFactory

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	packets   atomic.Uint64
	samples   atomic.Uint64
	frames    atomic.Uint64
	discarded atomic.Uint64
}

// NewReceiver creates a receiver publishing to sink. A nil factory uses
// ffmpeg.
func NewReceiver(cfg Config, sink camera.Publisher, factory DecoderFactory) *Receiver {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultConfig().GatherTimeout
	}
	if factory == nil {
		factory = FFmpegFactory(cfg.JPEGQuality)
	}
	return &Receiver{
		config:     cfg,
		sink:       sink,
		newDecoder: factory,
		sessions:   make(map[string]*session),
	}
}

type session struct {
	id      string
	pc      *webrtc.PeerConnection
	started time.Time
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// HandleOffer applies a browser's SDP offer and returns the answer with
// gathered candidates. The new session replaces the oldest when the
// session cap is reached.
func (r *Receiver) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, string, error) {
	if offer.Type != webrtc.SDPTypeOffer || strings.TrimSpace(offer.SDP) == "" {
		return webrtc.SessionDescription{}, "", fmt.Errorf("%w: type %q", ErrBadOffer, offer.Type)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return webrtc.SessionDescription{}, "", ErrClosed
	}
	r.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(r.webrtcConfig())
	if err != nil {
		return webrtc.SessionDescription{}, "", fmt.Errorf("peer connection: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      uuid.New().String(),
		pc:      pc,
		started: time.Now(),
		cancel:  cancel,
	}

	// We want to receive video
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		r.closeSession(s)
		return webrtc.SessionDescription{}, "", err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info("webrtc track", "session", s.id, "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeH264) {
			log.Warn("unsupported video codec", "session", s.id, "codec", track.Codec().MimeType)
			return
		}
		go r.handleVideoTrack(sctx, s, track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("webrtc connection state", "session", s.id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			r.closeSession(s)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		r.closeSession(s)
		return webrtc.SessionDescription{}, "", fmt.Errorf("%w: %v", ErrBadOffer, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		r.closeSession(s)
		return webrtc.SessionDescription{}, "", fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		r.closeSession(s)
		return webrtc.SessionDescription{}, "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-time.After(r.config.GatherTimeout):
		log.Warn("ice gathering timed out, answering with partial candidates", "session", s.id)
	case <-ctx.Done():
		r.closeSession(s)
		return webrtc.SessionDescription{}, "", ctx.Err()
	}

	r.register(s)
	return *pc.LocalDescription(), s.id, nil
}

func (r *Receiver) webrtcConfig() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(r.config.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: r.config.ICEServers}}
	}
	return cfg
}

func (r *Receiver) register(s *session) {
	var evict []*session

	r.mu.Lock()
	for len(r.sessions) >= r.config.MaxSessions {
		oldest := r.oldestLocked()
		if oldest == nil {
			break
		}
		delete(r.sessions, oldest.id)
		evict = append(evict, oldest)
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	for _, old := range evict {
		log.Info("replacing webrtc session", "old", old.id, "new", s.id)
		r.closeSession(old)
	}
}

func (r *Receiver) oldestLocked() *session {
	var oldest *session
	for _, s := range r.sessions {
		if oldest == nil || s.started.Before(oldest.started) {
			oldest = s
		}
	}
	return oldest
}

func (r *Receiver) closeSession(s *session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.pc.Close()

	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
}

// handleVideoTrack reassembles access units from RTP and feeds the decoder.
func (r *Receiver) handleVideoTrack(ctx context.Context, s *session, track *webrtc.TrackRemote) {
	dec, err := r.newDecoder(ctx)
	if err != nil {
		log.Error("video decoder unavailable", "session", s.id, "error", err)
		return
	}
	defer dec.Close()

	var firstFrame atomic.Bool
	go r.requestKeyframes(ctx, s, uint32(track.SSRC()), &firstFrame)
	go r.publishFrames(ctx, s, dec, &firstFrame)

	sb := samplebuilder.New(256, &codecs.H264Packet{}, track.Codec().ClockRate)

	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			debug.Log("video: session %s track ended: %v\n", s.id, err)
			return
		}
		r.packets.Add(1)

		sb.Push(pkt)
		for sample := sb.Pop(); sample != nil; sample = sb.Pop() {
			r.samples.Add(1)
			if err := dec.Write(sample.Data); err != nil {
				log.Warn("video decode write failed", "session", s.id, "error", err)
				return
			}
		}
	}
}

// requestKeyframes sends PLIs until the decoder produces its first image.
func (r *Receiver) requestKeyframes(ctx context.Context, s *session, ssrc uint32, done *atomic.Bool) {
	interval := r.config.KeyframeInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if done.Load() {
			return
		}
		if err := s.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
			debug.Log("video: PLI failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// publishFrames forwards decoded images to the sink. Timestamps are seconds
// since the session started, which is distinct per decoded image.
func (r *Receiver) publishFrames(ctx context.Context, s *session, dec Decoder, first *atomic.Bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case img, ok := <-dec.Frames():
			if !ok {
				return
			}
			w, h, good := inspectJPEG(img)
			if !good {
				r.discarded.Add(1)
				continue
			}
			if first.CompareAndSwap(false, true) {
				log.Info("first webrtc frame", "session", s.id, "width", w, "height", h)
			}
			r.frames.Add(1)
			if r.sink != nil {
				r.sink.Publish(camera.Frame{
					Data:      img,
					Width:     w,
					Height:    h,
					Timestamp: time.Since(s.started).Seconds(),
				})
			}
		}
	}
}

// SessionCount returns the number of live sessions.
func (r *Receiver) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stats returns receiver counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Sessions:  r.SessionCount(),
		Packets:   r.packets.Load(),
		Samples:   r.samples.Load(),
		Frames:    r.frames.Load(),
		Discarded: r.discarded.Load(),
	}
}

// Close tears down all sessions. Later offers fail with ErrClosed.
func (r *Receiver) Close() error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		r.closeSession(s)
	}
	return nil
}
