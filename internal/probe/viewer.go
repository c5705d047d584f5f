package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Live/internal/adapters/rtc"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type ViewerOptions struct {
	StreamID string
	UserID   string
	WebRTC   webrtc.Configuration
	// Say is sent as a chat message right after joining, if set.
	Say string
	// ReportEvery logs the received packet count; zero disables it.
	ReportEvery time.Duration
}

// Viewer joins a stream, answers the stored offer and counts the RTP
// packets it receives.
type Viewer struct {
	client *Client
	opts   ViewerOptions

	mu     sync.Mutex
	conn   *rtc.WebRTCConnection
	ready  bool
	queued []webrtc.ICECandidateInit

	packets   atomic.Uint64
	lastCount atomic.Int64
}

func NewViewer(client *Client, opts ViewerOptions) *Viewer {
	return &Viewer{client: client, opts: opts}
}

func (v *Viewer) Packets() uint64 {
	return v.packets.Load()
}

// ViewerCount is the last count announced for the stream.
func (v *Viewer) ViewerCount() int {
	return int(v.lastCount.Load())
}

func (v *Viewer) Run(ctx context.Context) error {
	defer v.closeConn()
	ref := streamRef{StreamID: v.opts.StreamID, UserID: v.opts.UserID}
	if err := v.client.Emit(eventJoinStream, ref); err != nil {
		return err
	}
	if v.opts.Say != "" {
		if err := v.client.Emit(eventSendMessage, chatMessage{
			StreamID: v.opts.StreamID,
			UserID:   v.opts.UserID,
			Content:  v.opts.Say,
		}); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.loop(gctx)
	})
	if v.opts.ReportEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(v.opts.ReportEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					log.Info().Str("module", "probe.watch").Uint64("packets", v.Packets()).Int("viewers", v.ViewerCount()).Msg("report")
				}
			}
		})
	}
	err := g.Wait()
	if err == nil {
		_ = v.client.Emit(eventLeaveStream, ref)
	}
	return err
}

func (v *Viewer) loop(ctx context.Context) error {
	logger := log.With().Str("module", "probe.watch").Str("stream", v.opts.StreamID).Str("user", v.opts.UserID).Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-v.client.Incoming():
			if !ok {
				return ErrRelayClosed
			}
			switch msg.Event {
			case eventStreamOffer:
				if err := v.handleOffer(msg.Data); err != nil {
					logger.Error().Err(err).Msg("answer failed")
				}
			case eventICECandidate:
				v.handleCandidate(msg.Data)
			case eventViewerCount:
				var vc viewerCount
				if json.Unmarshal(msg.Data, &vc) == nil {
					v.lastCount.Store(int64(vc.Count))
					logger.Info().Int("count", vc.Count).Msg("viewer count")
				}
			case eventNewMessage:
				var m receivedMessage
				if json.Unmarshal(msg.Data, &m) == nil {
					logger.Info().Str("from", m.UserID).Str("type", m.Type).Msg(m.Content)
				}
			case eventStreamStatus:
				var s streamStatus
				if json.Unmarshal(msg.Data, &s) == nil {
					logger.Info().Str("status", s.Status).Msg("stream status")
				}
			case eventBroadcasterDisconnected:
				logger.Warn().Uint64("packets", v.Packets()).Msg("broadcaster disconnected")
				v.closeConn()
			case eventError:
				var e errorMessage
				_ = json.Unmarshal(msg.Data, &e)
				logger.Warn().Str("message", e.Message).Msg("relay error")
			default:
				logger.Debug().Str("event", msg.Event).Msg("ignored")
			}
		}
	}
}

func (v *Viewer) handleOffer(data json.RawMessage) error {
	var offer sessionDescription
	if err := json.Unmarshal(data, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}

	conn, err := rtc.NewWebRTCConnection(v.opts.WebRTC, "watch-"+v.opts.UserID)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go v.consume(track)
	})
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		v.mu.Lock()
		if v.conn != conn {
			v.mu.Unlock()
			return
		}
		if !v.ready {
			v.queued = append(v.queued, ci)
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
		v.emitCandidate(ci)
	})

	v.mu.Lock()
	prev := v.conn
	v.conn = conn
	v.ready = false
	v.queued = nil
	v.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	answer, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP})
	if err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	if err := v.client.Emit(eventStreamAnswer, sessionDescription{
		StreamID: v.opts.StreamID,
		UserID:   v.opts.UserID,
		SDP:      answer.SDP,
		Type:     answer.Type.String(),
	}); err != nil {
		return err
	}

	// the broadcaster can apply candidates only once it has the answer
	v.mu.Lock()
	var queued []webrtc.ICECandidateInit
	if v.conn == conn {
		v.ready = true
		queued = v.queued
		v.queued = nil
	}
	v.mu.Unlock()
	for _, ci := range queued {
		v.emitCandidate(ci)
	}
	return nil
}

func (v *Viewer) emitCandidate(ci webrtc.ICECandidateInit) {
	err := v.client.Emit(eventICECandidate, iceCandidate{
		StreamID:  v.opts.StreamID,
		UserID:    v.opts.UserID,
		Candidate: ci,
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "probe.watch").Msg("candidate not sent")
	}
}

func (v *Viewer) handleCandidate(data json.RawMessage) {
	var c iceCandidate
	if err := json.Unmarshal(data, &c); err != nil {
		log.Warn().Err(err).Str("module", "probe.watch").Msg("malformed candidate")
		return
	}
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.AddICECandidate(c.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "probe.watch").Msg("add candidate")
	}
}

func (v *Viewer) consume(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		v.packets.Add(1)
	}
}

func (v *Viewer) closeConn() {
	v.mu.Lock()
	conn := v.conn
	v.conn = nil
	v.ready = false
	v.queued = nil
	v.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
