package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/adapters/rtc"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrRelayClosed = errors.New("relay closed the connection")

type BroadcasterOptions struct {
	StreamID string
	WebRTC   webrtc.Configuration
	// Interval between synthetic RTP packets.
	Interval time.Duration
}

type peer struct {
	conn  *rtc.WebRTCConnection
	track *OutTrack
}

// Broadcaster publishes a stream. The relay hands one stored offer to every
// joiner, so each offer is bound to the first answer that comes back and a
// fresh one is published for the next viewer.
type Broadcaster struct {
	client *Client
	opts   BroadcasterOptions
	fanout *Fanout

	mu      sync.Mutex
	pending *peer
	peers   map[string]*peer
}

func NewBroadcaster(client *Client, opts BroadcasterOptions) *Broadcaster {
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	return &Broadcaster{
		client: client,
		opts:   opts,
		fanout: NewFanout(),
		peers:  make(map[string]*peer),
	}
}

func (b *Broadcaster) Run(ctx context.Context) error {
	defer b.closeAll()
	if err := b.arm(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.fanout.Pump(gctx, b.opts.Interval)
	})
	g.Go(func() error {
		return b.loop(gctx)
	})
	return g.Wait()
}

// Viewers returns the number of bound viewer peers.
func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

func (b *Broadcaster) loop(ctx context.Context) error {
	logger := log.With().Str("module", "probe.broadcast").Str("stream", b.opts.StreamID).Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-b.client.Incoming():
			if !ok {
				return ErrRelayClosed
			}
			var err error
			switch msg.Event {
			case eventOfferStored:
				logger.Info().Msg("offer stored, waiting for a viewer")
			case eventStreamAnswer:
				err = b.handleAnswer(msg.Data)
			case eventICECandidate:
				b.handleCandidate(msg.Data)
			case eventViewerCount:
				var vc viewerCount
				if json.Unmarshal(msg.Data, &vc) == nil {
					logger.Info().Int("count", vc.Count).Msg("viewer count")
				}
			case eventError:
				var e errorMessage
				_ = json.Unmarshal(msg.Data, &e)
				logger.Warn().Str("message", e.Message).Msg("relay error")
			default:
				logger.Debug().Str("event", msg.Event).Msg("ignored")
			}
			if err != nil {
				return err
			}
		}
	}
}

// arm publishes a fresh offer backed by a new peer connection.
func (b *Broadcaster) arm() error {
	conn, err := rtc.NewWebRTCConnection(b.opts.WebRTC, "broadcast-"+b.opts.StreamID)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "live-probe",
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("new track: %w", err)
	}
	sender, err := conn.AddLocalTrack(track)
	if err != nil {
		conn.Close()
		return fmt.Errorf("add track: %w", err)
	}
	go drainRTCP(sender)

	offer, err := conn.CreateOffer()
	if err != nil {
		conn.Close()
		return fmt.Errorf("create offer: %w", err)
	}

	b.mu.Lock()
	prev := b.pending
	b.pending = &peer{conn: conn, track: NewOutTrack(track)}
	b.mu.Unlock()
	if prev != nil {
		prev.conn.Close()
	}

	return b.client.Emit(eventStreamOffer, sessionDescription{
		StreamID: b.opts.StreamID,
		SDP:      offer.SDP,
		Type:     offer.Type.String(),
	})
}

func (b *Broadcaster) handleAnswer(data json.RawMessage) error {
	var answer sessionDescription
	if err := json.Unmarshal(data, &answer); err != nil {
		log.Warn().Err(err).Str("module", "probe.broadcast").Msg("malformed answer")
		return nil
	}

	b.mu.Lock()
	p := b.pending
	b.pending = nil
	b.mu.Unlock()
	if p == nil {
		log.Warn().Str("module", "probe.broadcast").Str("user", answer.UserID).Msg("answer without pending offer")
		return b.arm()
	}

	err := p.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
	if err != nil {
		log.Warn().Err(err).Str("module", "probe.broadcast").Str("user", answer.UserID).Msg("answer rejected")
		p.conn.Close()
		return b.arm()
	}

	user := answer.UserID
	p.conn.OnClosed(func() {
		p.track.MarkDelete()
		b.mu.Lock()
		if b.peers[user] == p {
			delete(b.peers, user)
		}
		b.mu.Unlock()
	})

	b.mu.Lock()
	prev := b.peers[user]
	b.peers[user] = p
	b.mu.Unlock()
	b.fanout.Add(user, p.track)
	if prev != nil {
		prev.conn.Close()
	}
	log.Info().Str("module", "probe.broadcast").Str("user", user).Int("tracks", b.fanout.Len()).Msg("viewer bound")

	return b.arm()
}

func (b *Broadcaster) handleCandidate(data json.RawMessage) {
	var c iceCandidate
	if err := json.Unmarshal(data, &c); err != nil {
		log.Warn().Err(err).Str("module", "probe.broadcast").Msg("malformed candidate")
		return
	}
	b.mu.Lock()
	p := b.peers[c.UserID]
	b.mu.Unlock()
	if p == nil {
		log.Debug().Str("module", "probe.broadcast").Str("user", c.UserID).Msg("candidate for unknown viewer")
		return
	}
	if err := p.conn.AddICECandidate(c.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "probe.broadcast").Str("user", c.UserID).Msg("add candidate")
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	conns := make([]*rtc.WebRTCConnection, 0, len(b.peers)+1)
	for _, p := range b.peers {
		conns = append(conns, p.conn)
	}
	if b.pending != nil {
		conns = append(conns, b.pending.conn)
		b.pending = nil
	}
	b.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// drainRTCP keeps interceptors running; the probe has no use for the reports.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
