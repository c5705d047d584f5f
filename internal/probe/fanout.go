package probe

import (
	"context"
	"maps"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateDelete
)

// OutTrack is the local track feeding one viewer.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) State() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// Fanout writes one synthetic RTP stream to every attached viewer track.
type Fanout struct {
	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	ssrc uint32
	seq  uint16
	ts   uint32
}

func NewFanout() *Fanout {
	return &Fanout{
		outTracks: make(map[string]*OutTrack),
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.UintN(1 << 16)),
	}
}

func (f *Fanout) Add(viewer string, ot *OutTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.outTracks[viewer]; ok {
		prev.MarkDelete()
	}
	f.outTracks[viewer] = ot
}

// MarkDelete flags the track of viewer; it is pruned on the next write.
func (f *Fanout) MarkDelete(viewer string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if ot, ok := f.outTracks[viewer]; ok {
		ot.MarkDelete()
	}
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.outTracks)
}

// Pump emits one packet every interval until ctx is done. The clock rate
// is the 90kHz video clock.
func (f *Fanout) Pump(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	step := uint32(interval.Seconds() * 90000)
	for {
		select {
		case <-ctx.Done():
			f.markAllDelete()
			return nil
		case <-ticker.C:
			f.forward(f.next(step))
		}
	}
}

func (f *Fanout) next(step uint32) *rtp.Packet {
	f.seq++
	f.ts += step
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: f.seq,
			Timestamp:      f.ts,
			SSRC:           f.ssrc,
		},
		// VP8 payload descriptor (S bit) followed by filler.
		Payload: []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a},
	}
}

func (f *Fanout) forward(pkt *rtp.Packet) {
	f.mu.RLock()
	snapshot := maps.Clone(f.outTracks)
	f.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for viewer, ot := range snapshot {
		switch ot.State() {
		case TrackStateDelete:
			dirty = append(dirty, viewer)
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				log.Error().
					Err(err).
					Str("module", "probe.fanout").
					Str("viewer", viewer).
					Msg("write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, viewer)
			}
		}
	}

	if len(dirty) > 0 {
		f.cleanupDeleted(snapshot, dirty)
	}
}

// cleanupDeleted removes dirty tracks unless they were replaced meanwhile.
func (f *Fanout) cleanupDeleted(seen map[string]*OutTrack, dirty []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, viewer := range dirty {
		if f.outTracks[viewer] == seen[viewer] {
			delete(f.outTracks, viewer)
		}
	}
}

func (f *Fanout) markAllDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ot := range f.outTracks {
		ot.MarkDelete()
	}
}
