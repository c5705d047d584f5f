package probe

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrack(t *testing.T) *OutTrack {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	require.NoError(t, err)
	return NewOutTrack(track)
}

func TestFanout_PrunesDeletedTracks(t *testing.T) {
	f := NewFanout()
	live, dead := newTrack(t), newTrack(t)
	f.Add("live", live)
	f.Add("dead", dead)
	f.MarkDelete("dead")
	f.MarkDelete("unknown")

	f.forward(f.next(3000))

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, TrackStateOk, live.State())
	assert.Equal(t, TrackStateDelete, dead.State())
}

func TestFanout_AddReplacesTrack(t *testing.T) {
	f := NewFanout()
	first, second := newTrack(t), newTrack(t)
	f.Add("alice", first)
	f.Add("alice", second)

	f.forward(f.next(3000))

	assert.Equal(t, TrackStateDelete, first.State())
	assert.Equal(t, TrackStateOk, second.State())
	assert.Equal(t, 1, f.Len())
}

func TestFanout_PacketSequence(t *testing.T) {
	f := NewFanout()

	a := f.next(3000)
	b := f.next(3000)

	assert.Equal(t, a.SequenceNumber+1, b.SequenceNumber)
	assert.Equal(t, a.Timestamp+3000, b.Timestamp)
	assert.Equal(t, a.SSRC, b.SSRC)
	assert.Equal(t, uint8(2), a.Version)
}

func TestFanout_PumpStopsWithContext(t *testing.T) {
	f := NewFanout()
	ot := newTrack(t)
	f.Add("alice", ot)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Pump(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
	assert.Equal(t, TrackStateDelete, ot.State())
}
