package orch

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu     sync.Mutex
	events []core.Outbound
	full   bool
	closed bool
}

func (s *fakeSink) Send(ev core.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return core.ErrBackpressure
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) named(name string) []core.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Outbound
	for _, ev := range s.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) errors() []string {
	var out []string
	for _, ev := range s.named(core.EventError) {
		out = append(out, ev.Data.(core.ErrorPayload).Message)
	}
	return out
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sinks map[core.ConnID]*fakeSink
}

func newHarness(t *testing.T, store core.Store) *harness {
	t.Helper()
	if store == nil {
		store = memory.New()
	}
	reg := app.NewRegistry()
	return &harness{
		t: t,
		o: &Orchestrator{
			Registry: reg,
			Sessions: app.NewSessionStore(),
			Presence: app.NewPresence(reg, store, 0),
			Store:    store,
			Policy:   app.KickPolicy{},
			Limiter:  app.NewRoomRateLimiter(0, 0),
		},
		sinks: make(map[core.ConnID]*fakeSink),
	}
}

func (h *harness) connect(id core.ConnID) *fakeSink {
	s := &fakeSink{}
	h.sinks[id] = s
	h.o.Connect(id, s)
	return s
}

func (h *harness) send(id core.ConnID, ev core.Inbound) {
	h.o.Dispatch(context.Background(), id, ev)
}

func (h *harness) offer(id core.ConnID, stream domain.StreamID, sdp string) {
	h.send(id, &core.StreamOffer{StreamID: stream, SDP: sdp, Type: "offer"})
}

func (h *harness) join(id core.ConnID, stream domain.StreamID, user domain.UserID) {
	h.send(id, &core.JoinStream{StreamID: stream, UserID: user})
}

func TestOrchestrator_OfferAckedToBroadcaster(t *testing.T) {
	h := newHarness(t, nil)
	b := h.connect("b")

	h.offer("b", "s1", "v=0 offer")

	acks := b.named(core.EventOfferStored)
	require.Len(t, acks, 1)
	assert.Equal(t, core.StreamRefPayload{StreamID: "s1"}, acks[0].Data)
	assert.True(t, h.o.Sessions.IsBroadcaster("s1", "b"))
}

func TestOrchestrator_JoinAfterOfferDeliversOffer(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("b")
	v := h.connect("v")
	h.offer("b", "s1", "v=0 offer")

	h.join("v", "s1", "alice")

	counts := v.named(core.EventViewerCount)
	require.Len(t, counts, 1)
	assert.Equal(t, core.ViewerCountPayload{Count: 1}, counts[0].Data)

	offers := v.named(core.EventStreamOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.SessionDescription{StreamID: "s1", SDP: "v=0 offer", Type: "offer"}, offers[0].Data)

	sess, ok := h.o.Sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, []core.ConnID{"v"}, sess.Viewers)
}

func TestOrchestrator_JoinBeforeOfferGetsNoOffer(t *testing.T) {
	h := newHarness(t, nil)
	v := h.connect("v")
	b := h.connect("b")

	h.join("v", "s1", "alice")
	h.offer("b", "s1", "late offer")

	assert.Len(t, v.named(core.EventViewerCount), 1)
	assert.Empty(t, v.named(core.EventStreamOffer))
	assert.Len(t, b.named(core.EventOfferStored), 1)

	sess, ok := h.o.Sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Empty(t, sess.Viewers)
}

func TestOrchestrator_ViewerCountGoesToWholeRoom(t *testing.T) {
	h := newHarness(t, nil)
	v1 := h.connect("v1")
	v2 := h.connect("v2")

	h.join("v1", "s1", "alice")
	h.join("v2", "s1", "bob")

	last := v1.named(core.EventViewerCount)
	require.Len(t, last, 2)
	assert.Equal(t, core.ViewerCountPayload{Count: 2}, last[1].Data)
	assert.Equal(t, []core.Outbound{{Event: core.EventViewerCount, Data: core.ViewerCountPayload{Count: 2}}}, v2.named(core.EventViewerCount))

	h.send("v2", &core.LeaveStream{StreamID: "s1", UserID: "bob"})

	last = v1.named(core.EventViewerCount)
	require.Len(t, last, 3)
	assert.Equal(t, core.ViewerCountPayload{Count: 1}, last[2].Data)
	assert.Len(t, v2.named(core.EventViewerCount), 1, "leaver is no longer a room member")
}

func TestOrchestrator_AnswerGoesToBroadcasterOnly(t *testing.T) {
	h := newHarness(t, nil)
	b := h.connect("b")
	v1 := h.connect("v1")
	v2 := h.connect("v2")
	h.offer("b", "s1", "offer")
	h.join("v1", "s1", "alice")
	h.join("v2", "s1", "bob")

	answer := &core.StreamAnswer{StreamID: "s1", UserID: "alice", SDP: "answer", Type: "answer"}
	h.send("v1", answer)

	got := b.named(core.EventStreamAnswer)
	require.Len(t, got, 1)
	assert.Equal(t, *answer, got[0].Data)
	assert.Empty(t, v1.named(core.EventStreamAnswer))
	assert.Empty(t, v2.named(core.EventStreamAnswer))
}

func TestOrchestrator_AnswerWithoutBroadcaster(t *testing.T) {
	h := newHarness(t, nil)
	v := h.connect("v")

	h.send("v", &core.StreamAnswer{StreamID: "s1", UserID: "alice", SDP: "answer", Type: "answer"})

	assert.Equal(t, []string{"No broadcaster found for this stream"}, v.errors())
}

func TestOrchestrator_CandidateRouting(t *testing.T) {
	h := newHarness(t, nil)
	b := h.connect("b")
	v1 := h.connect("v1")
	v2 := h.connect("v2")
	outsider := h.connect("x")
	h.offer("b", "s1", "offer")
	h.join("v1", "s1", "alice")
	h.join("v2", "s1", "bob")

	fromBroadcaster := &core.ICECandidate{StreamID: "s1", UserID: "host", Candidate: map[string]any{"candidate": "c1"}}
	h.send("b", fromBroadcaster)

	assert.Len(t, v1.named(core.EventICECandidate), 1)
	assert.Len(t, v2.named(core.EventICECandidate), 1)
	assert.Empty(t, b.named(core.EventICECandidate))
	assert.Empty(t, outsider.named(core.EventICECandidate))

	fromViewer := &core.ICECandidate{StreamID: "s1", UserID: "alice", Candidate: "candidate:1 1 udp"}
	h.send("v1", fromViewer)

	got := b.named(core.EventICECandidate)
	require.Len(t, got, 1)
	assert.Equal(t, *fromViewer, got[0].Data)
	assert.Len(t, v1.named(core.EventICECandidate), 1)
	assert.Len(t, v2.named(core.EventICECandidate), 1)
}

func TestOrchestrator_CandidateWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	v := h.connect("v")

	h.send("v", &core.ICECandidate{StreamID: "s1", UserID: "alice", Candidate: "c"})

	assert.Equal(t, []string{"No stream offer found"}, v.errors())
}

func TestOrchestrator_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		ev   core.Inbound
		want string
	}{
		{"join without user", &core.JoinStream{StreamID: "s1"}, "streamId and userId are required"},
		{"leave without stream", &core.LeaveStream{UserID: "alice"}, "streamId and userId are required"},
		{"chat without content", &core.SendMessage{StreamID: "s1", UserID: "alice"}, "streamId, userId, and content are required"},
		{"status without status", &core.StreamStatus{StreamID: "s1"}, "streamId and status are required"},
		{"offer without sdp", &core.StreamOffer{StreamID: "s1", Type: "offer"}, "streamId, sdp, and type are required"},
		{"answer without user", &core.StreamAnswer{StreamID: "s1", SDP: "x", Type: "answer"}, "Missing stream answer data"},
		{"candidate without candidate", &core.ICECandidate{StreamID: "s1", UserID: "alice"}, "Missing ICE candidate data"},
		{"candidate with empty string", &core.ICECandidate{StreamID: "s1", UserID: "alice", Candidate: ""}, "Missing ICE candidate data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			c := h.connect("c")

			h.send("c", tt.ev)

			assert.Equal(t, []string{tt.want}, c.errors())
			assert.Equal(t, 1, c.count())
		})
	}
}

func TestOrchestrator_StreamStatusFansOutToRoom(t *testing.T) {
	h := newHarness(t, nil)
	b := h.connect("b")
	v := h.connect("v")
	other := h.connect("o")
	h.join("v", "s1", "alice")
	h.join("o", "s2", "bob")

	h.send("b", &core.StreamStatus{StreamID: "s1", Status: "paused"})

	got := v.named(core.EventStreamStatus)
	require.Len(t, got, 1)
	assert.Equal(t, core.StreamStatus{StreamID: "s1", Status: "paused"}, got[0].Data)
	assert.Empty(t, b.named(core.EventStreamStatus), "sender is not in the room")
	assert.Empty(t, other.named(core.EventStreamStatus))
}

func TestOrchestrator_PingPong(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("c")

	h.send("c", &core.Ping{})

	assert.Len(t, c.named(core.EventPong), 1)
}

func TestOrchestrator_BroadcasterDisconnectNotifiesRoom(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("b")
	v1 := h.connect("v1")
	v2 := h.connect("v2")
	h.join("v1", "s1", "alice")
	h.offer("b", "s1", "offer")
	h.join("v2", "s1", "bob")

	h.o.Disconnect(context.Background(), "b")

	want := []core.Outbound{{Event: core.EventBroadcasterDisconnected, Data: core.StreamRefPayload{StreamID: "s1"}}}
	assert.Equal(t, want, v1.named(core.EventBroadcasterDisconnected))
	assert.Equal(t, want, v2.named(core.EventBroadcasterDisconnected))

	_, ok := h.o.Sessions.Snapshot("s1")
	assert.False(t, ok)
	_, ok = h.o.Registry.Sink("b")
	assert.False(t, ok)

	h.send("v1", &core.StreamAnswer{StreamID: "s1", UserID: "alice", SDP: "answer", Type: "answer"})
	h.send("v2", &core.ICECandidate{StreamID: "s1", UserID: "bob", Candidate: "c"})
	assert.Equal(t, []string{"No broadcaster found for this stream"}, v1.errors())
	assert.Equal(t, []string{"No stream offer found"}, v2.errors())
}

func TestOrchestrator_JoinsThenLeavesEmptyTheRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	users := []domain.UserID{"u0", "u1", "u2", "u3"}
	for i, u := range users {
		id := core.ConnID(u)
		h.connect(id)
		h.join(id, "s1", u)
		assert.Len(t, h.o.Presence.Members("s1"), i+1)
	}

	for i, u := range users {
		h.send(core.ConnID(u), &core.LeaveStream{StreamID: "s1", UserID: u})
		if i < len(users)-1 {
			last := h.sinks[core.ConnID(users[len(users)-1])].named(core.EventViewerCount)
			assert.Equal(t, core.ViewerCountPayload{Count: len(users) - i - 1}, last[len(last)-1].Data)
		}
	}

	assert.Empty(t, h.o.Presence.Members("s1"))
	n, err := h.o.Store.ViewerCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrchestrator_DisconnectRunsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("b")
	v := h.connect("v")
	h.join("v", "s1", "alice")
	h.offer("b", "s1", "offer")

	h.o.Disconnect(context.Background(), "b")
	h.o.Disconnect(context.Background(), "b")

	assert.Len(t, v.named(core.EventBroadcasterDisconnected), 1)
}

func TestOrchestrator_ReplacedBroadcasterDisconnectIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("b1")
	h.connect("b2")
	v := h.connect("v")
	h.offer("b1", "s1", "first")
	h.join("v", "s1", "alice")
	h.offer("b2", "s1", "second")

	sess, ok := h.o.Sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("b2"), sess.Broadcaster)
	assert.Empty(t, sess.Viewers)

	h.o.Disconnect(context.Background(), "b1")

	assert.Empty(t, v.named(core.EventBroadcasterDisconnected))
	assert.True(t, h.o.Sessions.IsBroadcaster("s1", "b2"))
}

func TestOrchestrator_ViewerDisconnectLeavesSessions(t *testing.T) {
	h := newHarness(t, nil)
	b := h.connect("b")
	h.connect("v1")
	h.connect("v2")
	h.offer("b", "s1", "offer")
	h.offer("b", "s2", "offer")
	h.join("v1", "s1", "alice")
	h.join("v1", "s2", "alice")
	h.join("v2", "s1", "bob")

	h.o.Disconnect(context.Background(), "v1")

	s1, _ := h.o.Sessions.Snapshot("s1")
	s2, _ := h.o.Sessions.Snapshot("s2")
	assert.Equal(t, []core.ConnID{"v2"}, s1.Viewers)
	assert.Empty(t, s2.Viewers)
	assert.Equal(t, []core.ConnID{"v2"}, h.o.Presence.Members("s1"))
	assert.Empty(t, h.o.Presence.Members("s2"))
	assert.Empty(t, b.named(core.EventBroadcasterDisconnected))

	// broadcaster candidates no longer reach the gone viewer
	h.send("b", &core.ICECandidate{StreamID: "s1", UserID: "host", Candidate: "c"})
	assert.Len(t, h.sinks["v2"].named(core.EventICECandidate), 1)
}

func TestOrchestrator_EventsFromUnknownConnectionAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	v := h.connect("v")
	h.join("v", "s1", "alice")

	h.join("ghost", "s1", "casper")

	assert.Len(t, v.named(core.EventViewerCount), 1)
	assert.Equal(t, []core.ConnID{"v"}, h.o.Presence.Members("s1"))
}

func TestOrchestrator_Backpressure(t *testing.T) {
	t.Run("kick closes the slow sink", func(t *testing.T) {
		h := newHarness(t, nil)
		slow := h.connect("slow")
		h.join("slow", "s1", "alice")
		slow.mu.Lock()
		slow.full = true
		slow.mu.Unlock()

		h.send("b", &core.StreamStatus{StreamID: "s1", Status: "live"})

		assert.True(t, slow.isClosed())
	})

	t.Run("drop keeps the sink open", func(t *testing.T) {
		h := newHarness(t, nil)
		h.o.Policy = app.DropPolicy{}
		slow := h.connect("slow")
		fast := h.connect("fast")
		h.join("slow", "s1", "alice")
		h.join("fast", "s1", "bob")
		slow.mu.Lock()
		slow.full = true
		slow.mu.Unlock()

		h.send("b", &core.StreamStatus{StreamID: "s1", Status: "live"})

		assert.False(t, slow.isClosed())
		assert.Len(t, fast.named(core.EventStreamStatus), 1)
	})
}
