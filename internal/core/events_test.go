package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	trequire "github.com/stretchr/testify/require"
)

func TestValidate_ReportsEveryMissingField(t *testing.T) {
	err := (&StreamAnswer{StreamID: "s1"}).Validate()

	trequire.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "userId, sdp, type")
}

func TestValidate_Complete(t *testing.T) {
	events := []Inbound{
		&JoinStream{StreamID: "s1", UserID: "u"},
		&LeaveStream{StreamID: "s1", UserID: "u"},
		&SendMessage{StreamID: "s1", UserID: "u", Content: "hi"},
		&StreamStatus{StreamID: "s1", Status: "live"},
		&StreamOffer{StreamID: "s1", SDP: "v=0", Type: "offer"},
		&StreamAnswer{StreamID: "s1", UserID: "u", SDP: "v=0", Type: "answer"},
		&ICECandidate{StreamID: "s1", UserID: "u", Candidate: map[string]any{}},
		&Ping{},
		&Disconnect{},
	}
	for _, ev := range events {
		assert.NoError(t, ev.Validate(), ev.EventName())
	}
}

func TestICECandidate_Blank(t *testing.T) {
	tests := []struct {
		name      string
		candidate any
		blank     bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"false", false, true},
		{"zero", float64(0), true},
		{"string", "candidate:1", false},
		{"object", map[string]any{"candidate": "c"}, false},
		{"empty object", map[string]any{}, false},
		{"array", []any{}, false},
		{"number", int8(3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&ICECandidate{StreamID: "s1", UserID: "u", Candidate: tt.candidate}).Validate()
			if tt.blank {
				assert.ErrorIs(t, err, ErrMissingField)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewInbound(t *testing.T) {
	for _, name := range []string{
		EventJoinStream, EventLeaveStream, EventSendMessage, EventStreamStatus,
		EventStreamOffer, EventStreamAnswer, EventICECandidate, EventPing,
	} {
		ev, ok := NewInbound(name)
		trequire.True(t, ok, name)
		assert.Equal(t, name, ev.EventName())
	}

	_, ok := NewInbound(EventDisconnect)
	assert.False(t, ok, "disconnect is raised by the transport only")
	_, ok = NewInbound("viewer_count")
	assert.False(t, ok)
}

func TestDeliveryHelpers(t *testing.T) {
	d := To("c1", EventPong, nil)
	assert.Equal(t, []ConnID{"c1"}, d.To)
	assert.Equal(t, EventPong, d.Event.Event)

	e := ErrorEvent("c2", "boom")
	assert.Equal(t, Outbound{Event: EventError, Data: ErrorPayload{Message: "boom"}}, e.Event)

	m := ToMany([]ConnID{"a", "b"}, EventViewerCount, ViewerCountPayload{Count: 2})
	assert.Len(t, m.To, 2)
}
