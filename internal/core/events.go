package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dkeye/Live/internal/domain"
)

// Inbound event names.
const (
	EventJoinStream   = "join_stream"
	EventLeaveStream  = "leave_stream"
	EventSendMessage  = "send_message"
	EventStreamStatus = "stream_status"
	EventStreamOffer  = "stream_offer"
	EventStreamAnswer = "stream_answer"
	EventICECandidate = "ice_candidate"
	EventPing         = "ping"
	EventDisconnect   = "disconnect"
)

// Outbound event names not shared with inbound ones.
const (
	EventViewerCount             = "viewer_count"
	EventNewMessage              = "new_message"
	EventOfferStored             = "offer-stored"
	EventBroadcasterDisconnected = "broadcaster_disconnected"
	EventError                   = "error"
	EventPong                    = "pong"
)

var ErrMissingField = errors.New("missing required field")

// Inbound is the closed set of events a connection can raise.
type Inbound interface {
	EventName() string
	// Validate reports missing required fields.
	Validate() error
}

type JoinStream struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	UserID   domain.UserID   `json:"userId" msgpack:"userId"`
}

type LeaveStream struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	UserID   domain.UserID   `json:"userId" msgpack:"userId"`
}

type SendMessage struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	UserID   domain.UserID   `json:"userId" msgpack:"userId"`
	Content  string          `json:"content" msgpack:"content"`
	Type     string          `json:"type,omitempty" msgpack:"type,omitempty"`
}

type StreamStatus struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	Status   string          `json:"status" msgpack:"status"`
}

type StreamOffer struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	SDP      string          `json:"sdp" msgpack:"sdp"`
	Type     string          `json:"type" msgpack:"type"`
}

type StreamAnswer struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
	UserID   domain.UserID   `json:"userId" msgpack:"userId"`
	SDP      string          `json:"sdp" msgpack:"sdp"`
	Type     string          `json:"type" msgpack:"type"`
}

// ICECandidate carries an opaque candidate. Browsers send an object
// ({candidate, sdpMid, sdpMLineIndex}); some clients send the bare string.
type ICECandidate struct {
	StreamID  domain.StreamID `json:"streamId" msgpack:"streamId"`
	UserID    domain.UserID   `json:"userId" msgpack:"userId"`
	Candidate any             `json:"candidate" msgpack:"candidate"`
}

type Ping struct{}

// Disconnect is raised by the adapter, never decoded from the wire.
type Disconnect struct{}

func (*JoinStream) EventName() string   { return EventJoinStream }
func (*LeaveStream) EventName() string  { return EventLeaveStream }
func (*SendMessage) EventName() string  { return EventSendMessage }
func (*StreamStatus) EventName() string { return EventStreamStatus }
func (*StreamOffer) EventName() string  { return EventStreamOffer }
func (*StreamAnswer) EventName() string { return EventStreamAnswer }
func (*ICECandidate) EventName() string { return EventICECandidate }
func (*Ping) EventName() string         { return EventPing }
func (*Disconnect) EventName() string   { return EventDisconnect }

func (e *JoinStream) Validate() error {
	return require("streamId", string(e.StreamID), "userId", string(e.UserID))
}

func (e *LeaveStream) Validate() error {
	return require("streamId", string(e.StreamID), "userId", string(e.UserID))
}

func (e *SendMessage) Validate() error {
	return require("streamId", string(e.StreamID), "userId", string(e.UserID), "content", e.Content)
}

func (e *StreamStatus) Validate() error {
	return require("streamId", string(e.StreamID), "status", e.Status)
}

func (e *StreamOffer) Validate() error {
	return require("streamId", string(e.StreamID), "sdp", e.SDP, "type", e.Type)
}

func (e *StreamAnswer) Validate() error {
	return require("streamId", string(e.StreamID), "userId", string(e.UserID), "sdp", e.SDP, "type", e.Type)
}

func (e *ICECandidate) Validate() error {
	if err := require("streamId", string(e.StreamID), "userId", string(e.UserID)); err != nil {
		return err
	}
	if blank(e.Candidate) {
		return fmt.Errorf("%w: candidate", ErrMissingField)
	}
	return nil
}

func (*Ping) Validate() error       { return nil }
func (*Disconnect) Validate() error { return nil }

// NewInbound returns an empty variant for a wire event name, ready to be
// decoded into. Disconnect is not constructible from the wire.
func NewInbound(name string) (Inbound, bool) {
	switch name {
	case EventJoinStream:
		return &JoinStream{}, true
	case EventLeaveStream:
		return &LeaveStream{}, true
	case EventSendMessage:
		return &SendMessage{}, true
	case EventStreamStatus:
		return &StreamStatus{}, true
	case EventStreamOffer:
		return &StreamOffer{}, true
	case EventStreamAnswer:
		return &StreamAnswer{}, true
	case EventICECandidate:
		return &ICECandidate{}, true
	case EventPing:
		return &Ping{}, true
	}
	return nil, false
}

// require takes name/value pairs and reports every empty value.
func require(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// blank mirrors a falsy check on a decoded dynamic value: null, "", false
// and zero numbers are blank, objects and arrays never are.
func blank(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	}
	return false
}

// Outbound is the envelope written to a connection.
type Outbound struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data,omitempty" msgpack:"data,omitempty"`
}

type ViewerCountPayload struct {
	Count int `json:"count" msgpack:"count"`
}

type StreamRefPayload struct {
	StreamID domain.StreamID `json:"streamId" msgpack:"streamId"`
}

type ErrorPayload struct {
	Message string `json:"message" msgpack:"message"`
}

func ErrorEvent(conn ConnID, message string) Delivery {
	return To(conn, EventError, ErrorPayload{Message: message})
}
