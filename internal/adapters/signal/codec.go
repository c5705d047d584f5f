package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Live/internal/core"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed event")
)

// Codec frames envelopes of the form {"event": name, "data": payload}.
type Codec interface {
	Name() string
	// FrameType is the websocket message type the codec writes.
	FrameType() int
	Encode(core.Outbound) ([]byte, error)
	Decode([]byte) (core.Inbound, error)
}

func CodecFor(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSONCodec{}, true
	case "msgpack":
		return MsgpackCodec{}, true
	}
	return nil, false
}

type JSONCodec struct{}

func (JSONCodec) Name() string   { return "json" }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(ev core.Outbound) ([]byte, error) {
	return json.Marshal(ev)
}

func (JSONCodec) Decode(b []byte) (core.Inbound, error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, ok := core.NewInbound(env.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ev, nil
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return ev, nil
}

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string   { return "msgpack" }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(ev core.Outbound) ([]byte, error) {
	return msgpack.Marshal(ev)
}

func (MsgpackCodec) Decode(b []byte) (core.Inbound, error) {
	var env struct {
		Event string             `msgpack:"event"`
		Data  msgpack.RawMessage `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, ok := core.NewInbound(env.Event)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 || (len(env.Data) == 1 && env.Data[0] == msgpcode.Nil) {
		return ev, nil
	}
	if err := msgpack.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return ev, nil
}
