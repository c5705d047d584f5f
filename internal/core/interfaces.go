package core

import "errors"

// ConnID identifies one live transport connection. It is minted by the
// adapter on connect and never reused.
type ConnID string

var ErrBackpressure = errors.New("backpressure")

// EventSink abstracts a system messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type EventSink interface {
	// Send enqueues an event without blocking. It returns ErrBackpressure
	// when the connection cannot keep up.
	Send(Outbound) error
	Close()
}

// Delivery is one outbound event addressed to a set of connections.
// Handlers return deliveries; the dispatcher performs them.
type Delivery struct {
	To    []ConnID
	Event Outbound
}

func To(conn ConnID, event string, data any) Delivery {
	return Delivery{To: []ConnID{conn}, Event: Outbound{Event: event, Data: data}}
}

func ToMany(conns []ConnID, event string, data any) Delivery {
	return Delivery{To: conns, Event: Outbound{Event: event, Data: data}}
}
