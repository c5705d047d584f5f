// Package probe is a scriptable broadcaster/viewer pair that drives the relay
// over its websocket protocol and exchanges real WebRTC media.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

var ErrClientClosed = errors.New("probe client closed")

// Message is the wire envelope, with data left raw until the event is known.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client manages the websocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	incoming chan Message
	outgoing chan []byte
	done     chan struct{}
	flushed  chan struct{}

	closeOnce sync.Once
}

// Dial connects to the relay signaling endpoint, e.g.
// ws://localhost:8080/api/ws/signal.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &Client{
		conn:     conn,
		incoming: make(chan Message, 32),
		outgoing: make(chan []byte, 64),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "probe.client").Msg("read stopped")
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.flushed)
	}()

	for {
		select {
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// flush what is already queued, leave_stream in particular
			for drained := false; !drained; {
				select {
				case frame := <-c.outgoing:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.TextMessage, frame)
				default:
					drained = true
				}
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Emit queues one event for the relay.
func (c *Client) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Message{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

// Incoming is closed when the connection ends.
func (c *Client) Incoming() <-chan Message {
	return c.incoming
}

// Close sends what is still queued and a close frame, then waits briefly
// for the writer to finish.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	select {
	case <-c.flushed:
	case <-time.After(writeWait):
	}
}
