package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/core"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the single dispatch point for inbound events. Handlers
// mutate the session and presence state and return deliveries; the
// orchestrator resolves and sends them afterwards.
type Orchestrator struct {
	Registry *app.Registry
	Sessions *app.SessionStore
	Presence *app.Presence
	Store    core.Store
	Policy   app.Policy
	Limiter  *app.RoomRateLimiter
	// StoreTimeout bounds chat persistence calls. Zero means no bound.
	StoreTimeout time.Duration
}

// Connect registers a freshly accepted connection.
func (o *Orchestrator) Connect(conn core.ConnID, sink core.EventSink) {
	o.Registry.Register(conn, sink)
}

// Disconnect runs compensating cleanup for conn. Repeated calls are no-ops.
func (o *Orchestrator) Disconnect(ctx context.Context, conn core.ConnID) {
	o.Dispatch(ctx, conn, &core.Disconnect{})
}

func (o *Orchestrator) Dispatch(ctx context.Context, conn core.ConnID, ev core.Inbound) {
	for _, d := range o.handle(ctx, conn, ev) {
		o.deliver(d)
	}
}

func (o *Orchestrator) handle(ctx context.Context, conn core.ConnID, ev core.Inbound) []core.Delivery {
	switch e := ev.(type) {
	case *core.JoinStream:
		return o.joinStream(ctx, conn, e)
	case *core.LeaveStream:
		return o.leaveStream(ctx, conn, e)
	case *core.SendMessage:
		return o.sendMessage(ctx, conn, e)
	case *core.StreamStatus:
		return o.streamStatus(conn, e)
	case *core.StreamOffer:
		return o.streamOffer(conn, e)
	case *core.StreamAnswer:
		return o.streamAnswer(conn, e)
	case *core.ICECandidate:
		return o.iceCandidate(conn, e)
	case *core.Ping:
		return []core.Delivery{core.To(conn, core.EventPong, nil)}
	case *core.Disconnect:
		return o.disconnect(conn)
	}
	log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("event", ev.EventName()).Msg("unhandled event")
	return nil
}

func (o *Orchestrator) deliver(d core.Delivery) {
	for _, conn := range d.To {
		sink, ok := o.Registry.Sink(conn)
		if !ok {
			continue
		}
		err := sink.Send(d.Event)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("event", d.Event.Event).Msg("send failed")
			continue
		}
		switch o.Policy.OnBackPressure(conn, d.Event) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("event", d.Event.Event).Msg("slow consumer, closing")
			sink.Close()
		case app.DropEvent, app.NoAction:
			log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("event", d.Event.Event).Msg("slow consumer, event dropped")
		}
	}
}

func (o *Orchestrator) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.StoreTimeout)
}
