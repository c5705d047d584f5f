package orch

import (
	"context"

	"github.com/dkeye/Live/internal/core"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) joinStream(ctx context.Context, conn core.ConnID, e *core.JoinStream) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "streamId and userId are required")}
	}
	count, err := o.Presence.Join(ctx, e.StreamID, conn, e.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("stream", string(e.StreamID)).Msg("join_stream")
		return []core.Delivery{core.ErrorEvent(conn, "Failed to join stream")}
	}
	out := []core.Delivery{
		core.ToMany(o.Presence.Members(e.StreamID), core.EventViewerCount, core.ViewerCountPayload{Count: count}),
	}

	offer, ok := o.Sessions.AttachViewer(e.StreamID, conn)
	if !ok {
		log.Info().Str("module", "orch").Str("stream", string(e.StreamID)).Str("user", string(e.UserID)).Msg("no offer yet")
		return out
	}
	log.Info().Str("module", "orch").Str("stream", string(e.StreamID)).Str("user", string(e.UserID)).Msg("offer sent to viewer")
	return append(out, core.To(conn, core.EventStreamOffer, offer))
}

// leaveStream leaves the room only; the connection stays a viewer of the
// stream's session until it disconnects.
func (o *Orchestrator) leaveStream(ctx context.Context, conn core.ConnID, e *core.LeaveStream) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "streamId and userId are required")}
	}
	count, err := o.Presence.Leave(ctx, e.StreamID, conn, e.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("stream", string(e.StreamID)).Msg("leave_stream")
		return []core.Delivery{core.ErrorEvent(conn, "Failed to leave stream")}
	}
	return []core.Delivery{
		core.ToMany(o.Presence.Members(e.StreamID), core.EventViewerCount, core.ViewerCountPayload{Count: count}),
	}
}

func (o *Orchestrator) streamStatus(conn core.ConnID, e *core.StreamStatus) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "streamId and status are required")}
	}
	log.Info().Str("module", "orch").Str("stream", string(e.StreamID)).Str("status", e.Status).Msg("stream status")
	return []core.Delivery{
		core.ToMany(o.Presence.Members(e.StreamID), core.EventStreamStatus, *e),
	}
}

func (o *Orchestrator) disconnect(conn core.ConnID) []core.Delivery {
	rooms, ok := o.Registry.Unregister(conn)
	if !ok {
		return nil
	}
	o.Presence.LeaveAll(conn, rooms)
	o.Sessions.RemoveViewerEverywhere(conn)

	var out []core.Delivery
	for _, stream := range o.Sessions.BroadcastsOf(conn) {
		if _, ok := o.Sessions.RemoveBroadcasterSession(stream, conn); !ok {
			continue
		}
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("stream", string(stream)).Msg("broadcaster disconnected")
		out = append(out, core.ToMany(
			o.Presence.Members(stream),
			core.EventBroadcasterDisconnected,
			core.StreamRefPayload{StreamID: stream},
		))
	}
	return out
}
