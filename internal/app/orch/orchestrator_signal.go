package orch

import (
	"errors"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

// streamOffer makes conn the broadcaster of the stream. A later offer for
// the same stream replaces this one, whoever sends it.
func (o *Orchestrator) streamOffer(conn core.ConnID, e *core.StreamOffer) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "streamId, sdp, and type are required")}
	}
	o.Sessions.StoreOffer(e.StreamID, conn, domain.SessionDescription{
		StreamID: e.StreamID,
		SDP:      e.SDP,
		Type:     e.Type,
	})
	return []core.Delivery{
		core.To(conn, core.EventOfferStored, core.StreamRefPayload{StreamID: e.StreamID}),
	}
}

func (o *Orchestrator) streamAnswer(conn core.ConnID, e *core.StreamAnswer) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "Missing stream answer data")}
	}
	broadcaster, ok := o.Sessions.Broadcaster(e.StreamID)
	if !ok {
		return []core.Delivery{core.ErrorEvent(conn, "No broadcaster found for this stream")}
	}
	log.Info().Str("module", "orch").Str("stream", string(e.StreamID)).Str("user", string(e.UserID)).Msg("answer relayed to broadcaster")
	return []core.Delivery{core.To(broadcaster, core.EventStreamAnswer, *e)}
}

func (o *Orchestrator) iceCandidate(conn core.ConnID, e *core.ICECandidate) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "Missing ICE candidate data")}
	}
	targets, err := o.Sessions.RouteCandidate(e.StreamID, conn)
	if errors.Is(err, app.ErrNoSession) {
		return []core.Delivery{core.ErrorEvent(conn, "No stream offer found")}
	}
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("stream", string(e.StreamID)).Msg("route candidate")
		return []core.Delivery{core.ErrorEvent(conn, "Internal error")}
	}
	log.Debug().Str("module", "orch").Str("stream", string(e.StreamID)).Str("user", string(e.UserID)).Int("targets", len(targets)).Msg("ice candidate relayed")
	return []core.Delivery{core.ToMany(targets, core.EventICECandidate, *e)}
}
