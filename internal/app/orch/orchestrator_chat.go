package orch

import (
	"context"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) sendMessage(ctx context.Context, conn core.ConnID, e *core.SendMessage) []core.Delivery {
	if err := e.Validate(); err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "streamId, userId, and content are required")}
	}
	kind, err := domain.ParseMessageType(e.Type)
	if err != nil {
		return []core.Delivery{core.ErrorEvent(conn, "Invalid message type")}
	}
	if o.Limiter != nil && !o.Limiter.Allow(e.StreamID, e.UserID) {
		return []core.Delivery{core.ErrorEvent(conn, "Too many messages")}
	}

	ctx, cancel := o.withStoreTimeout(ctx)
	defer cancel()
	msg, err := o.Store.CreateMessage(ctx, domain.ChatMessage{
		StreamID: e.StreamID,
		UserID:   e.UserID,
		Content:  e.Content,
		Type:     kind,
		Filtered: false,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("stream", string(e.StreamID)).Msg("send_message")
		return []core.Delivery{core.ErrorEvent(conn, "Failed to send message")}
	}
	log.Info().Str("module", "orch").Str("stream", string(e.StreamID)).Str("user", string(e.UserID)).Str("id", msg.ID).Msg("message sent")
	return []core.Delivery{core.ToMany(o.Presence.Members(e.StreamID), core.EventNewMessage, msg)}
}
