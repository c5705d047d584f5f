package domain

import (
	"errors"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageEmoji MessageType = "emoji"
	MessageOther MessageType = "other"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// ParseMessageType maps an optional client-supplied kind onto a known one.
// Empty means plain text.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(raw) {
	case "":
		return MessageText, nil
	case MessageText, MessageEmoji, MessageOther:
		return MessageType(raw), nil
	}
	return "", ErrUnknownMessageType
}

// ChatMessage is a persisted chat line. ID and Timestamp are assigned by
// the store on create.
type ChatMessage struct {
	ID        string      `json:"_id" msgpack:"_id"`
	StreamID  StreamID    `json:"streamId" msgpack:"streamId"`
	UserID    UserID      `json:"userId" msgpack:"userId"`
	Content   string      `json:"content" msgpack:"content"`
	Type      MessageType `json:"type" msgpack:"type"`
	Filtered  bool        `json:"-" msgpack:"-"`
	Timestamp time.Time   `json:"timestamp" msgpack:"timestamp"`
}
