package domain

type StreamID string

// SessionDescription is an offer or answer as sent by a peer.
// SDP and Type are relayed as-is and never parsed.
type SessionDescription struct {
	StreamID StreamID `json:"streamId" msgpack:"streamId"`
	SDP      string   `json:"sdp" msgpack:"sdp"`
	Type     string   `json:"type" msgpack:"type"`
}
