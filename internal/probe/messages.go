package probe

import "github.com/pion/webrtc/v4"

// Wire events the probe emits and reacts to.
const (
	eventJoinStream              = "join_stream"
	eventLeaveStream             = "leave_stream"
	eventSendMessage             = "send_message"
	eventStreamOffer             = "stream_offer"
	eventStreamAnswer            = "stream_answer"
	eventICECandidate            = "ice_candidate"
	eventOfferStored             = "offer-stored"
	eventViewerCount             = "viewer_count"
	eventNewMessage              = "new_message"
	eventStreamStatus            = "stream_status"
	eventBroadcasterDisconnected = "broadcaster_disconnected"
	eventError                   = "error"
)

type streamRef struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId,omitempty"`
}

type sessionDescription struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId,omitempty"`
	SDP      string `json:"sdp"`
	Type     string `json:"type"`
}

type iceCandidate struct {
	StreamID  string                  `json:"streamId"`
	UserID    string                  `json:"userId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type chatMessage struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId"`
	Content  string `json:"content"`
	Type     string `json:"type,omitempty"`
}

type receivedMessage struct {
	ID      string `json:"_id"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type viewerCount struct {
	Count int `json:"count"`
}

type streamStatus struct {
	StreamID string `json:"streamId"`
	Status   string `json:"status"`
}

type errorMessage struct {
	Message string `json:"message"`
}
