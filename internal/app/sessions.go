package app

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoSession = errors.New("no stream session")

// StreamSession is the negotiation state of one live stream: who published
// the offer, the offer itself and the connections it was handed to.
type StreamSession struct {
	Broadcaster core.ConnID
	Offer       domain.SessionDescription
	Viewers     []core.ConnID
}

func (s *StreamSession) clone() StreamSession {
	return StreamSession{
		Broadcaster: s.Broadcaster,
		Offer:       s.Offer,
		Viewers:     slices.Clone(s.Viewers),
	}
}

// SessionStore is the only owner of StreamSession records. Every method
// runs in a single critical section, so compound read-then-write calls
// never interleave with each other.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.StreamID]*StreamSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.StreamID]*StreamSession),
	}
}

// StoreOffer declares conn the broadcaster of stream. An existing session is
// replaced and its viewers are dropped.
func (s *SessionStore) StoreOffer(stream domain.StreamID, conn core.ConnID, offer domain.SessionDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, replaced := s.sessions[stream]
	s.sessions[stream] = &StreamSession{
		Broadcaster: conn,
		Offer:       offer,
		Viewers:     nil,
	}
	ev := log.Info().Str("module", "app.sessions").Str("stream", string(stream)).Str("conn", string(conn))
	if replaced {
		ev = ev.Str("prev_broadcaster", string(prev.Broadcaster)).Int("dropped_viewers", len(prev.Viewers))
	}
	ev.Msg("offer stored")
}

func (s *SessionStore) GetOffer(stream domain.StreamID) (domain.SessionDescription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[stream]
	if !ok {
		return domain.SessionDescription{}, false
	}
	return sess.Offer, true
}

// AddViewer is a no-op when stream has no session.
func (s *SessionStore) AddViewer(stream domain.StreamID, conn core.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[stream]; ok {
		sess.addViewer(conn)
	}
}

// AttachViewer returns the current offer of stream and registers conn as
// one of its viewers, atomically.
func (s *SessionStore) AttachViewer(stream domain.StreamID, conn core.ConnID) (domain.SessionDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[stream]
	if !ok {
		return domain.SessionDescription{}, false
	}
	sess.addViewer(conn)
	return sess.Offer, true
}

func (sess *StreamSession) addViewer(conn core.ConnID) {
	if !slices.Contains(sess.Viewers, conn) {
		sess.Viewers = append(sess.Viewers, conn)
	}
}

// RemoveViewerEverywhere drops conn from the viewer set of every session.
func (s *SessionStore) RemoveViewerEverywhere(conn core.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for stream, sess := range s.sessions {
		if i := slices.Index(sess.Viewers, conn); i >= 0 {
			sess.Viewers = slices.Delete(sess.Viewers, i, i+1)
			log.Debug().Str("module", "app.sessions").Str("stream", string(stream)).Str("conn", string(conn)).Msg("viewer removed")
		}
	}
}

// RemoveBroadcasterSession deletes the session of stream only if conn owns it.
func (s *SessionStore) RemoveBroadcasterSession(stream domain.StreamID, conn core.ConnID) (StreamSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[stream]
	if !ok || sess.Broadcaster != conn {
		return StreamSession{}, false
	}
	delete(s.sessions, stream)
	log.Info().Str("module", "app.sessions").Str("stream", string(stream)).Str("conn", string(conn)).Msg("session removed")
	return sess.clone(), true
}

func (s *SessionStore) IsBroadcaster(stream domain.StreamID, conn core.ConnID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[stream]
	return ok && sess.Broadcaster == conn
}

func (s *SessionStore) Broadcaster(stream domain.StreamID) (core.ConnID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[stream]
	if !ok {
		return "", false
	}
	return sess.Broadcaster, true
}

// RouteCandidate resolves the recipients of a candidate sent by from:
// the broadcaster's candidates go to every viewer, anyone else's go to the
// broadcaster alone.
func (s *SessionStore) RouteCandidate(stream domain.StreamID, from core.ConnID) ([]core.ConnID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[stream]
	if !ok {
		return nil, ErrNoSession
	}
	if sess.Broadcaster == from {
		return slices.Clone(sess.Viewers), nil
	}
	return []core.ConnID{sess.Broadcaster}, nil
}

// BroadcastsOf lists the streams whose session is owned by conn.
func (s *SessionStore) BroadcastsOf(conn core.ConnID) []domain.StreamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StreamID
	for stream, sess := range s.sessions {
		if sess.Broadcaster == conn {
			out = append(out, stream)
		}
	}
	slices.Sort(out)
	return out
}

func (s *SessionStore) Snapshot(stream domain.StreamID) (StreamSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[stream]
	if !ok {
		return StreamSession{}, false
	}
	return sess.clone(), true
}

// Streams returns the ids of every live session.
func (s *SessionStore) Streams() []domain.StreamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sessions))
}
