package handlers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/techvision/chat-widget/internal/chat"
	"github.com/tmaxmax/go-sse"
)

type session struct {
	id   string
	conv *chat.Conversation

	mu       sync.Mutex
	lastSeen time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// publisher pushes the changes of one session's conversation to that session's SSE topic.
type publisher struct {
	m     *Main
	topic string
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
	}
}

func (s *sessionStore) get(id string) (*session, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) add(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.id] = sess
}

func (s *sessionStore) all() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		res = append(res, sess)
	}
	return res
}

// evict removes and returns the sessions not seen since cutoff. Sessions with a response in flight
// are kept.
func (s *sessionStore) evict(cutoff time.Time) []*session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*session
	for id, sess := range s.sessions {
		if sess.seenSince(cutoff) || sess.conv.Pending() {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, sess)
	}
	return evicted
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
}

func (s *session) seenSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.lastSeen.Before(t)
}

func (m *Main) newSession() *session {
	id := uuid.New().String()
	pub := publisher{m: m, topic: sessionTopic(id)}
	sess := &session{
		id:       id,
		conv:     chat.NewConversation(m.opener, m.greeting, pub, pub, m.logger.With(slog.String("session", id))),
		lastSeen: time.Now(),
	}
	m.sessions.add(sess)
	return sess
}

func (p publisher) TranscriptChanged(s chat.Snapshot) {
	rendered, err := p.m.renderTranscript(s)
	if err != nil {
		p.m.logger.Error("Failed to render transcript",
			slog.String("topic", p.topic),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: transcriptSSEType,
	}
	msg.AppendData(rendered)
	if err := p.m.sseSrv.Publish(&msg, p.topic); err != nil {
		p.m.logger.Error("Failed to publish transcript",
			slog.String("topic", p.topic),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (p publisher) Notify(n chat.Notice) {
	msg := sse.Message{
		Type: noticeSSEType,
	}
	msg.AppendData(n.Text)
	if err := p.m.sseSrv.Publish(&msg, p.topic); err != nil {
		p.m.logger.Error("Failed to publish notice",
			slog.String("topic", p.topic),
			slog.String("kind", string(n.Kind)),
			slog.String(errLoggerKey, err.Error()))
	}
}
