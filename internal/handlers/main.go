package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chatwidget "github.com/techvision/chat-widget"
	"github.com/techvision/chat-widget/internal/chat"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
)

// Config tunes the widget handlers.
type Config struct {
	// Greeting opens every transcript. Empty uses models.DefaultGreeting.
	Greeting string
	// SessionTTL is how long an idle widget session is kept. Zero disables eviction; otherwise it
	// must be at least MinSessionTTL.
	SessionTTL time.Duration
	// Provider is the SSE provider used to fan events out to browsers. Nil uses sse.Joe.
	Provider sse.Provider
}

// Main serves the chat widget. Every browser gets its own session, identified by a cookie, holding
// one chat.Conversation. Transcript changes and notices of a session are pushed to the browser as
// server-sent events on a per-session topic.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	opener   chat.Opener
	greeting string
	sessions *sessionStore

	stopEvict chan struct{}
	stopOnce  sync.Once

	logger *slog.Logger
}

// SSE event types pushed to the widget.
var (
	transcriptSSEType = sse.Type("transcript")
	noticeSSEType     = sse.Type("notice")
)

// MinSessionTTL is the shortest accepted Config.SessionTTL.
const MinSessionTTL = time.Second

const (
	sessionCookieName = "chat_session"

	errLoggerKey = "err"
)

// NewMain creates the widget handlers. opener is used by every session's conversation to reach
// the chat endpoint.
func NewMain(opener chat.Opener, cfg Config, logger *slog.Logger) (*Main, error) {
	if cfg.SessionTTL < 0 || (cfg.SessionTTL > 0 && cfg.SessionTTL < MinSessionTTL) {
		return nil, fmt.Errorf("session ttl must be zero or at least %s, got %s", MinSessionTTL, cfg.SessionTTL)
	}

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		chatwidget.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	m := &Main{
		templates: tmpl,
		markdown:  newMarkdown(),
		opener:    opener,
		greeting:  cfg.Greeting,
		sessions:  newSessionStore(),
		stopEvict: make(chan struct{}),
		logger:    logger.With(slog.String("module", "handlers")),
	}
	m.sseSrv = &sse.Server{
		Provider: cfg.Provider,
		OnSession: func(w http.ResponseWriter, r *http.Request) ([]string, bool) {
			sess, ok := m.sessions.get(sessionID(r))
			if !ok {
				http.Error(w, "Unknown session", http.StatusUnauthorized)
				return nil, false
			}
			return []string{sse.DefaultTopic, sessionTopic(sess.id)}, true
		},
		Logger: func(*http.Request) *slog.Logger {
			return m.logger
		},
	}

	if cfg.SessionTTL > 0 {
		go m.evictLoop(cfg.SessionTTL)
	}

	return m, nil
}

func sessionTopic(id string) string {
	return fmt.Sprintf("session-%s", id)
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *Main) evictLoop(ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopEvict:
			return
		case now := <-ticker.C:
			for _, sess := range m.sessions.evict(now.Add(-ttl)) {
				m.logger.Debug("Evicting idle session", slog.String("session", sess.id))
				sess.conv.Close()
			}
		}
	}
}

// Shutdown gracefully terminates the widget. It cancels the in-flight exchanges of all sessions,
// broadcasts a close event to connected browsers and waits up to 5 seconds for the SSE
// connections to terminate. Calling it more than once is safe.
func (m *Main) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopEvict) })

	for _, sess := range m.sessions.all() {
		sess.conv.Close()
	}

	e := &sse.Message{Type: sse.Type("closeChat")}
	// SSE events need a data field, so the close event carries one
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
