package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/techvision/chat-widget/internal/chat"
)

// session returns the caller's widget session, starting a new one (and setting its cookie) when
// the request carries no known session.
func (m *Main) session(w http.ResponseWriter, r *http.Request) *session {
	if sess, ok := m.sessions.get(sessionID(r)); ok {
		sess.touch(time.Now())
		return sess
	}

	sess := m.newSession()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	m.logger.Debug("Started session", slog.String("session", sess.id))
	return sess
}

// HandleHome renders the page hosting the widget, with the caller's current transcript.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := m.session(w, r)
	data, err := m.transcriptData(sess.conv.Snapshot())
	if err != nil {
		m.logger.Error("Failed to build transcript", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", homePageData{Transcript: data}); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleMessages accepts a visitor message from the "message" form field and starts streaming the
// reply. The response is the transcript partial including the new user message; the reply itself
// arrives through the session's SSE stream.
//
// It answers 400 for a blank message and 409 while a previous reply is still streaming.
func (m *Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	sess := m.session(w, r)

	// The exchange outlives this request; it only ends early when the session is closed.
	err := sess.conv.Submit(context.WithoutCancel(r.Context()), msg)
	switch {
	case errors.Is(err, chat.ErrBusy):
		http.Error(w, "A reply is still in progress", http.StatusConflict)
		return
	case errors.Is(err, chat.ErrClosed):
		http.Error(w, "Session has ended", http.StatusGone)
		return
	case err != nil:
		m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeTranscript(w, sess, http.StatusAccepted)
}

// HandleTranscript renders the caller's transcript partial.
func (m *Main) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.writeTranscript(w, m.session(w, r), http.StatusOK)
}

// HandleSSE streams the caller's transcript and notice events.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m *Main) writeTranscript(w http.ResponseWriter, sess *session, status int) {
	rendered, err := m.renderTranscript(sess.conv.Snapshot())
	if err != nil {
		m.logger.Error("Failed to render transcript", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(rendered))
}
