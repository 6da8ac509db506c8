// Package chat owns a widget transcript and drives one streamed exchange at a time against the
// chat endpoint.
package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/techvision/chat-widget/internal/models"
	"github.com/techvision/chat-widget/internal/stream"
)

// Snapshot is a copy of the conversation state taken right after a mutation.
type Snapshot struct {
	Messages []models.Message
	Pending  bool
}

// Observer is told about every change of the transcript or of the pending flag. It is called
// outside of the conversation lock and may call back into the Conversation's read methods.
type Observer interface {
	TranscriptChanged(s Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s Snapshot)

// TranscriptChanged calls f(s).
func (f ObserverFunc) TranscriptChanged(s Snapshot) {
	f(s)
}

// Conversation holds the transcript of one widget session. At most one exchange is in flight;
// a send while pending is rejected, not queued.
type Conversation struct {
	opener   Opener
	observer Observer
	notifier Notifier

	logger *slog.Logger

	mu       sync.Mutex
	messages []models.Message
	pending  bool
	closed   bool
	current  *exchange
}

type exchange struct {
	ctx    context.Context
	cancel context.CancelFunc

	// history is what gets posted: the transcript up to and including the new user message.
	history []models.Message
	done    chan struct{}
}

type noopObserver struct{}

func (noopObserver) TranscriptChanged(Snapshot) {}

type noopNotifier struct{}

func (noopNotifier) Notify(Notice) {}

const errLoggerKey = "err"

// NewConversation creates a Conversation whose transcript starts with greeting (see
// models.NewTranscript). Nil observer, notifier or logger are allowed.
func NewConversation(opener Opener, greeting string, observer Observer, notifier Notifier, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Conversation{
		opener:   opener,
		observer: observer,
		notifier: notifier,
		logger:   logger.With(slog.String("module", "conversation")),
		messages: models.NewTranscript(greeting),
	}
}

// Send appends the user message and an empty assistant placeholder, then streams the response
// into the placeholder. It blocks until the exchange ends.
//
// The returned error is informational: failures have already been surfaced through the Notifier
// and the transcript is consistent again by the time Send returns. ErrBusy and ErrClosed mean the
// call was a no-op.
func (c *Conversation) Send(ctx context.Context, text string) error {
	ex, err := c.begin(ctx, text)
	if err != nil {
		return err
	}
	return c.run(ex)
}

// Submit does the synchronous part of Send (the pending check and both appends) and runs the rest
// of the exchange in its own goroutine. ctx bounds the whole exchange, so HTTP handlers should
// detach it from the request.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	ex, err := c.begin(ctx, text)
	if err != nil {
		return err
	}
	go func() {
		_ = c.run(ex)
	}()
	return nil
}

// Wait blocks until the in-flight exchange, if any, has finished.
func (c *Conversation) Wait() {
	c.mu.Lock()
	ex := c.current
	c.mu.Unlock()

	if ex != nil {
		<-ex.done
	}
}

// Close cancels the in-flight exchange and rejects further sends. The cancelled exchange ends as a
// transport failure.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.current != nil {
		c.current.cancel()
	}
}

// Transcript returns a copy of the transcript.
func (c *Conversation) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.messages)
}

// Pending reports whether a response is in flight.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

// Snapshot returns the transcript and pending flag as one consistent copy.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: slices.Clone(c.messages),
		Pending:  c.pending,
	}
}

func (c *Conversation) begin(ctx context.Context, text string) (*exchange, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.pending {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	c.messages = append(c.messages, models.Message{
		Role:    models.RoleUser,
		Content: text,
	})
	history := slices.Clone(c.messages)
	c.pending = true
	c.messages = append(c.messages, models.Message{
		Role: models.RoleAssistant,
	})

	ctx, cancel := context.WithCancel(ctx)
	ex := &exchange{
		ctx:     ctx,
		cancel:  cancel,
		history: history,
		done:    make(chan struct{}),
	}
	c.current = ex
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.observer.TranscriptChanged(snap)
	return ex, nil
}

func (c *Conversation) run(ex *exchange) (err error) {
	defer func() {
		c.finish(ex, err)
	}()

	body, err := c.opener.Open(ex.ctx, ex.history)
	if err != nil {
		return err
	}
	defer body.Close()

	return c.consume(body)
}

func (c *Conversation) consume(body io.Reader) error {
	var content strings.Builder
	for delta, err := range stream.Deltas(body, c.logger) {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		content.WriteString(delta)
		c.updateLast(content.String())
	}
	return nil
}

// updateLast overwrites the trailing assistant entry with the accumulated content.
func (c *Conversation) updateLast(content string) {
	c.mu.Lock()
	c.messages[len(c.messages)-1].Content = content
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.observer.TranscriptChanged(snap)
}

// finish settles the transcript after an exchange. A failed exchange loses its trailing assistant
// entry and produces exactly one notice; the pending flag is cleared last in every case.
func (c *Conversation) finish(ex *exchange, err error) {
	ex.cancel()

	if err != nil {
		c.logger.Warn("Exchange failed", slog.String(errLoggerKey, err.Error()))

		c.mu.Lock()
		if n := len(c.messages); n > 0 && c.messages[n-1].Role == models.RoleAssistant {
			c.messages = c.messages[:n-1]
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.observer.TranscriptChanged(snap)
		c.notifier.Notify(noticeFor(err))
	}

	c.mu.Lock()
	c.pending = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.observer.TranscriptChanged(snap)
	close(ex.done)

	c.mu.Lock()
	if c.current == ex {
		c.current = nil
	}
	c.mu.Unlock()
}
