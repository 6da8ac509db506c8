package chat

import "errors"

var (
	// ErrBusy is returned by Send and Submit while a response is still in flight. The call does not
	// touch the transcript.
	ErrBusy = errors.New("a response is already in flight")
	// ErrClosed is returned by Send and Submit after Close.
	ErrClosed = errors.New("conversation is closed")

	// ErrRateLimited reports an HTTP 429 from the chat endpoint.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable reports an HTTP 402 from the chat endpoint.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrStreamStart reports any other non-success status or a response without a body.
	ErrStreamStart = errors.New("failed to start stream")
	// ErrTransport reports a network failure while sending the request or reading the stream.
	ErrTransport = errors.New("transport failure")
)
