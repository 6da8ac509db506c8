package chat

import "errors"

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	NoticeRateLimited        NoticeKind = "rate_limited"
	NoticeServiceUnavailable NoticeKind = "service_unavailable"
	NoticeFailure            NoticeKind = "failure"
)

// Notice is the single user-visible message surfaced for a failed exchange.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Notifier presents notices to the visitor.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

func noticeFor(err error) Notice {
	switch {
	case errors.Is(err, ErrRateLimited):
		return Notice{
			Kind: NoticeRateLimited,
			Text: "Rate limit exceeded. Please try again later.",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return Notice{
			Kind: NoticeServiceUnavailable,
			Text: "Service temporarily unavailable.",
		}
	default:
		return Notice{
			Kind: NoticeFailure,
			Text: "Failed to send message. Please try again.",
		}
	}
}
