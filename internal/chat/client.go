package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/techvision/chat-widget/internal/models"
)

// EndpointProvider supplies the chat endpoint URL and the bearer credential sent with every
// request.
type EndpointProvider interface {
	Endpoint() string
	Credential() string
}

// Opener starts a streamed completion for a transcript and hands back the response body.
type Opener interface {
	Open(ctx context.Context, messages []models.Message) (io.ReadCloser, error)
}

// Client opens streamed completions against the chat endpoint over HTTP.
type Client struct {
	provider EndpointProvider
	client   *http.Client

	logger *slog.Logger
}

type chatRequest struct {
	Messages []models.Message `json:"messages"`
}

// maxErrorBody bounds how much of an error response is read for logging.
const maxErrorBody = 1 << 10

// NewHTTPClient returns an http.Client for streaming. headerTimeout bounds the wait for the
// response headers only; reading the stream itself is limited by the request context alone.
// Zero means no limit.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// NewClient creates a Client. A nil httpClient uses a client without timeout, which is what a
// long-running stream usually wants. Do not set http.Client.Timeout: it also cuts off the body.
// A nil logger discards.
func NewClient(provider EndpointProvider, httpClient *http.Client, logger *slog.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Client{
		provider: provider,
		client:   httpClient,
		logger:   logger.With(slog.String("module", "chat_client")),
	}
}

// Open posts the transcript to the endpoint and classifies the response before any byte of the
// stream is read. On success the caller owns the returned body and must close it. Failures wrap
// ErrRateLimited, ErrServiceUnavailable, ErrStreamStart or ErrTransport.
func (c Client) Open(ctx context.Context, messages []models.Message) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(chatRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("%w: error marshaling request: %w", ErrStreamStart, err)
	}

	c.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.Endpoint(), bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: error creating request: %w", ErrStreamStart, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.provider.Credential())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: error sending request: %w", ErrTransport, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: status code %d", ErrRateLimited, resp.StatusCode)
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("%w: status code %d", ErrServiceUnavailable, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: unexpected status code: %d, body: %s", ErrStreamStart, resp.StatusCode, string(body))
		}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: no response body", ErrStreamStart)
	}

	return resp.Body, nil
}
