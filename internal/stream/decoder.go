// Package stream decodes the streamed body returned by the chat completion endpoint.
//
// The body is a sequence of newline-delimited frames. Only frames of the form
//
//	data: {"choices":[{"delta":{"content":"..."}}]}
//
// carry content; comments (lines starting with ':'), blank lines and any other line
// shape are skipped, and a `data: [DONE]` frame ends the stream. A frame whose payload
// is not valid JSON is dropped without aborting the stream.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	dataPrefix    = "data: "
	commentPrefix = ":"
	doneMarker    = "[DONE]"

	readChunkSize = 4096

	errLoggerKey = "err"
)

type frame struct {
	Choices []frameChoice `json:"choices"`
}

type frameChoice struct {
	Delta goopenai.ChatCompletionStreamChoiceDelta `json:"delta"`
}

// Decoder turns successive byte chunks into content deltas. It keeps the trailing partial line
// between chunks, so a chunk boundary may fall anywhere, including inside a multi-byte character.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf  []byte
	done bool

	logger *slog.Logger
}

// NewDecoder creates a Decoder. Dropped frames are reported to logger at debug level; a nil logger
// discards them.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decoder{
		logger: logger.With(slog.String("module", "stream")),
	}
}

// Feed appends chunk to the buffered input and returns the deltas carried by every line it
// completes, in order. Once the completion marker is seen the rest of the input is ignored and
// Done reports true.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var deltas []string
	rest := d.buf
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx == -1 {
			break
		}
		line := rest[:idx]
		rest = rest[idx+1:]

		delta, done := d.parseLine(line)
		if done {
			d.done = true
			d.buf = nil
			return deltas
		}
		if delta != "" {
			deltas = append(deltas, delta)
		}
	}
	d.buf = append(d.buf[:0], rest...)

	return deltas
}

// Done reports whether the completion marker has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Buffered returns the number of bytes of the pending partial line.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// parseLine extracts the delta of a single frame. The second result is true for the completion
// marker.
func (d *Decoder) parseLine(raw []byte) (string, bool) {
	// '\n' never occurs inside a multi-byte UTF-8 sequence, so a complete line is always
	// a complete run of characters.
	line := string(bytes.TrimSuffix(raw, []byte("\r")))
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentPrefix) {
		return "", false
	}

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return "", false
	}
	payload = strings.TrimSpace(payload)
	if payload == doneMarker {
		return "", true
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		d.logger.Debug("Dropping malformed frame",
			slog.String("payload", payload),
			slog.String(errLoggerKey, err.Error()))
		return "", false
	}
	if len(f.Choices) == 0 {
		return "", false
	}

	return f.Choices[0].Delta.Content, false
}

// Deltas reads r chunk by chunk and yields the content deltas in arrival order. Every complete
// line of a chunk is decoded before the next read. Iteration ends at the completion marker or at
// EOF, where an unterminated trailing line is discarded. A read error is yielded once and ends the
// iteration.
func Deltas(r io.Reader, logger *slog.Logger) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		d := NewDecoder(logger)
		buf := make([]byte, readChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, delta := range d.Feed(buf[:n]) {
					if !yield(delta, nil) {
						return
					}
				}
				if d.Done() {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("error reading stream: %w", err))
				return
			}
		}
	}
}
