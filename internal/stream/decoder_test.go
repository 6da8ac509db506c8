package stream_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techvision/chat-widget/internal/stream"
)

const sampleStream = ": keep-alive\n" +
	"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n" +
	"\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Héllo\"}}]}\r\n" +
	"event: ping\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" wörld 👋\"}}]}\n" +
	"data: {not json}\n" +
	"data: {\"choices\":[]}\n" +
	"data:{\"choices\":[{\"delta\":{\"content\":\"no space\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n" +
	"data: [DONE]\n"

var sampleDeltas = []string{"Héllo", " wörld 👋", "!"}

func collect(t *testing.T, r io.Reader) ([]string, error) {
	t.Helper()

	var deltas []string
	for delta, err := range stream.Deltas(r, nil) {
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func feedAll(d *stream.Decoder, chunks ...[]byte) []string {
	var deltas []string
	for _, chunk := range chunks {
		deltas = append(deltas, d.Feed(chunk)...)
	}
	return deltas
}

func TestDeltas(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "Mixed frames",
			input: sampleStream,
			want:  sampleDeltas,
		},
		{
			name: "Two deltas then done",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n" +
				"data: [DONE]\n",
			want: []string{"He", "llo"},
		},
		{
			name: "Frames after done are ignored",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
				"data:   [DONE]  \n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
			want: []string{"a"},
		},
		{
			name:  "Only comments and blanks",
			input: ": one\n\n   \n:two\r\n",
			want:  nil,
		},
		{
			name: "Unterminated trailing line is discarded",
			input: "data: {\"choices\":[{\"delta\":{\"content\":\"kept\"}}]}\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lost\"}}]}",
			want: []string{"kept"},
		},
		{
			name:  "Null payload carries nothing",
			input: "data: null\ndata: {\"choices\":[{\"delta\":{}}]}\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeltasSegmentationInvariance(t *testing.T) {
	input := []byte(sampleStream)

	t.Run("One byte at a time", func(t *testing.T) {
		got, err := collect(t, iotest.OneByteReader(strings.NewReader(sampleStream)))
		require.NoError(t, err)
		assert.Equal(t, sampleDeltas, got)
	})

	t.Run("Every two-way split", func(t *testing.T) {
		for i := 0; i <= len(input); i++ {
			d := stream.NewDecoder(nil)
			got := feedAll(d, input[:i], input[i:])
			require.Equal(t, sampleDeltas, got, "split at byte %d", i)
			assert.True(t, d.Done())
		}
	})

	t.Run("Every three-way split", func(t *testing.T) {
		for i := 0; i <= len(input); i++ {
			for j := i; j <= len(input); j++ {
				d := stream.NewDecoder(nil)
				got := feedAll(d, input[:i], input[i:j], input[j:])
				require.Equal(t, sampleDeltas, got, "split at bytes %d and %d", i, j)
			}
		}
	})
}

func TestDecoderSplitMultiByteCharacter(t *testing.T) {
	line := []byte("data: {\"choices\":[{\"delta\":{\"content\":\"👋\"}}]}\n")
	emoji := strings.Index(string(line), "👋")
	require.NotEqual(t, -1, emoji)

	d := stream.NewDecoder(nil)
	assert.Empty(t, d.Feed(line[:emoji+2]))
	assert.Equal(t, emoji+2, d.Buffered())
	assert.Equal(t, []string{"👋"}, d.Feed(line[emoji+2:]))
	assert.Zero(t, d.Buffered())
}

func TestDecoderDoneStopsFeeding(t *testing.T) {
	d := stream.NewDecoder(nil)

	got := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\ndata: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n"))
	assert.Equal(t, []string{"x"}, got)
	assert.True(t, d.Done())
	assert.Nil(t, d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"z\"}}]}\n")))
}

func TestDeltasDoneMatchesCleanEOF(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n"

	withDone, err := collect(t, strings.NewReader(body+"data: [DONE]\n"))
	require.NoError(t, err)
	withoutDone, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, strings.Join(withDone, ""), strings.Join(withoutDone, ""))
	assert.Equal(t, "Hello", strings.Join(withoutDone, ""))
}

func TestDeltasReadError(t *testing.T) {
	errBroken := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n"),
		iotest.ErrReader(errBroken),
	)

	got, err := collect(t, r)
	require.ErrorIs(t, err, errBroken)
	assert.Equal(t, []string{"He"}, got)
}

func TestDeltasStopsWhenConsumerStops(t *testing.T) {
	r := strings.NewReader(sampleStream)

	var got []string
	for delta, err := range stream.Deltas(r, nil) {
		require.NoError(t, err)
		got = append(got, delta)
		break
	}
	assert.Equal(t, sampleDeltas[:1], got)
}
