package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHub) Broadcast(msgType string, _ any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgType)
	return nil
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{3, 4, 5}, rb.GetAll())

	rb.Clear()
	assert.Empty(t, rb.GetAll())

	rb.Push(9)
	assert.Equal(t, []int{9}, rb.GetAll())
}

func TestLogBroadcaster_ParsesAndForwards(t *testing.T) {
	hub := &recordingHub{}
	b := NewLogBroadcaster(hub, 10)

	log := zerolog.New(b).With().Timestamp().Logger()
	log.Info().Str("component", "refresh").Str("task", "refresh-movies").Int("total", 4).Msg("Run completed")

	entries := b.GetRecentLogs()
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "refresh", entries[0].Component)
	assert.Equal(t, "refresh-movies", entries[0].Task)
	assert.Equal(t, "Run completed", entries[0].Message)
	assert.EqualValues(t, 4, entries[0].Fields["total"])
	assert.NotEmpty(t, entries[0].Timestamp)

	assert.Equal(t, []string{"logs:entry"}, hub.messages)
}

func TestLogBroadcaster_DropsMalformed(t *testing.T) {
	b := NewLogBroadcaster(nil, 10)

	n, err := b.Write([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, len("not json"), n)
	assert.Empty(t, b.GetRecentLogs())
}

func TestNew_StreamingKeepsRecentLogs(t *testing.T) {
	var out bytes.Buffer
	l := New(Config{Level: "info", Format: "json", EnableStreaming: true, BufferSize: 5, Output: &out})
	defer l.Close()

	l.Info().Msg("hello")
	l.Trace().Msg("filtered")

	logs := l.GetRecentLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "hello", logs[0].Message)
	assert.Contains(t, out.String(), `"message":"hello"`)
	assert.Empty(t, l.GetLogFilePath())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
