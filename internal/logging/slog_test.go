package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/quadrant/types"
)

func TestSlogLogger_ImplementsInterface(t *testing.T) {
	t.Helper()
	var _ types.Logger = (*SlogLogger)(nil)
}

func TestNewSlog(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlog(slog.New(handler))

	require.NotNil(t, logger)
	require.NotNil(t, logger.logger)
}

func TestNewSlogDefault(t *testing.T) {
	logger := NewSlogDefault()

	require.NotNil(t, logger)
	require.NotNil(t, logger.logger)
}

func TestSlogLogger_Debug(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlog(slog.New(handler))

	logger.Debug("debug message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "level=DEBUG")
}

func TestSlogLogger_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := NewSlog(slog.New(handler))

	logger.Info("info message", "rank", 3)

	output := buf.String()
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "rank=3")
	assert.Contains(t, output, "level=INFO")
}

func TestSlogLogger_Warn(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := NewSlog(slog.New(handler))

	logger.Warn("pool fallback", "reason", "worker error")

	output := buf.String()
	assert.Contains(t, output, "pool fallback")
	assert.Contains(t, output, "level=WARN")
}

func TestSlogLogger_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelError})
	logger := NewSlog(slog.New(handler))

	logger.Error("agent launch failed", "host", "node-1")

	output := buf.String()
	assert.Contains(t, output, "agent launch failed")
	assert.Contains(t, output, "host=node-1")
	assert.Contains(t, output, "level=ERROR")
}

func TestNopLogger_DiscardsEverything(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("msg", "k", "v")
		logger.Info("msg")
		logger.Warn("msg", "odd")
		logger.Error("msg", "k", "v")
		logger.Fatal("msg") // must NOT exit
	})
}

func TestFormatKeyValues(t *testing.T) {
	assert.Equal(t, "", formatKeyValues(nil))
	assert.Equal(t, "a=1 ", formatKeyValues([]any{"a", 1}))
	assert.Equal(t, "a=<missing> ", formatKeyValues([]any{"a"}))
}
