package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Output: &buf, TimeFormat: "15:04:05"})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestNewLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := TestConfig()
	cfg.Output = &buf
	l := NewLogger(cfg)
	l.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
	l.With("request_id", "abc").Info("scored", "score", 92)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "scored", entry["msg"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.EqualValues(t, 92, entry["score"])
}

func TestLogLevel_ToCharmlogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  int
	}{
		{DebugLevel, -4},
		{InfoLevel, 0},
		{WarnLevel, 4},
		{ErrorLevel, 8},
		{DisabledLevel, 1000},
		{LogLevel("verbose"), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, int(tt.level.ToCharmlogLevel()))
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Run("returns context logger", func(t *testing.T) {
		l := NewLogger(TestConfig())
		ctx := ContextWithLogger(context.Background(), l)
		assert.Same(t, l, FromContext(ctx))
	})

	t.Run("falls back to default", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})

	t.Run("nil logger falls back", func(t *testing.T) {
		ctx := ContextWithLogger(context.Background(), nil)
		l := FromContext(ctx)
		require.NotNil(t, l)
		l.Info("does not panic")
	})
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	l := Init(&Config{Level: InfoLevel, Output: &buf})
	t.Cleanup(func() { defaultLogger.Store(nil) })

	assert.Same(t, l, Default())
	FromContext(context.Background()).Info("from default")
	assert.Contains(t, buf.String(), "from default")
}
