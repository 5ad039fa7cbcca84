package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{FatalLevel, "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestStructuredLogger(t *testing.T) {
	t.Run("LogLevelFiltering", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf, WarnLevel)

		l.Debug("debug message")
		assert.Empty(t, buf.String(), "Debug message should be filtered")

		l.Info("info message")
		assert.Empty(t, buf.String(), "Info message should be filtered")

		l.Warn("warn message")
		assert.NotEmpty(t, buf.String(), "Warn message should be logged")
	})

	t.Run("JSONOutput", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf, DebugLevel)
		l.Info("handshake complete", String("peer", "alice"), Int("generation", 1))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "handshake complete", entry["message"])
		assert.Equal(t, "alice", entry["peer"])
		assert.Equal(t, float64(1), entry["generation"])
	})

	t.Run("WithFields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf, DebugLevel)
		scoped := l.WithFields(String("session_id", "s-1"))
		scoped.Info("rotated")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "s-1", entry["session_id"])
	})

	t.Run("ErrorField", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf, DebugLevel)
		l.Error("decrypt failed", Error(errors.New("auth failed")))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "auth failed", entry["error"])
	})
}

func TestSecretFieldRedacts(t *testing.T) {
	key := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	f := Secret("message_key", key)
	assert.Equal(t, "redacted(8 bytes)", f.Value)

	var buf bytes.Buffer
	l := NewLogger(&buf, DebugLevel)
	l.Info("sealed message", f)

	assert.NotContains(t, buf.String(), "\x01\x02\x03\x04\x05\x06\x07\x08")
	assert.Contains(t, buf.String(), "redacted(8 bytes)")
}
