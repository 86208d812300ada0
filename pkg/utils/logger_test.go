package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelInfo, &buf)

	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)
	l.Warn("warned")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "[WARN] warned")
}

func TestDefaultLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelDebug, &buf)

	l.WithField("level", 3).Info("checkpoint done")
	assert.Contains(t, buf.String(), "level=3")
	assert.Contains(t, buf.String(), "checkpoint done")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel("whatever"))
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	l.Info("dropped")
	assert.Same(t, l, l.WithField("k", "v"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
