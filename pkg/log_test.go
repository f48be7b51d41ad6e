package pkg

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogLevel(t *testing.T) {
	orig := GetLogLevel()
	defer SetLogLevel(orig)

	SetLogLevel(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, GetLogLevel())
}

func TestLogHelpersIncludeComponent(t *testing.T) {
	var buf bytes.Buffer
	orig := logger()
	defer SetLogger(orig)

	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	LogDebug(ComponentDevice, "resolved interface", "number", 3)
	out := buf.String()
	assert.Contains(t, out, "component=device")
	assert.Contains(t, out, "resolved interface")
	assert.Contains(t, out, "number=3")
}
