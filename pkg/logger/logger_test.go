package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetFormat("json")
		Init("info")
	})
	return &buf
}

func TestInitParsesLevels(t *testing.T) {
	for in, want := range map[string]string{
		"debug":    "debug",
		"WARN":     "warn",
		"warning":  "warn",
		" Error ":  "error",
		"nonsense": "info",
		"":         "info",
	} {
		Init(in)
		assert.Equal(t, want, LevelString(), "Init(%q)", in)
	}
	Init("info")
}

func TestLevelFiltering(t *testing.T) {
	buf := captured(t)
	Init("warn")

	Debugf("debug-msg")
	Infof("info-msg")
	Println("println-msg")
	Warnf("warn-msg %d", 1)
	Error("error-msg")

	out := buf.String()
	assert.NotContains(t, out, "debug-msg")
	assert.NotContains(t, out, "info-msg")
	assert.NotContains(t, out, "println-msg")
	assert.Contains(t, out, "warn-msg 1")
	assert.Contains(t, out, "error-msg")
}

func TestWithFieldsWritesJSON(t *testing.T) {
	buf := captured(t)
	SetFormat("json")

	WithFields(Fields{"session": "s-1", "agent": "u-1"}).Info("call started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "s-1", entry["session"])
	assert.Equal(t, "u-1", entry["agent"])
	assert.Equal(t, "call started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestTextFormat(t *testing.T) {
	buf := captured(t)
	SetFormat("TEXT")

	WithFields(Fields{"prospect": "p-9"}).Warn("attempt limit reached")

	out := buf.String()
	assert.Contains(t, out, `msg="attempt limit reached"`)
	assert.Contains(t, out, "prospect=p-9")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
