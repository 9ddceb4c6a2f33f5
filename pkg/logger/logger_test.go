package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelFatal, ParseLevel("FATAL"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"), "unknown levels fall back to info")
}

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.Info("group reranked", GroupKey("main|any%|pc"), Int("runs", 12))

	var e map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "group reranked", e["message"])

	fields, ok := e["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main|any%|pc", fields["group_key"])
	assert.Equal(t, float64(12), fields["runs"])
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelError})

	log.Debug("ignored")
	log.Warn("also ignored")
	assert.Zero(t, buf.Len())

	log.Error("kept", Err(assert.AnError))
	assert.NotZero(t, buf.Len())
}

func TestWithAttachesBaseFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelInfo})
	log := base.With(Component("reconciler"))

	log.Info("pass complete", Int("groups", 3))

	var e map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	fields := e["fields"].(map[string]any)
	assert.Equal(t, "reconciler", fields["component"])
	assert.Equal(t, float64(3), fields["groups"])
}

func TestErrFieldHandlesNil(t *testing.T) {
	assert.Nil(t, Err(nil).Value)
	assert.Equal(t, assert.AnError.Error(), Err(assert.AnError).Value)
}
