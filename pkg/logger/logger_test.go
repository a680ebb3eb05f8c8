package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})
	defer closer.Close()

	log.Info("dropped")
	log.Warn("kept", Component("dispatcher"), Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "dispatcher", rec["component"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_RotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.log")
	var buf bytes.Buffer

	log, closer := New(Config{Level: "info", File: path, MaxSizeMB: 1, Output: &buf})
	log.Info("tick completed", "sent", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick completed")
	assert.Contains(t, buf.String(), "sent=3")
}

func TestContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}
