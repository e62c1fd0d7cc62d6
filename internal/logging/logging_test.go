package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCLIHandler_Format checks the "LEVEL time | message k=v" layout,
// including attributes carried over from With and groups.
func TestCLIHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New(ModeCLI, &buf, slog.LevelDebug).With("host", "lab-pc")

	logger.WithGroup("box").Info("setting signal",
		"signal", "AC_1", "delay", time.Second, "error", errors.New("relay stuck"))

	line := buf.String()
	assert.Regexp(t, `^INFO \d{4}-\d{2}-\d{2}T\S+ \| setting signal`, line)
	assert.Contains(t, line, " host=lab-pc")
	assert.Contains(t, line, " box.signal=AC_1")
	assert.Contains(t, line, " box.delay=1s")
	assert.Contains(t, line, ` box.error="relay stuck"`)
}

// TestCLIHandler_Level verifies records below the level are dropped.
func TestCLIHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	logger := New(ModeCLI, &buf, &level)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelInfo)
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestNew_JSON verifies JSON mode produces parseable records.
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(ModeJSON, &buf, nil).Info("connected", "boxes", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "connected", rec["msg"])
	assert.EqualValues(t, 1, rec["boxes"])
}

// TestParseLevel covers accepted names and an invalid one.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		err   bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
