package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_WritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info().Str("component", "registry").Msg("plugin registered")

	assert.Contains(t, buf.String(), "plugin registered")
	assert.Contains(t, buf.String(), `"component":"registry"`)
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"warning alias", "WARNING", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"unknown defaults to info", "verbose", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.level))
		})
	}
}

func TestNew_SetsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: "error", Output: &buf})
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	New(Config{Level: "info", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Pretty: true, Output: &buf})

	l.Info().Msg("pretty message")

	assert.Contains(t, buf.String(), "pretty message")
	assert.NotContains(t, buf.String(), `"message"`)
}
