package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/config"
)

func TestSelectLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    zerolog.Level
	}{
		{"default", "", false, zerolog.InfoLevel},
		{"configured", "warn", false, zerolog.WarnLevel},
		{"mixed case", " DEBUG ", false, zerolog.DebugLevel},
		{"garbage", "loud", false, zerolog.InfoLevel},
		{"verbose wins", "error", true, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectLevel(tt.level, tt.verbose))
		})
	}
}

func TestFilteringWriter(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFilteringWriter(&buf)

	line := `{"msg":"calling AI","auth":"Bearer abcdefghijklmnopqrstuvwxyz","key":"sk-abcdefghijklmnopqrstuvwx"}`
	n, err := fw.Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.NotContains(t, buf.String(), "abcdefghijklmnopqrstuvwxyz")
	assert.NotContains(t, buf.String(), "sk-abcdefghijklmnopqrstuvwx")
	assert.Contains(t, buf.String(), RedactedValue)
}

func TestNew_WritesFile(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := New(config.LogConfig{Level: "info"}, Options{DataDir: dir})
	require.NoError(t, err)
	logger.Info().Str("sessionID", "s1").Msg("session started")
	logger.Debug().Msg("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "stepflow.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionID":"s1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_NoFile(t *testing.T) {
	logger, closer, err := New(config.LogConfig{}, Options{})
	assert.Error(t, err)
	require.NotNil(t, closer)
	logger.Info().Msg("discarded")
	assert.NoError(t, closer.Close())
}
