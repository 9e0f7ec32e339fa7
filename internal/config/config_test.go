package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xvierd/stepflow/internal/domain"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "stepflow", "config.toml")
}

func TestLoadFrom_CreatesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, domain.DefaultSettings(), cfg.ToSettings())
	assert.Equal(t, 20*time.Second, time.Duration(cfg.AI.Timeout))
	assert.NotEqual(t, defaultDataDir, cfg.Storage.DataDir, "data dir is expanded")
}

func TestLoadFrom_ReadsFile(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`
[focus]
session_duration = "50m"
auto_start_breaks = true
sessions_before_long = 2

[notifications]
enabled = false
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	settings := cfg.ToSettings()
	assert.Equal(t, 50*time.Minute, settings.DefaultSessionDuration)
	assert.Equal(t, 5*time.Minute, settings.BreakDuration, "missing keys keep defaults")
	assert.True(t, settings.AutoStartBreaks)
	assert.Equal(t, 2, settings.SessionsBeforeLongBreak)
	assert.False(t, settings.NotificationsEnabled)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("STEPFLOW_AI_API_KEY", "sk-test")
	t.Setenv("STEPFLOW_FOCUS_SESSION_DURATION", "45m")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, Duration(45*time.Minute), cfg.Focus.SessionDuration)
}

func TestLoadFrom_RejectsInvalid(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("[focus]\nsession_duration = \"10s\"\n"), 0o644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Set(path, "focus.break_duration", "10m")
	require.NoError(t, err)
	assert.Equal(t, Duration(10*time.Minute), cfg.Focus.BreakDuration)

	cfg, err = Set(path, "focus.auto_start_breaks", "true")
	require.NoError(t, err)
	assert.True(t, cfg.Focus.AutoStartBreaks)

	reloaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(10*time.Minute), reloaded.Focus.BreakDuration)
	assert.True(t, reloaded.Focus.AutoStartBreaks)

	_, err = Set(path, "focus.nope", "1")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = Set(path, "focus.break_duration", "soon")
	assert.Error(t, err)
}

func TestValuesMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.APIKey = "sk-live"

	values := map[string]string{}
	for _, kv := range cfg.Values() {
		values[kv[0]] = kv[1]
	}
	assert.Equal(t, "********", values["ai.api_key"])
	assert.Equal(t, "", values["server.jwt_secret"])
	assert.Equal(t, "25m0s", values["focus.session_duration"])
	assert.Len(t, values, len(Keys()))
}

func TestProvider_PicksUpChanges(t *testing.T) {
	path := tempConfigPath(t)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	p := NewProvider(path, cfg)
	require.NoError(t, p.Watch())
	assert.False(t, p.Settings().AutoStartBreaks)

	_, err = Set(path, "focus.auto_start_breaks", "true")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return p.Settings().AutoStartBreaks
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProvider_KeepsSettingsWithoutWatch(t *testing.T) {
	path := tempConfigPath(t)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	p := NewProvider(path, cfg)
	_, err = Set(path, "focus.sessions_before_long", "2")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Settings().SessionsBeforeLongBreak)
}
