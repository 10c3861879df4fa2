package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[connection]
connect_timeout_secs = 5
send_rate_per_sec = 50

[classifier]
extra_interactive = ["mycli", "custom-repl"]
extra_continuous = ["mytail"]

[history]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Connection.ConnectTimeoutSecs)
	assert.Equal(t, 5*time.Second, cfg.Connection.ConnectTimeout())
	assert.Equal(t, 50, cfg.Connection.SendRatePerSec)
	// Untouched fields keep defaults.
	assert.Equal(t, 1000, cfg.Connection.SettleQuiescenceMs)
	assert.Equal(t, 200, cfg.Connection.SendBurst)

	assert.Equal(t, []string{"mycli", "custom-repl"}, cfg.Classifier.ExtraInteractive)
	assert.Equal(t, []string{"mytail"}, cfg.Classifier.ExtraContinuous)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[connection]
connect_timeout_secs = -1
settle_quiescence_ms = 0
settle_max_ms = 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Connection.ConnectTimeoutSecs, cfg.Connection.ConnectTimeoutSecs)
	assert.Equal(t, def.Connection.SettleQuiescenceMs, cfg.Connection.SettleQuiescenceMs)
	assert.Equal(t, def.Connection.SettleMaxMs, cfg.Connection.SettleMaxMs)
}

func TestLoadMalformedFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[connection\nbad"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestHistoryPath(t *testing.T) {
	h := HistoryConfig{}
	assert.Equal(t, filepath.Join("/tmp/x", "history.db"), h.HistoryPath("/tmp/x"))

	h.Path = "/var/lib/history.db"
	assert.Equal(t, "/var/lib/history.db", h.HistoryPath("/tmp/x"))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[history]\nenabled = true\n"), 0644))

	updates := make(chan Config, 4)
	w, err := NewWatcher(path, func(c Config) { updates <- c })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Initial load fires synchronously.
	select {
	case cfg := <-updates:
		assert.True(t, cfg.History.Enabled)
	default:
		t.Fatal("expected initial config callback")
	}

	require.NoError(t, os.WriteFile(path, []byte("[history]\nenabled = false\n"), 0644))

	select {
	case cfg := <-updates:
		assert.False(t, cfg.History.Enabled)
		assert.False(t, w.Current().History.Enabled)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherKeepsPreviousOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[connection]\nconnect_timeout_secs = 7\n"), 0644))

	updates := make(chan Config, 4)
	w, err := NewWatcher(path, func(c Config) { updates <- c })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	<-updates // initial

	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0644))

	// No callback should fire; previous config survives.
	select {
	case <-updates:
		t.Fatal("unexpected callback for malformed config")
	case <-time.After(debounceInterval + 500*time.Millisecond):
	}
	assert.Equal(t, 7, w.Current().Connection.ConnectTimeoutSecs)
}
