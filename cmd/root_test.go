package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ticket-bot/config"
	"ticket-bot/events"
	"ticket-bot/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TICKETBOT_TEST_VALUE=from-file\n"), 0o644))
	t.Setenv("TICKETBOT_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("TICKETBOT_TEST_VALUE"))

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TICKETBOT_TEST_VALUE"))

	assert.Error(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestResolveLevel(t *testing.T) {
	level, err := resolveLevel("", "WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = resolveLevel("debug", "WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = resolveLevel("loud", "")
	assert.Error(t, err)
}

func TestOpenPublisher_NopWithoutURL(t *testing.T) {
	p, err := openPublisher(config.EventsConfig{}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, events.Nop{}, p)
}

func TestShutdownMode(t *testing.T) {
	assert.Equal(t, scheduler.ShutdownFlush, shutdownMode(config.ShutdownConfig{FlushDeletions: true}))
	assert.Equal(t, scheduler.ShutdownAbandon, shutdownMode(config.ShutdownConfig{}))
}

func TestRun_MissingToken(t *testing.T) {
	dir := t.TempDir()
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("TICKETBOT_DISCORD_TOKEN", "")
	envFile, configFile = "", ""

	var buf bytes.Buffer
	err := run(context.Background(), &buf)
	require.ErrorIs(t, err, errMissingToken)
	assert.Contains(t, buf.String(), "BOT_TOKEN")
}
