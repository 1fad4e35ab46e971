package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "INFO", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
		{input: "warning", expected: slog.LevelWarn},
		{input: "ERROR", expected: slog.LevelError},
		{input: "loud", expected: slog.LevelInfo, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDiscordgoLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logf := DiscordgoLogger(logger)
	logf(discordgo.LogInformational, 0, "suppressed %d", 1)
	logf(discordgo.LogError, 0, "gateway %s\nfailed", "wss")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "gateway wssfailed")
	assert.Contains(t, out, "logger=discordgo")
}

func TestDiscordgoLevel(t *testing.T) {
	assert.Equal(t, discordgo.LogDebug, DiscordgoLevel(slog.LevelDebug))
	assert.Equal(t, discordgo.LogInformational, DiscordgoLevel(slog.LevelInfo))
	assert.Equal(t, discordgo.LogWarning, DiscordgoLevel(slog.LevelWarn))
	assert.Equal(t, discordgo.LogError, DiscordgoLevel(slog.LevelError))
}
