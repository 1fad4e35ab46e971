// Package transcript archives a ticket's message history as a flat text file.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const DefaultLayout = "2006-01-02 15:04:05"

type Writer struct {
	Dir      string
	Location *time.Location
	Layout   string
}

func NewWriter(dir string, loc *time.Location, layout string) *Writer {
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = DefaultLayout
	}
	return &Writer{Dir: dir, Location: loc, Layout: layout}
}

// Path is where the transcript for channelID is written.
func (w *Writer) Path(channelID string) string {
	return filepath.Join(w.Dir, channelID+".txt")
}

// Render formats msgs in the order given, one line per message.
func (w *Writer) Render(msgs []*discordgo.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			m.Timestamp.In(w.Location).Format(w.Layout), authorTag(m.Author), m.Content))
	}
	return strings.Join(lines, "\n")
}

// Write renders msgs to the channel's transcript file and returns its path.
func (w *Writer) Write(channelID string, msgs []*discordgo.Message) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := w.Path(channelID)
	if err := os.WriteFile(path, []byte(w.Render(msgs)), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// Chronological returns a copy of a newest-first history page in oldest-first order.
func Chronological(msgs []*discordgo.Message) []*discordgo.Message {
	out := make([]*discordgo.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

func authorTag(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	return u.String()
}
