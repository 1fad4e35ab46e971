package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"ticket-bot/config"
	"ticket-bot/logging"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
)

// Intents the ticket flows need: guild and channel events, message history
// for transcripts, and member data for staff role checks.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentsGuildMembers

// closeAuthenticationFailed is the gateway close code for a rejected token.
const closeAuthenticationFailed = 4004

// ErrInvalidToken is returned by Start when the gateway or API rejects the
// bot token.
var ErrInvalidToken = errors.New("discord rejected the bot token")

type Bot struct {
	Session *discordgo.Session
	Config  *config.Config

	logger    *slog.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func New(cfg *config.Config, logger *slog.Logger, level slog.Level) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents
	s.LogLevel = logging.DiscordgoLevel(level)
	discordgo.Logger = logging.DiscordgoLogger(logger)

	b := &Bot{
		Session: s,
		Config:  cfg,
		logger:  logger.With(logging.NameKey, "bot"),
		ready:   make(chan struct{}),
	}
	s.AddHandler(b.onReady)
	return b, nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("bot is online", "user", r.User.String(), "guilds", len(r.Guilds))
	b.readyOnce.Do(func() { close(b.ready) })
}

// Start opens the gateway connection. A rejected token is reported as
// ErrInvalidToken.
func (b *Bot) Start() error {
	if err := b.Session.Open(); err != nil {
		if IsAuthError(err) {
			return fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

func (b *Bot) Stop() {
	if err := b.Session.Close(); err != nil {
		b.logger.Warn("failed to close gateway", tint.Err(err))
	}
}

// Ready is closed once the first Ready event has been received.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// WaitReady blocks until the session is ready or ctx is done.
func (b *Bot) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterCommands replaces the application's commands in the configured
// guild, or globally when no guild is set.
func (b *Bot) RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	if err := b.WaitReady(ctx); err != nil {
		return nil, err
	}
	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID

	b.logger.Info("registering commands", "count", len(cmds), "app_id", appID, "guild_id", guildID)
	registered, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, cmds, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("bulk overwrite commands: %w", err)
	}
	b.logger.Info("registered slash commands", "count", len(registered))
	return registered, nil
}

func (b *Bot) CleanupCommands(ctx context.Context) error {
	if err := b.WaitReady(ctx); err != nil {
		return err
	}
	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID
	if _, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("clean up commands: %w", err)
	}
	b.logger.Info("cleaned up slash commands")
	return nil
}

// IsAuthError reports whether err means the bot token was rejected, either
// by the gateway closing with code 4004 or by a 401 from the REST API.
func IsAuthError(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized {
		return true
	}
	return errors.Is(err, ErrInvalidToken)
}
