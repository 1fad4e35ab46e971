package handlers

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"ticket-bot/config"
	"ticket-bot/events"
	"ticket-bot/lang"
	"ticket-bot/logging"
	"ticket-bot/scheduler"
	"ticket-bot/storage"
	"ticket-bot/transcript"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var staffPerm int64 = discordgo.PermissionManageChannels

type Deps struct {
	Session     Session
	Store       storage.Store
	Transcripts *transcript.Writer
	Scheduler   *scheduler.Scheduler
	Events      events.Publisher
	Messages    *lang.Catalog
	Config      *config.Config
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Handler struct {
	session     Session
	store       storage.Store
	transcripts *transcript.Writer
	scheduler   *scheduler.Scheduler
	events      events.Publisher
	msgs        *lang.Catalog
	cfg         *config.Config
	logger      *slog.Logger
	now         func() time.Time
	locks       *keyedMutex
}

func New(d Deps) *Handler {
	h := &Handler{
		session:     d.Session,
		store:       d.Store,
		transcripts: d.Transcripts,
		scheduler:   d.Scheduler,
		events:      d.Events,
		msgs:        d.Messages,
		cfg:         d.Config,
		logger:      d.Logger.With(logging.NameKey, "handlers"),
		now:         d.Now,
		locks:       newKeyedMutex(),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.events == nil {
		h.events = events.Nop{}
	}
	return h
}

func Commands() []*discordgo.ApplicationCommand {
	return ticketCommands()
}

// Register routes gateway interactions and the ready event to h. The
// returned functions remove the handlers.
func (h *Handler) Register(ctx context.Context, s *discordgo.Session) []func() {
	return []func(){
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			if err := h.RefreshPanel(ctx, r.User.ID); err != nil {
				h.logger.Error("failed to post ticket panel", tint.Err(err))
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			h.HandleInteraction(ctx, i)
		}),
	}
}

func (h *Handler) HandleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}
	if h.cfg.Discord.GuildID != "" && i.GuildID != h.cfg.Discord.GuildID {
		h.logger.Debug("ignoring interaction from other guild", "guild_id", i.GuildID)
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleSlashCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(ctx, i)
	}
}

func (h *Handler) handleSlashCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "ticket":
		h.handleTicketCommand(ctx, i)
	case "close":
		h.handleCloseRequest(ctx, i)
	default:
		h.logger.Warn("unknown command", "command", data.Name)
	}
}

func (h *Handler) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	action, ok := ParseAction(customID)
	if !ok {
		h.logger.Warn("unknown component", "custom_id", customID, "user_id", i.Member.User.ID)
		h.respond(i, h.msgs.T("unknown_action"), true)
		return
	}

	h.logger.Debug("handling action", "action", action, "channel_id", i.ChannelID, "user_id", i.Member.User.ID)
	switch action {
	case ActionCreate:
		h.handleCreate(ctx, i)
	case ActionCloseRequest:
		h.handleCloseRequest(ctx, i)
	case ActionConfirmClose:
		h.handleConfirmClose(ctx, i)
	case ActionCancelClose:
		h.handleCancelClose(i)
	case ActionClaim:
		h.handleClaim(ctx, i)
	}
}

func (h *Handler) isStaff(member *discordgo.Member) bool {
	if member == nil || h.cfg.Tickets.StaffRole == "" {
		return false
	}
	return slices.Contains(member.Roles, h.cfg.Tickets.StaffRole)
}

func (h *Handler) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	h.interactionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   ephemeralFlag(ephemeral),
		},
	})
}

func (h *Handler) respondEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) {
	h.interactionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      ephemeralFlag(ephemeral),
		},
	})
}

// update replaces the message the pressed button belongs to with plain text.
func (h *Handler) update(i *discordgo.InteractionCreate, content string) {
	h.interactionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	})
}

func (h *Handler) interactionRespond(i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := h.session.InteractionRespond(i.Interaction, resp); err != nil {
		h.logger.Error("failed to respond", tint.Err(err), "interaction_id", i.ID, "channel_id", i.ChannelID)
	}
}

func (h *Handler) publish(ctx context.Context, e events.Event) {
	if err := h.events.Publish(ctx, e); err != nil {
		h.logger.Warn("failed to publish event", tint.Err(err), "type", e.Type, "channel_id", e.ChannelID)
	}
}

func ephemeralFlag(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}
