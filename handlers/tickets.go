package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"ticket-bot/config"
	"ticket-bot/events"
	"ticket-bot/storage"
	"ticket-bot/transcript"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	colorBlue  = 0x0099FF
	colorGreen = 0x00FF00
	colorRed   = 0xFF0000

	panelHistoryLimit = 10
)

func ticketCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ticket",
			Description:              "Ticket system management",
			DefaultMemberPermissions: &staffPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "panel", Description: "Send or refresh the ticket panel",
					Type: discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name: "list", Description: "List all open tickets",
					Type: discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{Name: "close", Description: "Close the current ticket"},
	}
}

// ChannelName is the ticket channel name for a user. Case and punctuation are
// folded the way the platform folds text channel names.
func ChannelName(username string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(username) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(sb.String(), "-")
	if slug == "" {
		return "ticket"
	}
	return "ticket-" + slug
}

func (h *Handler) handleTicketCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	if !h.isStaff(i.Member) {
		h.respond(i, h.msgs.T("staff_only"), true)
		return
	}
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	switch opts[0].Name {
	case "panel":
		h.handleTicketPanel(ctx, i)
	case "list":
		h.handleTicketList(ctx, i)
	}
}

func (h *Handler) handleTicketPanel(ctx context.Context, i *discordgo.InteractionCreate) {
	if h.cfg.Tickets.PanelChannel == "" {
		h.respond(i, h.msgs.T("panel_no_channel"), true)
		return
	}
	// for bot users the application id and the user id are the same
	if err := h.RefreshPanel(ctx, i.AppID); err != nil {
		h.logger.Error("failed to post ticket panel", tint.Err(err))
		h.respond(i, h.msgs.T("panel_failed"), true)
		return
	}
	h.respond(i, h.msgs.T("panel_posted"), true)
}

func (h *Handler) handleTicketList(ctx context.Context, i *discordgo.InteractionCreate) {
	tickets, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("failed to list tickets", tint.Err(err))
		h.respond(i, h.msgs.T("generic_error"), true)
		return
	}
	if len(tickets) == 0 {
		h.respond(i, h.msgs.T("no_open_tickets"), true)
		return
	}

	var sb strings.Builder
	sb.WriteString(h.msgs.T("open_tickets_header", "count", strconv.Itoa(len(tickets))))
	for _, t := range tickets {
		sb.WriteByte('\n')
		sb.WriteString(h.msgs.T("open_ticket_line",
			"channel", t.ChannelID,
			"user", t.OwnerID,
			"since", strconv.FormatInt(t.CreatedAt.Unix(), 10),
			"status", t.Status.String(),
		))
	}
	h.respond(i, sb.String(), true)
}

// RefreshPanel edits the bot's panel message in the panel channel, or posts
// a new one when the recent history has none.
func (h *Handler) RefreshPanel(_ context.Context, botUserID string) error {
	channelID := h.cfg.Tickets.PanelChannel
	if channelID == "" {
		h.logger.Warn("no panel channel configured, skipping ticket panel")
		return nil
	}

	embed := &discordgo.MessageEmbed{
		Title:       h.msgs.T("panel_title"),
		Description: h.msgs.T("panel_description"),
		Color:       colorBlue,
		Footer:      &discordgo.MessageEmbedFooter{Text: h.msgs.T("panel_footer")},
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    h.msgs.T("panel_button"),
					Style:    discordgo.PrimaryButton,
					CustomID: ActionCreate.CustomID(),
					Emoji:    &discordgo.ComponentEmoji{Name: "📩"},
				},
			},
		},
	}

	history, err := h.session.ChannelMessages(channelID, panelHistoryLimit, "", "", "")
	if err != nil {
		return fmt.Errorf("fetch panel channel history: %w", err)
	}
	for _, m := range history {
		if m.Author == nil || m.Author.ID != botUserID {
			continue
		}
		embeds := []*discordgo.MessageEmbed{embed}
		if _, err := h.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         m.ID,
			Channel:    channelID,
			Embeds:     &embeds,
			Components: &components,
		}); err != nil {
			return fmt.Errorf("edit panel message: %w", err)
		}
		h.logger.Info("ticket panel updated", "channel_id", channelID, "message_id", m.ID)
		return nil
	}

	msg, err := h.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
		return fmt.Errorf("send panel message: %w", err)
	}
	h.logger.Info("ticket panel posted", "channel_id", channelID, "message_id", msg.ID)
	return nil
}

// existingTicket returns the channel id of the requester's open ticket, or
// "" when there is none.
func (h *Handler) existingTicket(ctx context.Context, guildID string, user *discordgo.User) (string, error) {
	if h.cfg.Tickets.DuplicateCheck == config.DuplicateCheckOwner {
		tickets, err := h.store.List(ctx)
		if err != nil {
			return "", fmt.Errorf("list tickets: %w", err)
		}
		for _, t := range tickets {
			if t.OwnerID == user.ID {
				return t.ChannelID, nil
			}
		}
		return "", nil
	}

	channels, err := h.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("fetch guild channels: %w", err)
	}
	name := ChannelName(user.Username)
	for _, c := range channels {
		if strings.EqualFold(c.Name, name) && c.ParentID == h.cfg.Tickets.DiscordCategory {
			return c.ID, nil
		}
	}
	return "", nil
}

func (h *Handler) handleCreate(ctx context.Context, i *discordgo.InteractionCreate) {
	user := i.Member.User
	unlock := h.locks.Lock("user:" + user.ID)
	defer unlock()

	existing, err := h.existingTicket(ctx, i.GuildID, user)
	if err != nil {
		h.logger.Error("duplicate ticket check failed", tint.Err(err), "user_id", user.ID)
		h.respond(i, h.msgs.T("ticket_create_failed"), true)
		return
	}
	if existing != "" {
		h.respond(i, h.msgs.T("ticket_exists", "channel", existing), true)
		return
	}

	staffRole := h.cfg.Tickets.StaffRole
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: i.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{
			ID:    user.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
	}
	if staffRole != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    staffRole,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}

	ch, err := h.session.GuildChannelCreateComplex(i.GuildID, discordgo.GuildChannelCreateData{
		Name:                 ChannelName(user.Username),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             h.cfg.Tickets.DiscordCategory,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		h.logger.Error("failed to create ticket channel", tint.Err(err), "user_id", user.ID)
		h.respond(i, h.msgs.T("ticket_create_failed"), true)
		return
	}

	ticket := storage.Ticket{
		ChannelID: ch.ID,
		OwnerID:   user.ID,
		CreatedAt: h.now(),
		Status:    storage.StatusOpen,
	}
	unlockChannel := h.locks.Lock(ch.ID)
	err = h.store.Create(ctx, ticket)
	unlockChannel()
	if err != nil {
		if errors.Is(err, storage.ErrTicketExists) {
			h.logger.Error("registry already holds the new channel", "ticket", ticket)
		} else {
			h.logger.Error("failed to register ticket", tint.Err(err), "ticket", ticket)
		}
		if _, derr := h.session.ChannelDelete(ch.ID); derr != nil {
			h.logger.Error("failed to remove unregistered ticket channel", tint.Err(derr), "channel_id", ch.ID)
		}
		h.respond(i, h.msgs.T("ticket_create_failed"), true)
		return
	}
	h.logger.Info("ticket created", "ticket", ticket)

	ping := fmt.Sprintf("<@%s>", user.ID)
	if staffRole != "" {
		ping += fmt.Sprintf(" | <@&%s>", staffRole)
	}
	welcome := &discordgo.MessageEmbed{
		Title:       h.msgs.T("welcome_title"),
		Description: h.msgs.T("welcome_description", "user", user.ID),
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: h.msgs.T("welcome_field_user"), Value: fmt.Sprintf("<@%s>", user.ID), Inline: true},
			{Name: h.msgs.T("welcome_field_status"), Value: h.msgs.T("welcome_status_open"), Inline: true},
		},
		Timestamp: ticket.CreatedAt.Format(time.RFC3339),
	}
	if _, err := h.session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: ping,
		Embeds:  []*discordgo.MessageEmbed{welcome},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label: h.msgs.T("close_button"), Style: discordgo.DangerButton,
						CustomID: ActionCloseRequest.CustomID(),
						Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
					},
					discordgo.Button{
						Label: h.msgs.T("claim_button"), Style: discordgo.SecondaryButton,
						CustomID: ActionClaim.CustomID(),
						Emoji:    &discordgo.ComponentEmoji{Name: "🙋"},
					},
				},
			},
		},
	}); err != nil {
		h.logger.Error("failed to send welcome message", tint.Err(err), "channel_id", ch.ID)
	}

	h.respond(i, h.msgs.T("ticket_created", "channel", ch.ID), true)

	if logCh := h.cfg.Tickets.LogChannel; logCh != "" {
		embed := &discordgo.MessageEmbed{
			Title: h.msgs.T("log_created_title"),
			Color: colorBlue,
			Fields: []*discordgo.MessageEmbedField{
				{Name: h.msgs.T("log_field_user"), Value: user.String(), Inline: true},
				{Name: h.msgs.T("log_field_channel"), Value: fmt.Sprintf("<#%s>", ch.ID), Inline: true},
			},
			Timestamp: ticket.CreatedAt.Format(time.RFC3339),
		}
		if _, err := h.session.ChannelMessageSendComplex(logCh, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{embed},
		}); err != nil {
			h.logger.Error("failed to send ticket log", tint.Err(err), "log_channel", logCh)
		}
	}

	h.publish(ctx, events.New(events.TicketCreated, i.GuildID, ch.ID, user.ID, user.ID, ticket.CreatedAt))
}

// openTicket loads the ticket for the interaction's channel and answers the
// user when the channel is not an open ticket.
func (h *Handler) openTicket(ctx context.Context, i *discordgo.InteractionCreate) (storage.Ticket, bool) {
	t, err := h.store.Get(ctx, i.ChannelID)
	switch {
	case errors.Is(err, storage.ErrTicketNotFound):
		h.respond(i, h.msgs.T("not_a_ticket"), true)
		return t, false
	case err != nil:
		h.logger.Error("failed to load ticket", tint.Err(err), "channel_id", i.ChannelID)
		h.respond(i, h.msgs.T("generic_error"), true)
		return t, false
	case t.Status != storage.StatusOpen:
		h.respond(i, h.msgs.T("already_closing"), true)
		return t, false
	}
	return t, true
}

func (h *Handler) handleCloseRequest(ctx context.Context, i *discordgo.InteractionCreate) {
	unlock := h.locks.Lock(i.ChannelID)
	_, ok := h.openTicket(ctx, i)
	unlock()
	if !ok {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       h.msgs.T("confirm_title"),
		Description: h.msgs.T("confirm_description"),
		Color:       colorRed,
	}
	h.respondEmbed(i, embed, []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: h.msgs.T("confirm_button"), Style: discordgo.DangerButton, CustomID: ActionConfirmClose.CustomID()},
				discordgo.Button{Label: h.msgs.T("cancel_button"), Style: discordgo.SecondaryButton, CustomID: ActionCancelClose.CustomID()},
			},
		},
	}, true)
}

func (h *Handler) handleCancelClose(i *discordgo.InteractionCreate) {
	h.update(i, h.msgs.T("close_cancelled"))
}

func (h *Handler) handleConfirmClose(ctx context.Context, i *discordgo.InteractionCreate) {
	channelID := i.ChannelID
	unlock := h.locks.Lock(channelID)
	defer unlock()

	ticket, ok := h.openTicket(ctx, i)
	if !ok {
		return
	}
	if err := h.store.SetStatus(ctx, channelID, storage.StatusClosing); err != nil {
		h.logger.Error("failed to mark ticket closing", tint.Err(err), "channel_id", channelID)
		h.respond(i, h.msgs.T("generic_error"), true)
		return
	}
	closedBy := i.Member.User
	h.logger.Info("closing ticket", "ticket", ticket, "closed_by", closedBy.ID)

	h.update(i, h.msgs.T("closing"))

	path := h.saveTranscript(channelID)
	h.sendCloseLog(ticket, closedBy, path)

	if err := h.store.Delete(ctx, channelID); err != nil {
		h.logger.Error("failed to remove ticket from registry", tint.Err(err), "channel_id", channelID)
	}

	err := h.scheduler.Schedule(channelID, h.cfg.Tickets.DeleteDelay, func(context.Context) error {
		if _, err := h.session.ChannelDelete(channelID); err != nil {
			return fmt.Errorf("delete ticket channel %s: %w", channelID, err)
		}
		h.logger.Info("ticket channel deleted", "channel_id", channelID)
		return nil
	})
	if err != nil {
		h.logger.Error("could not schedule ticket channel deletion", tint.Err(err), "channel_id", channelID)
	}

	h.publish(ctx, events.New(events.TicketClosed, i.GuildID, channelID, ticket.OwnerID, closedBy.ID, h.now()))
}

// saveTranscript writes the channel's recent history and returns the file
// path, or "" when the transcript could not be produced.
func (h *Handler) saveTranscript(channelID string) string {
	msgs, err := h.session.ChannelMessages(channelID, h.cfg.Tickets.TranscriptLimit, "", "", "")
	if err != nil {
		h.logger.Error("failed to fetch ticket history", tint.Err(err), "channel_id", channelID)
		return ""
	}
	path, err := h.transcripts.Write(channelID, transcript.Chronological(msgs))
	if err != nil {
		h.logger.Error("failed to save transcript", tint.Err(err), "channel_id", channelID)
		return ""
	}
	h.logger.Info("transcript saved", "channel_id", channelID, "path", path, "messages", len(msgs))
	return path
}

func (h *Handler) sendCloseLog(ticket storage.Ticket, closedBy *discordgo.User, transcriptPath string) {
	logCh := h.cfg.Tickets.LogChannel
	if logCh == "" {
		return
	}

	owner := fmt.Sprintf("<@%s>", ticket.OwnerID)
	if u, err := h.session.User(ticket.OwnerID); err != nil {
		h.logger.Warn("failed to fetch ticket owner", tint.Err(err), "user_id", ticket.OwnerID)
	} else {
		owner = u.String()
	}
	channelName := ticket.ChannelID
	if ch, err := h.session.Channel(ticket.ChannelID); err == nil {
		channelName = ch.Name
	}

	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: h.msgs.T("log_closed_title"),
			Color: colorRed,
			Fields: []*discordgo.MessageEmbedField{
				{Name: h.msgs.T("log_field_user"), Value: owner, Inline: true},
				{Name: h.msgs.T("log_field_closed_by"), Value: closedBy.String(), Inline: true},
				{Name: h.msgs.T("log_field_channel"), Value: channelName, Inline: true},
			},
			Timestamp: h.now().Format(time.RFC3339),
		}},
	}
	if transcriptPath != "" {
		f, err := os.Open(transcriptPath)
		if err != nil {
			h.logger.Error("failed to open transcript", tint.Err(err), "path", transcriptPath)
		} else {
			defer f.Close()
			msg.Files = []*discordgo.File{{
				Name:        filepath.Base(transcriptPath),
				ContentType: "text/plain",
				Reader:      f,
			}}
		}
	}

	if _, err := h.session.ChannelMessageSendComplex(logCh, msg); err != nil {
		h.logger.Error("failed to send ticket log", tint.Err(err), "log_channel", logCh)
	}
}

func (h *Handler) handleClaim(ctx context.Context, i *discordgo.InteractionCreate) {
	if !h.isStaff(i.Member) {
		h.respond(i, h.msgs.T("claim_staff_only"), true)
		return
	}
	user := i.Member.User
	h.respondEmbed(i, &discordgo.MessageEmbed{
		Description: h.msgs.T("claimed_by", "user", user.ID),
		Color:       colorGreen,
	}, nil, false)
	h.logger.Info("ticket claimed", "channel_id", i.ChannelID, "user_id", user.ID)

	h.publish(ctx, events.New(events.TicketClaimed, i.GuildID, i.ChannelID, "", user.ID, h.now()))
}
