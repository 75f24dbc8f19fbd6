package bot

import (
	"context"
	"strings"

	"replay-warden/internal/replay"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	defer b.recoverEvent("message_create")
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	if msg.Type != discordgo.MessageTypeDefault && msg.Type != discordgo.MessageTypeReply {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, handlerTimeout)
	defer cancel()

	switch legacyCommand(msg.Content, b.cfg.CommandPrefix) {
	case commandStatus:
		if msg.ChannelID == b.cfg.ReplayChannelID {
			b.handleLegacyStatus(ctx, msg)
			return
		}
	case commandReset:
		b.handleLegacyReset(ctx, msg)
		return
	}

	if msg.ChannelID != b.cfg.ReplayChannelID {
		return
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, attachment := range msg.Attachments {
		if attachment != nil {
			names = append(names, attachment.Filename)
		}
	}
	outcome, err := b.replay.Submit(ctx, replay.Submission{
		UserID:      msg.Author.ID,
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		MessageID:   msg.ID,
		Attachments: names,
	})
	if err != nil {
		b.logger.Error("submission failed", zap.String("user_id", msg.Author.ID), zap.String("message_id", msg.ID), zap.Error(err))
		if replay.IsRetryable(err) {
			b.reply(ctx, msg, b.t("error_retry"))
		}
		return
	}
	if outcome.Status != replay.StatusIgnored {
		b.logger.Debug("submission handled",
			zap.String("user_id", msg.Author.ID),
			zap.Int("status", int(outcome.Status)),
			zap.String("delivery", outcome.Delivery.String()),
		)
	}
}

// legacyCommand returns the text command named by content, or "" when there is none.
// The status command takes no arguments; reset takes the mentioned user.
func legacyCommand(content, prefix string) string {
	fields := strings.Fields(content)
	if prefix == "" || len(fields) == 0 || !strings.HasPrefix(fields[0], prefix) {
		return ""
	}
	switch name := strings.TrimPrefix(fields[0], prefix); name {
	case commandStatus:
		if len(fields) == 1 {
			return name
		}
	case commandReset:
		return name
	}
	return ""
}

func (b *Bot) handleLegacyStatus(ctx context.Context, msg *discordgo.MessageCreate) {
	report, err := b.replay.Status(ctx, msg.Author.ID)
	if err != nil {
		b.logger.Error("status lookup failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		b.reply(ctx, msg, b.t("error_retry"))
		return
	}
	b.reply(ctx, msg, statusText(b.cfg.Language, report))
	b.deleteCommandMessage(ctx, msg)
}

func (b *Bot) handleLegacyReset(ctx context.Context, msg *discordgo.MessageCreate) {
	actor := b.actorFromMessage(msg)
	if len(msg.Mentions) == 0 || msg.Mentions[0] == nil {
		if b.replay.Access().IsAdmin(actor) {
			b.reply(ctx, msg, b.t("reset_usage", b.cfg.CommandPrefix))
		}
		return
	}
	target := msg.Mentions[0].ID
	status, err := b.replay.Reset(ctx, actor, target)
	if err != nil {
		b.logger.Error("reset failed", zap.String("target_id", target), zap.Error(err))
		b.reply(ctx, msg, b.t("error_retry"))
		return
	}
	b.reply(ctx, msg, b.resetText(status, target))
	if status != replay.ResetDenied {
		b.deleteCommandMessage(ctx, msg)
	}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	defer b.recoverEvent("interaction_create")

	ctx, cancel := context.WithTimeout(b.ctx, handlerTimeout)
	defer cancel()

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, session, interaction)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, session, interaction)
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.GuildID == "" || interaction.Member == nil {
		b.respond(session, interaction, b.t("error_only_guild"), true)
		return
	}
	actor := actorFromMember(interaction.Member)
	data := interaction.ApplicationCommandData()
	options := optionsByName(data.Options)

	switch data.Name {
	case commandStatus:
		report, err := b.replay.Status(ctx, actor.ID)
		if err != nil {
			b.logger.Error("status lookup failed", zap.String("user_id", actor.ID), zap.Error(err))
			b.respond(session, interaction, b.t("error_retry"), true)
			return
		}
		b.respond(session, interaction, statusText(b.cfg.Language, report), true)
	case commandReset:
		opt := options["user"]
		if opt == nil {
			b.respond(session, interaction, b.t("error_bad_option"), true)
			return
		}
		if !b.deferReply(ctx, session, interaction) {
			return
		}
		target := opt.UserValue(nil).ID
		status, err := b.replay.Reset(ctx, actor, target)
		if err != nil {
			b.logger.Error("reset failed", zap.String("target_id", target), zap.Error(err))
			b.followup(ctx, session, interaction, b.t("error_retry"))
			return
		}
		b.followup(ctx, session, interaction, b.resetText(status, target))
	case commandReview:
		userOpt, actionOpt := options["user"], options["action"]
		if userOpt == nil || actionOpt == nil {
			b.respond(session, interaction, b.t("error_bad_option"), true)
			return
		}
		action, ok := replay.ParseAction(actionOpt.StringValue())
		if !ok {
			b.respond(session, interaction, b.t("error_bad_option"), true)
			return
		}
		if !b.deferReply(ctx, session, interaction) {
			return
		}
		target := userOpt.UserValue(nil).ID
		outcome, err := b.replay.Review(ctx, actor, target, action)
		if err != nil {
			b.logger.Error("review failed", zap.String("target_id", target), zap.Error(err))
			b.followup(ctx, session, interaction, b.t("error_retry"))
			return
		}
		b.followup(ctx, session, interaction, b.reviewText(outcome, target))
	case commandQueue:
		if !b.replay.Access().IsReviewer(actor) {
			b.respond(session, interaction, b.t("denied_reviewer"), true)
			return
		}
		report, err := b.queue.Queue(ctx, queueLimit)
		if err != nil {
			b.logger.Error("queue lookup failed", zap.Error(err))
			b.respond(session, interaction, b.t("error_retry"), true)
			return
		}
		b.respond(session, interaction, queueText(b.cfg.Language, report), true)
	}
}

// handleComponent acknowledges the button press first, then edits the prompt through the service.
func (b *Bot) handleComponent(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.MessageComponentData()
	action, submissionID, ok := parseCustomID(data.CustomID)
	if !ok || interaction.Message == nil {
		return
	}
	if interaction.Member == nil {
		b.respond(session, interaction, b.t("error_only_guild"), true)
		return
	}

	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("interaction ack failed", zap.String("custom_id", data.CustomID), zap.Error(err))
		return
	}

	actor := actorFromMember(interaction.Member)
	outcome, err := b.replay.ReviewPrompt(ctx, actor, interaction.Message.ID, submissionID, action)
	if err != nil {
		b.logger.Error("prompt review failed", zap.String("prompt_id", interaction.Message.ID), zap.Error(err))
		b.followup(ctx, session, interaction, b.t("error_retry"))
		return
	}
	switch outcome.Status {
	case replay.ReviewDenied:
		b.followup(ctx, session, interaction, b.t("denied_reviewer"))
	case replay.ReviewNotFound:
		b.followup(ctx, session, interaction, b.t("review_not_found"))
	}
}

func (b *Bot) resetText(status replay.ResetStatus, target string) string {
	switch status {
	case replay.ResetDone:
		return b.t("reset_done", target)
	case replay.ResetNotFound:
		return b.t("reset_not_found", target)
	default:
		return b.t("denied_admin")
	}
}

func (b *Bot) reviewText(outcome replay.ReviewOutcome, target string) string {
	switch outcome.Status {
	case replay.ReviewDenied:
		return b.t("denied_reviewer")
	case replay.ReviewNotFound:
		return b.t("reset_not_found", target)
	}
	if !outcome.Changed {
		return b.t("review_unchanged", target)
	}
	return b.t("review_done", target)
}

func (b *Bot) reply(ctx context.Context, msg *discordgo.MessageCreate, content string) {
	_, err := b.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content:         content,
		Reference:       msg.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
}

func (b *Bot) deleteCommandMessage(ctx context.Context, msg *discordgo.MessageCreate) {
	if err := b.session.ChannelMessageDelete(msg.ChannelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
		b.logger.Debug("delete command message failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// deferReply acknowledges a command whose work touches chat before it can answer. The answer goes out via followup.
func (b *Bot) deferReply(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) bool {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("interaction defer failed", zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) followup(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	_, err := session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("followup failed", zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           flags,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) actorFromMessage(msg *discordgo.MessageCreate) replay.Actor {
	actor := replay.Actor{ID: msg.Author.ID}
	if msg.Member != nil {
		actor.RoleIDs = msg.Member.Roles
	}
	perms, err := b.session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err == nil {
		actor.Administrator = perms&discordgo.PermissionAdministrator != 0
	}
	return actor
}

func actorFromMember(member *discordgo.Member) replay.Actor {
	actor := replay.Actor{
		RoleIDs:       member.Roles,
		Administrator: member.Permissions&discordgo.PermissionAdministrator != 0,
	}
	if member.User != nil {
		actor.ID = member.User.ID
	}
	return actor
}
