package bot

import (
	"context"
	"errors"

	"replay-warden/internal/config"
	"replay-warden/internal/cooldown"
	"replay-warden/internal/replay"
	"replay-warden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

// Chat performs the outbound Discord actions of the replay service.
type Chat struct {
	session *discordgo.Session
	lang    string
	suffix  string
	colors  config.EmbedColors
	policy  cooldown.Policy
}

func NewChat(session *discordgo.Session, cfg config.Config, policy cooldown.Policy) *Chat {
	return &Chat{
		session: session,
		lang:    cfg.Language,
		suffix:  cfg.ReplaySuffix,
		colors:  cfg.EmbedColors,
		policy:  policy,
	}
}

var _ replay.Chat = (*Chat)(nil)

func (c *Chat) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *Chat) SendDirect(ctx context.Context, notice replay.Notice) error {
	channel, err := c.session.UserChannelCreate(notice.UserID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = c.session.ChannelMessageSend(channel.ID, noticeText(c.lang, c.suffix, c.policy, notice), discordgo.WithContext(ctx))
	return err
}

// SendPublic mentions the user in the channel, replying to the source message when one is given.
func (c *Chat) SendPublic(ctx context.Context, notice replay.Notice) error {
	if notice.ChannelID == "" {
		return errors.New("no channel for public notice")
	}
	send := &discordgo.MessageSend{
		Content: "<@" + notice.UserID + "> " + noticeText(c.lang, c.suffix, c.policy, notice),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{notice.UserID},
		},
	}
	if notice.ReplyToID != "" {
		failIfMissing := false
		send.Reference = &discordgo.MessageReference{
			MessageID:       notice.ReplyToID,
			ChannelID:       notice.ChannelID,
			FailIfNotExists: &failIfMissing,
		}
	}
	_, err := c.session.ChannelMessageSendComplex(notice.ChannelID, send, discordgo.WithContext(ctx))
	return err
}

func (c *Chat) PostPrompt(ctx context.Context, record storage.Record) (string, error) {
	send := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{promptEmbed(c.lang, c.colors, record)},
		Components:      promptComponents(c.lang, record),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if record.SourceMessageID != "" {
		failIfMissing := false
		send.Reference = &discordgo.MessageReference{
			MessageID:       record.SourceMessageID,
			ChannelID:       record.ChannelID,
			FailIfNotExists: &failIfMissing,
		}
	}
	msg, err := c.session.ChannelMessageSendComplex(record.ChannelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *Chat) UpdatePrompt(ctx context.Context, record storage.Record) error {
	embeds := []*discordgo.MessageEmbed{promptEmbed(c.lang, c.colors, record)}
	components := promptComponents(c.lang, record)
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    record.ChannelID,
		ID:         record.PromptMessageID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return err
}

func (c *Chat) React(ctx context.Context, channelID, messageID, emoji string) error {
	return c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}
