package bot

import (
	"replay-warden/internal/replay"

	"github.com/bwmarrin/discordgo"
)

const (
	commandStatus = "replay-status"
	commandReset  = "replay-reset"
	commandReview = "replay-review"
	commandQueue  = "replay-queue"
)

func localized(key string) *map[discordgo.Locale]string {
	values := map[discordgo.Locale]string{
		discordgo.SpanishES: translate("es", key),
		discordgo.EnglishUS: translate("en", key),
		discordgo.EnglishGB: translate("en", key),
	}
	return &values
}

func userOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     discordgo.ApplicationCommandOptionUser,
		Name:                     "user",
		Description:              translate("en", "opt_user_desc"),
		DescriptionLocalizations: *localized("opt_user_desc"),
		Required:                 true,
	}
}

func applicationCommands() []*discordgo.ApplicationCommand {
	dmPermission := false
	return []*discordgo.ApplicationCommand{
		{
			Name:                     commandStatus,
			Description:              translate("en", "cmd_status_desc"),
			DescriptionLocalizations: localized("cmd_status_desc"),
			DMPermission:             &dmPermission,
		},
		{
			Name:                     commandReset,
			Description:              translate("en", "cmd_reset_desc"),
			DescriptionLocalizations: localized("cmd_reset_desc"),
			DMPermission:             &dmPermission,
			Options:                  []*discordgo.ApplicationCommandOption{userOption()},
		},
		{
			Name:                     commandReview,
			Description:              translate("en", "cmd_review_desc"),
			DescriptionLocalizations: localized("cmd_review_desc"),
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				userOption(),
				{
					Type:                     discordgo.ApplicationCommandOptionString,
					Name:                     "action",
					Description:              translate("en", "opt_action_desc"),
					DescriptionLocalizations: *localized("opt_action_desc"),
					Required:                 true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: translate("en", "choice_reviewed"), NameLocalizations: *localized("choice_reviewed"), Value: string(replay.ActionReviewed)},
						{Name: translate("en", "choice_absent"), NameLocalizations: *localized("choice_absent"), Value: string(replay.ActionAbsent)},
					},
				},
			},
		},
		{
			Name:                     commandQueue,
			Description:              translate("en", "cmd_queue_desc"),
			DescriptionLocalizations: localized("cmd_queue_desc"),
			DMPermission:             &dmPermission,
		},
	}
}

// registerCommands replaces the guild's command set in one call, which also drops stale commands.
func (b *Bot) registerCommands(appID, guildID string) error {
	_, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, applicationCommands())
	return err
}

func optionsByName(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		byName[opt.Name] = opt
	}
	return byName
}
