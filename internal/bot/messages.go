package bot

import (
	"fmt"
	"strings"
	"time"

	"replay-warden/internal/analytics"
	"replay-warden/internal/config"
	"replay-warden/internal/cooldown"
	"replay-warden/internal/replay"
	"replay-warden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

var messages = map[string]map[string]string{
	"es": {
		"remaining":        "%d días, %d horas y %d minutos",
		"window_fixed":     "cada %d días",
		"window_month":     "por mes natural",
		"status_none":      "✅ Aún no has subido ningún replay. ¡Puedes enviar uno ahora!",
		"status_ready":     "✅ Ya puedes subir un nuevo replay.",
		"status_wait":      "⏳ Podrás subir otro replay en **%s** (<t:%d:f>).",
		"status_reviewed":  "✅ Tu replay ya fue **revisado**.",
		"status_absent":    "❌ Tu replay fue marcado como **ausente**.",
		"status_pending":   "🕒 Aún no ha sido revisado.",
		"cooldown_notice":  "🚫 Solo puedes subir **1 replay (%s)** %s.\n⏳ Podrás subir otro en **%s**.",
		"prompt_title":     "🎮 Replay recibido",
		"prompt_pending":   "Replay recibido de <@%s>. Esperando revisión.",
		"prompt_reviewed":  "✅ Replay de <@%s> **revisado por <@%s>**.",
		"prompt_absent":    "❌ Replay de <@%s> **marcado como ausente por <@%s>**.",
		"field_user":       "Usuario",
		"field_file":       "Archivo",
		"field_submitted":  "Enviado",
		"button_reviewed":  "Revisado",
		"button_absent":    "Ausente",
		"notice_reviewed":  "✅ Tu replay `%s` fue revisado.",
		"notice_absent":    "❌ Tu replay `%s` fue marcado como ausente.",
		"reset_done":       "🔄 Replay de <@%s> ha sido reseteado. Ya puede subir uno nuevo.",
		"reset_not_found":  "ℹ️ <@%s> no tiene ningún replay registrado.",
		"reset_usage":      "Uso: `%sreplay-reset @usuario`",
		"review_done":      "Replay de <@%s> actualizado.",
		"review_unchanged": "El replay de <@%s> ya tenía ese estado.",
		"review_not_found": "⚠️ Este replay ya no está pendiente o fue reemplazado por uno nuevo.",
		"denied_reviewer":  "❌ Solo los revisores pueden hacer esto.",
		"denied_admin":     "❌ Solo los administradores pueden resetear replays.",
		"queue_title":      "📋 Replays pendientes",
		"queue_empty":      "No hay replays pendientes de revisión.",
		"queue_line":       "%d. <@%s> `%s` subido <t:%d:R>",
		"error_retry":      "⚠️ No se pudo guardar el cambio. Inténtalo de nuevo en unos segundos.",
		"error_only_guild": "Este comando solo funciona dentro de un servidor.",
		"error_bad_option": "Opción no válida.",
		"cmd_status_desc":  "Muestra cuándo puedes subir otro replay",
		"cmd_reset_desc":   "Resetea el replay de un usuario (solo admins)",
		"cmd_review_desc":  "Marca el replay de un usuario como revisado o ausente",
		"cmd_queue_desc":   "Lista los replays pendientes de revisión",
		"opt_user_desc":    "Usuario",
		"opt_action_desc":  "Decisión de revisión",
		"choice_reviewed":  "revisado",
		"choice_absent":    "ausente",
	},
	"en": {
		"remaining":        "%d days, %d hours and %d minutes",
		"window_fixed":     "every %d days",
		"window_month":     "per calendar month",
		"status_none":      "✅ You have not uploaded a replay yet. You can send one now!",
		"status_ready":     "✅ You can upload a new replay.",
		"status_wait":      "⏳ You can upload another replay in **%s** (<t:%d:f>).",
		"status_reviewed":  "✅ Your replay has been **reviewed**.",
		"status_absent":    "❌ Your replay was marked as **absent**.",
		"status_pending":   "🕒 Not reviewed yet.",
		"cooldown_notice":  "🚫 You can only upload **1 replay (%s)** %s.\n⏳ You can upload another in **%s**.",
		"prompt_title":     "🎮 Replay received",
		"prompt_pending":   "Replay received from <@%s>. Waiting for review.",
		"prompt_reviewed":  "✅ Replay from <@%s> **reviewed by <@%s>**.",
		"prompt_absent":    "❌ Replay from <@%s> **marked absent by <@%s>**.",
		"field_user":       "User",
		"field_file":       "File",
		"field_submitted":  "Submitted",
		"button_reviewed":  "Reviewed",
		"button_absent":    "Absent",
		"notice_reviewed":  "✅ Your replay `%s` was reviewed.",
		"notice_absent":    "❌ Your replay `%s` was marked absent.",
		"reset_done":       "🔄 Replay of <@%s> has been reset. They can upload a new one.",
		"reset_not_found":  "ℹ️ <@%s> has no recorded replay.",
		"reset_usage":      "Usage: `%sreplay-reset @user`",
		"review_done":      "Replay of <@%s> updated.",
		"review_unchanged": "The replay of <@%s> already had that state.",
		"review_not_found": "⚠️ This replay is no longer pending or was replaced by a newer one.",
		"denied_reviewer":  "❌ Only reviewers can do this.",
		"denied_admin":     "❌ Only administrators can reset replays.",
		"queue_title":      "📋 Pending replays",
		"queue_empty":      "No replays are waiting for review.",
		"queue_line":       "%d. <@%s> `%s` uploaded <t:%d:R>",
		"error_retry":      "⚠️ The change could not be saved. Try again in a few seconds.",
		"error_only_guild": "This command only works inside a server.",
		"error_bad_option": "Invalid option.",
		"cmd_status_desc":  "Show when you can upload another replay",
		"cmd_reset_desc":   "Reset a user's replay (admins only)",
		"cmd_review_desc":  "Mark a user's replay as reviewed or absent",
		"cmd_queue_desc":   "List replays waiting for review",
		"opt_user_desc":    "User",
		"opt_action_desc":  "Review decision",
		"choice_reviewed":  "reviewed",
		"choice_absent":    "absent",
	},
}

func translate(lang, key string, args ...any) string {
	catalog, ok := messages[lang]
	if !ok {
		catalog = messages["es"]
	}
	text, ok := catalog[key]
	if !ok {
		text, ok = messages["es"][key]
		if !ok {
			return key
		}
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}

func remainingText(lang string, remaining cooldown.Breakdown) string {
	return translate(lang, "remaining", remaining.Days, remaining.Hours, remaining.Minutes)
}

func windowText(lang string, policy cooldown.Policy) string {
	if fixed, ok := policy.(cooldown.Fixed); ok {
		return translate(lang, "window_fixed", fixed.Days)
	}
	return translate(lang, "window_month")
}

func cooldownText(lang, suffix string, policy cooldown.Policy, notice replay.Notice) string {
	return translate(lang, "cooldown_notice", suffix, windowText(lang, policy), remainingText(lang, notice.Remaining))
}

func noticeText(lang, suffix string, policy cooldown.Policy, notice replay.Notice) string {
	switch notice.Kind {
	case replay.NoticeReviewed:
		return translate(lang, "notice_reviewed", notice.FileName)
	case replay.NoticeAbsent:
		return translate(lang, "notice_absent", notice.FileName)
	default:
		return cooldownText(lang, suffix, policy, notice)
	}
}

func statusText(lang string, report replay.StatusReport) string {
	if !report.HasRecord {
		return translate(lang, "status_none")
	}
	lines := make([]string, 0, 2)
	if report.Eligible {
		lines = append(lines, translate(lang, "status_ready"))
	} else {
		lines = append(lines, translate(lang, "status_wait", remainingText(lang, cooldown.Split(report.Remaining)), report.NextEligible.Unix()))
	}
	switch {
	case report.Record.Reviewed:
		lines = append(lines, translate(lang, "status_reviewed"))
	case report.Record.Absent:
		lines = append(lines, translate(lang, "status_absent"))
	default:
		lines = append(lines, translate(lang, "status_pending"))
	}
	return strings.Join(lines, "\n")
}

func queueText(lang string, report analytics.QueueReport) string {
	if len(report.Entries) == 0 {
		return translate(lang, "queue_empty")
	}
	lines := make([]string, 0, len(report.Entries)+1)
	lines = append(lines, "**"+translate(lang, "queue_title")+"**")
	for idx, entry := range report.Entries {
		lines = append(lines, translate(lang, "queue_line", idx+1, entry.Record.UserID, entry.Record.FileName, entry.Record.SubmittedAt.Unix()))
	}
	return strings.Join(lines, "\n")
}

func promptEmbed(lang string, colors config.EmbedColors, record storage.Record) *discordgo.MessageEmbed {
	description := translate(lang, "prompt_pending", record.UserID)
	color := colors.Pending
	switch {
	case record.Reviewed:
		description = translate(lang, "prompt_reviewed", record.UserID, record.ReviewedBy)
		color = colors.Reviewed
	case record.Absent:
		description = translate(lang, "prompt_absent", record.UserID, record.ReviewedBy)
		color = colors.Absent
	}
	return &discordgo.MessageEmbed{
		Title:       translate(lang, "prompt_title"),
		Description: description,
		Color:       color,
		Timestamp:   record.SubmittedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: translate(lang, "field_user"), Value: "<@" + record.UserID + ">", Inline: true},
			{Name: translate(lang, "field_file"), Value: "`" + record.FileName + "`", Inline: true},
			{Name: translate(lang, "field_submitted"), Value: fmt.Sprintf("<t:%d:R>", record.SubmittedAt.Unix()), Inline: true},
		},
	}
}

// promptComponents returns the review buttons, or none once a decision exists.
func promptComponents(lang string, record storage.Record) []discordgo.MessageComponent {
	if !record.Pending() {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    translate(lang, "button_reviewed"),
					Style:    discordgo.SuccessButton,
					CustomID: customID(replay.ActionReviewed, record.SubmissionID),
					Emoji:    &discordgo.ComponentEmoji{Name: "✅"},
				},
				discordgo.Button{
					Label:    translate(lang, "button_absent"),
					Style:    discordgo.DangerButton,
					CustomID: customID(replay.ActionAbsent, record.SubmissionID),
					Emoji:    &discordgo.ComponentEmoji{Name: "❌"},
				},
			},
		},
	}
}

const customIDPrefix = "replay"

func customID(action replay.Action, submissionID string) string {
	return customIDPrefix + ":" + string(action) + ":" + submissionID
}

func parseCustomID(value string) (replay.Action, string, bool) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	action, ok := replay.ParseAction(parts[1])
	if !ok {
		return "", "", false
	}
	return action, parts[2], true
}
