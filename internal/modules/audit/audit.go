package audit

import (
	"context"
	"time"

	"replay-warden/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

const (
	EventAccepted     = "replay_accepted"
	EventRejected     = "replay_rejected"
	EventReviewed     = "replay_reviewed"
	EventAbsent       = "replay_absent"
	EventReset        = "replay_reset"
	EventReviewDenied = "review_denied"
)

type Logger struct {
	sink   storage.AuditSink
	logger *zap.Logger
}

// NewLogger persists entries when sink is non-nil and always mirrors them to zap.
func NewLogger(sink storage.AuditSink, logger *zap.Logger) *Logger {
	return &Logger{sink: sink, logger: logger}
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.sink != nil {
		if err := l.sink.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Cleanup drops persisted entries older than retentionDays. It is a no-op without a sink.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) error {
	if l.sink == nil || retentionDays <= 0 {
		return nil
	}
	return l.sink.CleanupAuditLogs(ctx, retentionDays)
}
