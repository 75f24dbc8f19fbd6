package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Record is the persisted state of one user's latest replay submission.
type Record struct {
	UserID          string
	GuildID         string
	ChannelID       string
	FileName        string
	SubmissionID    string
	SubmittedAt     time.Time
	Reviewed        bool
	Absent          bool
	ReviewedBy      string
	ReviewedAt      *time.Time
	SourceMessageID string
	PromptMessageID string
}

// Pending reports whether the record is still waiting for a review decision.
func (r Record) Pending() bool {
	return !r.Reviewed && !r.Absent
}

// Store is the per-user record contract shared by every backend. All operations are single-key.
// ListPending returns unreviewed records oldest first; a limit of zero or less means no limit.
type Store interface {
	GetRecord(ctx context.Context, userID string) (Record, error)
	FindRecordByPrompt(ctx context.Context, promptMessageID string) (Record, error)
	UpsertRecord(ctx context.Context, record Record) error
	DeleteRecord(ctx context.Context, userID string) (bool, error)
	ListPending(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

// AuditSink is implemented by backends that can persist audit entries.
type AuditSink interface {
	AddAuditLog(ctx context.Context, log AuditLog) error
	CleanupAuditLogs(ctx context.Context, retentionDays int) error
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
