package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"replay-warden/internal/cooldown"
	"replay-warden/internal/modules/audit"
	"replay-warden/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Submission is an inbound message in the replay channel.
type Submission struct {
	UserID      string
	GuildID     string
	ChannelID   string
	MessageID   string
	Attachments []string
}

type SubmitStatus int

const (
	StatusIgnored SubmitStatus = iota
	StatusAccepted
	StatusRejected
)

type SubmitOutcome struct {
	Status       SubmitStatus
	Record       storage.Record
	Remaining    time.Duration
	NextEligible time.Time
	Delivery     Delivery
}

// Submit applies the cooldown to a replay upload and records it when allowed.
func (s *Service) Submit(ctx context.Context, sub Submission) (SubmitOutcome, error) {
	fileName, ok := s.replayAttachment(sub.Attachments)
	if !ok {
		return SubmitOutcome{Status: StatusIgnored}, nil
	}

	unlock := s.locks.Lock(sub.UserID)
	defer unlock()

	now := s.clock.Now()
	existing, found, err := s.loadRecord(ctx, sub.UserID)
	if err != nil {
		return SubmitOutcome{}, err
	}

	var last *time.Time
	if found {
		last = &existing.SubmittedAt
	}
	if !cooldown.Accept(now, last, s.policy) {
		return s.reject(ctx, sub, now, existing), nil
	}

	// Never record a timestamp at or before the previous one, even with a skewed clock.
	if found && !now.After(existing.SubmittedAt) {
		now = existing.SubmittedAt.Add(time.Millisecond)
	}

	record := storage.Record{
		UserID:          sub.UserID,
		GuildID:         sub.GuildID,
		ChannelID:       sub.ChannelID,
		FileName:        fileName,
		SubmissionID:    uuid.NewString(),
		SubmittedAt:     now,
		SourceMessageID: sub.MessageID,
	}
	if err := s.saveRecord(ctx, record); err != nil {
		return SubmitOutcome{}, err
	}
	s.audit.Log(ctx, audit.LevelInfo, sub.GuildID, sub.UserID, audit.EventAccepted, fmt.Sprintf("file=%s submission=%s", fileName, record.SubmissionID))

	promptID, err := s.chat.PostPrompt(ctx, record)
	if err != nil {
		s.logger.Warn("review prompt failed", zap.String("user_id", sub.UserID), zap.Error(err))
		return SubmitOutcome{Status: StatusAccepted, Record: record}, nil
	}
	record.PromptMessageID = promptID
	if err := s.saveRecord(ctx, record); err != nil {
		// The submission itself is stored; only the prompt link is missing.
		s.logger.Error("prompt reference not saved", zap.String("user_id", sub.UserID), zap.String("prompt_id", promptID), zap.Error(err))
	}
	return SubmitOutcome{Status: StatusAccepted, Record: record}, nil
}

func (s *Service) reject(ctx context.Context, sub Submission, now time.Time, existing storage.Record) SubmitOutcome {
	remaining := cooldown.Remaining(now, existing.SubmittedAt, s.policy)
	next := s.policy.NextEligible(existing.SubmittedAt)

	if err := s.chat.DeleteMessage(ctx, sub.ChannelID, sub.MessageID); err != nil {
		s.logger.Warn("delete rejected submission failed", zap.String("user_id", sub.UserID), zap.String("message_id", sub.MessageID), zap.Error(err))
	}

	delivery := s.Notify(ctx, Notice{
		Kind:         NoticeCooldown,
		UserID:       sub.UserID,
		ChannelID:    sub.ChannelID,
		Remaining:    cooldown.Split(remaining),
		NextEligible: next,
	})
	s.audit.Log(ctx, audit.LevelInfo, sub.GuildID, sub.UserID, audit.EventRejected, fmt.Sprintf("remaining=%s", remaining.Truncate(time.Minute)))

	return SubmitOutcome{
		Status:       StatusRejected,
		Record:       existing,
		Remaining:    remaining,
		NextEligible: next,
		Delivery:     delivery,
	}
}

// replayAttachment returns the first attachment carrying the replay suffix.
func (s *Service) replayAttachment(names []string) (string, bool) {
	for _, name := range names {
		if strings.HasSuffix(name, s.opts.Suffix) {
			return name, true
		}
	}
	return "", false
}
