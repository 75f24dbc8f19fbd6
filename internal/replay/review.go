package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"replay-warden/internal/modules/audit"
	"replay-warden/internal/storage"

	"go.uber.org/zap"
)

type Action string

const (
	ActionReviewed Action = "reviewed"
	ActionAbsent   Action = "absent"
)

func ParseAction(value string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionReviewed:
		return ActionReviewed, true
	case ActionAbsent:
		return ActionAbsent, true
	default:
		return "", false
	}
}

type ReviewStatus int

const (
	ReviewUpdated ReviewStatus = iota + 1
	ReviewDenied
	ReviewNotFound
)

type ReviewOutcome struct {
	Status ReviewStatus
	Record storage.Record
	// Changed is false when the record already carried the requested decision.
	Changed bool
}

// Review applies a reviewer decision to targetUserID's record.
func (s *Service) Review(ctx context.Context, actor Actor, targetUserID string, action Action) (ReviewOutcome, error) {
	if !s.access.IsReviewer(actor) {
		s.audit.Log(ctx, audit.LevelWarn, "", actor.ID, audit.EventReviewDenied, fmt.Sprintf("action=%s target=%s", action, targetUserID))
		return ReviewOutcome{Status: ReviewDenied}, nil
	}

	unlock := s.locks.Lock(targetUserID)
	defer unlock()

	record, found, err := s.loadRecord(ctx, targetUserID)
	if err != nil {
		return ReviewOutcome{}, err
	}
	if !found {
		return ReviewOutcome{Status: ReviewNotFound}, nil
	}
	return s.applyReview(ctx, actor, record, action)
}

// ReviewPrompt handles a button press. The target is resolved through the stored prompt reference,
// and submissionID guards against prompts left over from an earlier submission.
func (s *Service) ReviewPrompt(ctx context.Context, actor Actor, promptMessageID, submissionID string, action Action) (ReviewOutcome, error) {
	if !s.access.IsReviewer(actor) {
		s.audit.Log(ctx, audit.LevelWarn, "", actor.ID, audit.EventReviewDenied, fmt.Sprintf("action=%s prompt=%s", action, promptMessageID))
		return ReviewOutcome{Status: ReviewDenied}, nil
	}

	located, err := s.findByPrompt(ctx, promptMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		return ReviewOutcome{Status: ReviewNotFound}, nil
	}
	if err != nil {
		return ReviewOutcome{}, err
	}

	unlock := s.locks.Lock(located.UserID)
	defer unlock()

	// Re-read under the lock; a new submission may have replaced the record meanwhile.
	record, found, err := s.loadRecord(ctx, located.UserID)
	if err != nil {
		return ReviewOutcome{}, err
	}
	if !found || record.PromptMessageID != promptMessageID || (submissionID != "" && record.SubmissionID != submissionID) {
		return ReviewOutcome{Status: ReviewNotFound}, nil
	}
	return s.applyReview(ctx, actor, record, action)
}

func (s *Service) applyReview(ctx context.Context, actor Actor, record storage.Record, action Action) (ReviewOutcome, error) {
	var reviewed, absent bool
	switch action {
	case ActionReviewed:
		reviewed = true
	case ActionAbsent:
		absent = true
	default:
		return ReviewOutcome{}, fmt.Errorf("unknown review action %q", action)
	}

	if record.Reviewed == reviewed && record.Absent == absent {
		return ReviewOutcome{Status: ReviewUpdated, Record: record}, nil
	}

	now := s.clock.Now()
	record.Reviewed = reviewed
	record.Absent = absent
	record.ReviewedBy = actor.ID
	record.ReviewedAt = &now
	if err := s.saveRecord(ctx, record); err != nil {
		return ReviewOutcome{}, err
	}

	event := audit.EventReviewed
	if absent {
		event = audit.EventAbsent
	}
	s.audit.Log(ctx, audit.LevelInfo, record.GuildID, record.UserID, event, fmt.Sprintf("by=%s submission=%s", actor.ID, record.SubmissionID))

	s.afterReview(ctx, record, action)
	return ReviewOutcome{Status: ReviewUpdated, Record: record, Changed: true}, nil
}

// afterReview performs the best-effort chat side effects of a decision.
func (s *Service) afterReview(ctx context.Context, record storage.Record, action Action) {
	if record.PromptMessageID != "" {
		if err := s.chat.UpdatePrompt(ctx, record); err != nil {
			s.logger.Warn("update review prompt failed", zap.String("user_id", record.UserID), zap.String("prompt_id", record.PromptMessageID), zap.Error(err))
		}
	}

	if s.opts.ReactOnReview && record.SourceMessageID != "" {
		emoji := "✅"
		if action == ActionAbsent {
			emoji = "❌"
		}
		if err := s.chat.React(ctx, record.ChannelID, record.SourceMessageID, emoji); err != nil {
			s.logger.Warn("review reaction failed", zap.String("user_id", record.UserID), zap.Error(err))
		}
	}

	if s.opts.NotifyOnReview {
		kind := NoticeReviewed
		if action == ActionAbsent {
			kind = NoticeAbsent
		}
		s.Notify(ctx, Notice{
			Kind:      kind,
			UserID:    record.UserID,
			ChannelID: record.ChannelID,
			ReplyToID: record.SourceMessageID,
			FileName:  record.FileName,
		})
	}
}

func (s *Service) findByPrompt(ctx context.Context, promptMessageID string) (storage.Record, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	record, err := s.store.FindRecordByPrompt(storeCtx, promptMessageID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Record{}, persistenceError("find", err)
	}
	return record, err
}
