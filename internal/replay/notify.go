package replay

import (
	"context"
	"time"

	"replay-warden/internal/cooldown"

	"go.uber.org/zap"
)

type NoticeKind int

const (
	NoticeCooldown NoticeKind = iota + 1
	NoticeReviewed
	NoticeAbsent
)

// Notice is a user-facing notification; the Chat implementation renders it.
type Notice struct {
	Kind         NoticeKind
	UserID       string
	ChannelID    string
	ReplyToID    string
	Remaining    cooldown.Breakdown
	NextEligible time.Time
	FileName     string
}

type Delivery int

const (
	Dropped Delivery = iota
	DeliveredDirect
	DeliveredPublic
)

func (d Delivery) String() string {
	switch d {
	case DeliveredDirect:
		return "direct"
	case DeliveredPublic:
		return "public"
	default:
		return "dropped"
	}
}

// Notify tries a direct message first (when preferred), then the public channel, then gives up and logs.
func (s *Service) Notify(ctx context.Context, notice Notice) Delivery {
	if s.opts.PreferDirect {
		err := s.chat.SendDirect(ctx, notice)
		if err == nil {
			return DeliveredDirect
		}
		s.logger.Warn("direct notification failed", zap.String("user_id", notice.UserID), zap.Error(err))
	}
	if notice.ChannelID != "" {
		err := s.chat.SendPublic(ctx, notice)
		if err == nil {
			return DeliveredPublic
		}
		s.logger.Warn("public notification failed", zap.String("user_id", notice.UserID), zap.String("channel_id", notice.ChannelID), zap.Error(err))
	}
	s.logger.Warn("notification dropped", zap.String("user_id", notice.UserID), zap.Int("kind", int(notice.Kind)))
	return Dropped
}
