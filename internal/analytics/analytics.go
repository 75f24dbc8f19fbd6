package analytics

import (
	"context"
	"time"

	"replay-warden/internal/cooldown"
	"replay-warden/internal/storage"
)

const DefaultQueueLimit = 10

type Service struct {
	store storage.Store
	clock cooldown.Clock
}

func New(store storage.Store, clock cooldown.Clock) *Service {
	if clock == nil {
		clock = cooldown.RealClock{}
	}
	return &Service{store: store, clock: clock}
}

type QueueEntry struct {
	Record storage.Record
	Age    time.Duration
}

type QueueReport struct {
	Entries []QueueEntry
	Oldest  time.Duration
}

// Queue lists submissions still waiting for a decision, oldest first.
func (s *Service) Queue(ctx context.Context, limit int) (QueueReport, error) {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	records, err := s.store.ListPending(ctx, limit)
	if err != nil {
		return QueueReport{}, err
	}

	now := s.clock.Now()
	report := QueueReport{Entries: make([]QueueEntry, 0, len(records))}
	for _, record := range records {
		age := now.Sub(record.SubmittedAt)
		if age < 0 {
			age = 0
		}
		report.Entries = append(report.Entries, QueueEntry{Record: record, Age: age})
		if age > report.Oldest {
			report.Oldest = age
		}
	}
	return report, nil
}
