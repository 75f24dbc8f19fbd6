package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"replay-warden/internal/cooldown"
	"replay-warden/internal/modules/audit"
	"replay-warden/internal/storage"

	"go.uber.org/zap"
)

// Chat is the set of outbound chat actions the service needs.
type Chat interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirect(ctx context.Context, notice Notice) error
	SendPublic(ctx context.Context, notice Notice) error
	PostPrompt(ctx context.Context, record storage.Record) (string, error)
	UpdatePrompt(ctx context.Context, record storage.Record) error
	React(ctx context.Context, channelID, messageID, emoji string) error
}

type Deps struct {
	Store  storage.Store
	Chat   Chat
	Policy cooldown.Policy
	Access *Access
	Audit  *audit.Logger
	Logger *zap.Logger
	Clock  cooldown.Clock
}

type Options struct {
	Suffix         string
	PreferDirect   bool
	NotifyOnReview bool
	ReactOnReview  bool
	StoreTimeout   time.Duration
}

type Service struct {
	store  storage.Store
	chat   Chat
	policy cooldown.Policy
	access *Access
	audit  *audit.Logger
	logger *zap.Logger
	clock  cooldown.Clock
	opts   Options
	locks  *keyedMutex
}

func New(deps Deps, opts Options) *Service {
	if deps.Clock == nil {
		deps.Clock = cooldown.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(nil, deps.Logger)
	}
	if opts.Suffix == "" {
		opts.Suffix = ".SC2Replay"
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Service{
		store:  deps.Store,
		chat:   deps.Chat,
		policy: deps.Policy,
		access: deps.Access,
		audit:  deps.Audit,
		logger: deps.Logger,
		clock:  deps.Clock,
		opts:   opts,
		locks:  newKeyedMutex(),
	}
}

func (s *Service) Access() *Access {
	return s.access
}

type StatusReport struct {
	HasRecord    bool
	Record       storage.Record
	Eligible     bool
	Remaining    time.Duration
	NextEligible time.Time
}

// Status reports a user's cooldown and review state without changing anything.
func (s *Service) Status(ctx context.Context, userID string) (StatusReport, error) {
	record, found, err := s.loadRecord(ctx, userID)
	if err != nil {
		return StatusReport{}, err
	}
	if !found {
		return StatusReport{Eligible: true}, nil
	}
	now := s.clock.Now()
	remaining := cooldown.Remaining(now, record.SubmittedAt, s.policy)
	return StatusReport{
		HasRecord:    true,
		Record:       record,
		Eligible:     remaining <= 0,
		Remaining:    remaining,
		NextEligible: s.policy.NextEligible(record.SubmittedAt),
	}, nil
}

type ResetStatus int

const (
	ResetDone ResetStatus = iota + 1
	ResetDenied
	ResetNotFound
)

// Reset deletes a user's record so they can submit again. Admins only.
func (s *Service) Reset(ctx context.Context, actor Actor, targetUserID string) (ResetStatus, error) {
	if !s.access.IsAdmin(actor) {
		s.audit.Log(ctx, audit.LevelWarn, "", actor.ID, audit.EventReviewDenied, fmt.Sprintf("action=reset target=%s", targetUserID))
		return ResetDenied, nil
	}

	unlock := s.locks.Lock(targetUserID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	deleted, err := s.store.DeleteRecord(storeCtx, targetUserID)
	if err != nil {
		return 0, persistenceError("delete", err)
	}
	if !deleted {
		return ResetNotFound, nil
	}
	s.audit.Log(ctx, audit.LevelInfo, "", targetUserID, audit.EventReset, "by="+actor.ID)
	return ResetDone, nil
}

func (s *Service) loadRecord(ctx context.Context, userID string) (storage.Record, bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	record, err := s.store.GetRecord(storeCtx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, persistenceError("get", err)
	}
	return record, true, nil
}

func (s *Service) saveRecord(ctx context.Context, record storage.Record) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.store.UpsertRecord(storeCtx, record); err != nil {
		return persistenceError("upsert", err)
	}
	return nil
}

// keyedMutex serialises work per user so concurrent events for one record apply in order.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock := k.locks[key]
	if lock == nil {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
