package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"replay-warden/internal/config"
	"replay-warden/internal/cooldown"
	"replay-warden/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeChat struct {
	mu         sync.Mutex
	deleted    []string
	direct     []Notice
	public     []Notice
	prompts    []storage.Record
	updates    []storage.Record
	reactions  []string
	directErr  error
	publicErr  error
	promptErr  error
	deleteErr  error
	nextPrompt int
}

func (c *fakeChat) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, messageID)
	return nil
}

func (c *fakeChat) SendDirect(ctx context.Context, notice Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.directErr != nil {
		return c.directErr
	}
	c.direct = append(c.direct, notice)
	return nil
}

func (c *fakeChat) SendPublic(ctx context.Context, notice Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publicErr != nil {
		return c.publicErr
	}
	c.public = append(c.public, notice)
	return nil
}

func (c *fakeChat) PostPrompt(ctx context.Context, record storage.Record) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.promptErr != nil {
		return "", c.promptErr
	}
	c.nextPrompt++
	c.prompts = append(c.prompts, record)
	return fmt.Sprintf("prompt-%d", c.nextPrompt), nil
}

func (c *fakeChat) UpdatePrompt(ctx context.Context, record storage.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, record)
	return nil
}

func (c *fakeChat) React(ctx context.Context, channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, messageID+":"+emoji)
	return nil
}

type failingStore struct {
	storage.Store
	err error
}

func (s failingStore) GetRecord(ctx context.Context, userID string) (storage.Record, error) {
	return storage.Record{}, s.err
}

type harness struct {
	svc   *Service
	store storage.Store
	chat  *fakeChat
	clock *fakeClock
}

var (
	reviewer = Actor{ID: "reviewer"}
	stranger = Actor{ID: "stranger"}
	admin    = Actor{ID: "someone", Administrator: true}
)

func newHarness(t *testing.T, policy cooldown.Policy, opts Options) *harness {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	chat := &fakeChat{}
	clock := &fakeClock{now: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc := New(Deps{
		Store:  store,
		Chat:   chat,
		Policy: policy,
		Access: NewAccess(config.AccessConfig{UserIDs: []string{"reviewer"}, RoleIDs: []string{"mods"}}, config.AccessConfig{UserIDs: []string{"owner"}}),
		Clock:  clock,
	}, opts)
	return &harness{svc: svc, store: store, chat: chat, clock: clock}
}

func submission(userID, messageID string, files ...string) Submission {
	return Submission{UserID: userID, GuildID: "g1", ChannelID: "replays", MessageID: messageID, Attachments: files}
}

func TestSubmitFirstReplayAccepted(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()

	out, err := h.svc.Submit(ctx, submission("u1", "m1", "game1.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Equal(t, "prompt-1", out.Record.PromptMessageID)
	assert.NotEmpty(t, out.Record.SubmissionID)

	stored, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "game1.SC2Replay", stored.FileName)
	assert.Equal(t, "m1", stored.SourceMessageID)
	assert.Equal(t, "prompt-1", stored.PromptMessageID)
	assert.True(t, stored.SubmittedAt.Equal(h.clock.now))
	assert.False(t, stored.Reviewed)
	assert.False(t, stored.Absent)
}

func TestSubmitWithoutRecordAlwaysAccepted(t *testing.T) {
	for _, now := range []time.Time{{}, time.Unix(0, 0), time.Date(2099, 12, 31, 23, 59, 0, 0, time.UTC)} {
		h := newHarness(t, cooldown.CalendarMonth{}, Options{})
		h.clock.now = now
		out, err := h.svc.Submit(context.Background(), submission("new", "m1", "game1.SC2Replay"))
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, out.Status, "now=%s", now)
	}
}

func TestSubmitWrongFileTypeIgnored(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()

	out, err := h.svc.Submit(ctx, submission("u1", "m1", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)

	out, err = h.svc.Submit(ctx, submission("u1", "m2"))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)

	_, err = h.store.GetRecord(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, h.chat.prompts)
	assert.Empty(t, h.chat.deleted)
}

func TestSubmitSuffixIsCaseSensitive(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	out, err := h.svc.Submit(context.Background(), submission("u1", "m1", "game1.sc2replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)
}

func TestSubmitDuringCooldownRejected(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{PreferDirect: true})
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(10*24*time.Hour + 90*time.Minute)
	out, err := h.svc.Submit(ctx, submission("u1", "m2", "b.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, DeliveredDirect, out.Delivery)
	assert.Equal(t, []string{"m2"}, h.chat.deleted)

	require.Len(t, h.chat.direct, 1)
	assert.Equal(t, cooldown.Breakdown{Days: 34, Hours: 22, Minutes: 30}, h.chat.direct[0].Remaining)

	stored, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Record.SubmissionID, stored.SubmissionID)
	assert.Equal(t, "a.SC2Replay", stored.FileName)
}

func TestSubmitRetryAfterAcceptIsRejected(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	out, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Len(t, h.chat.prompts, 1)
}

func TestSubmitAfterCooldownResetsFlags(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	_, err = h.svc.Review(ctx, reviewer, "u1", ActionReviewed)
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(45*24*time.Hour + time.Millisecond)
	out, err := h.svc.Submit(ctx, submission("u1", "m2", "b.SC2Replay"))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.Status)
	assert.True(t, out.Record.SubmittedAt.After(first.Record.SubmittedAt))
	assert.NotEqual(t, first.Record.SubmissionID, out.Record.SubmissionID)

	stored, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, stored.Reviewed)
	assert.False(t, stored.Absent)
	assert.Empty(t, stored.ReviewedBy)
	assert.Nil(t, stored.ReviewedAt)
	assert.Equal(t, "prompt-2", stored.PromptMessageID)
}

func TestSubmitPromptFailureStillAccepted(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	h.chat.promptErr = errors.New("missing permissions")

	out, err := h.svc.Submit(context.Background(), submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Empty(t, out.Record.PromptMessageID)
}

func TestSubmitDeleteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	h.chat.deleteErr = errors.New("unknown message")
	out, err := h.svc.Submit(ctx, submission("u1", "m2", "b.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, DeliveredPublic, out.Delivery)
}

func TestSubmitPersistenceFailureIsRetryable(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	h.svc.store = failingStore{Store: h.store, err: errors.New("database is locked")}

	_, err := h.svc.Submit(context.Background(), submission("u1", "m1", "a.SC2Replay"))
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, h.chat.prompts)
}

func TestNotifyFallsBackToPublic(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{PreferDirect: true})
	h.chat.directErr = errors.New("cannot send messages to this user")

	delivery := h.svc.Notify(context.Background(), Notice{Kind: NoticeCooldown, UserID: "u1", ChannelID: "replays"})
	assert.Equal(t, DeliveredPublic, delivery)
	assert.Len(t, h.chat.public, 1)
}

func TestNotifyDropsWhenEverythingFails(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{PreferDirect: true})
	h.chat.directErr = errors.New("dm closed")
	h.chat.publicErr = errors.New("missing access")

	delivery := h.svc.Notify(context.Background(), Notice{Kind: NoticeCooldown, UserID: "u1", ChannelID: "replays"})
	assert.Equal(t, Dropped, delivery)
}

func TestNotifyPublicOnlyWhenDirectNotPreferred(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{PreferDirect: false})
	delivery := h.svc.Notify(context.Background(), Notice{Kind: NoticeCooldown, UserID: "u1", ChannelID: "replays"})
	assert.Equal(t, DeliveredPublic, delivery)
	assert.Empty(t, h.chat.direct)
}

func TestReviewMutualExclusion(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{ReactOnReview: true})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	out, err := h.svc.Review(ctx, reviewer, "u1", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewUpdated, out.Status)
	assert.True(t, out.Record.Reviewed)
	assert.False(t, out.Record.Absent)

	out, err = h.svc.Review(ctx, reviewer, "u1", ActionAbsent)
	require.NoError(t, err)
	assert.True(t, out.Record.Absent)
	assert.False(t, out.Record.Reviewed)

	stored, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.Absent)
	assert.False(t, stored.Reviewed)
	assert.Equal(t, "reviewer", stored.ReviewedBy)
	assert.Equal(t, []string{"m1:✅", "m1:❌"}, h.chat.reactions)
	assert.Len(t, h.chat.updates, 2)
}

func TestReviewIsIdempotent(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{NotifyOnReview: true})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	first, err := h.svc.Review(ctx, reviewer, "u1", ActionReviewed)
	require.NoError(t, err)
	second, err := h.svc.Review(ctx, reviewer, "u1", ActionReviewed)
	require.NoError(t, err)

	assert.True(t, first.Changed)
	assert.False(t, second.Changed)
	assert.Equal(t, ReviewUpdated, second.Status)
	assert.True(t, second.Record.Reviewed)
	assert.False(t, second.Record.Absent)
	assert.Len(t, h.chat.public, 1)
}

func TestReviewDeniedLeavesRecordUnchanged(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	before, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)

	out, err := h.svc.Review(ctx, stranger, "u1", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewDenied, out.Status)

	after, err := h.store.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Administrators are not implicitly reviewers.
	out, err = h.svc.Review(ctx, admin, "u1", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewDenied, out.Status)
}

func TestReviewByRole(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	out, err := h.svc.Review(ctx, Actor{ID: "mod", RoleIDs: []string{"members", "mods"}}, "u1", ActionAbsent)
	require.NoError(t, err)
	assert.Equal(t, ReviewUpdated, out.Status)
}

func TestReviewNotFound(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	out, err := h.svc.Review(context.Background(), reviewer, "ghost", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewNotFound, out.Status)
}

func TestClearedLegacyEntryHasNoRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"uploads":{"u1":null}}`), 0o600))
	store, err := storage.OpenJSON(path)
	require.NoError(t, err)

	chat := &fakeChat{}
	svc := New(Deps{
		Store:  store,
		Chat:   chat,
		Policy: cooldown.Fixed{Days: 45},
		Access: NewAccess(config.AccessConfig{UserIDs: []string{"reviewer"}}, config.AccessConfig{}),
		Clock:  &fakeClock{now: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)},
	}, Options{})
	ctx := context.Background()

	report, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, report.HasRecord)
	assert.True(t, report.Eligible)

	out, err := svc.Review(ctx, reviewer, "u1", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewNotFound, out.Status)
	assert.Empty(t, chat.updates)
}

func TestReviewPromptResolvesByReference(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	accepted, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	out, err := h.svc.ReviewPrompt(ctx, reviewer, accepted.Record.PromptMessageID, accepted.Record.SubmissionID, ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewUpdated, out.Status)
	assert.Equal(t, "u1", out.Record.UserID)
	assert.True(t, out.Record.Reviewed)
}

func TestReviewPromptStaleSubmission(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	accepted, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	out, err := h.svc.ReviewPrompt(ctx, reviewer, accepted.Record.PromptMessageID, "old-submission", ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewNotFound, out.Status)

	out, err = h.svc.ReviewPrompt(ctx, reviewer, "unknown-prompt", accepted.Record.SubmissionID, ActionReviewed)
	require.NoError(t, err)
	assert.Equal(t, ReviewNotFound, out.Status)
}

func TestStatusReport(t *testing.T) {
	h := newHarness(t, cooldown.CalendarMonth{}, Options{})
	ctx := context.Background()

	report, err := h.svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, report.HasRecord)
	assert.True(t, report.Eligible)

	_, err = h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)
	report, err = h.svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.HasRecord)
	assert.False(t, report.Eligible)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), report.NextEligible)
	assert.Equal(t, 21*24*time.Hour+12*time.Hour, report.Remaining)
}

func TestResetRequiresAdmin(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, submission("u1", "m1", "a.SC2Replay"))
	require.NoError(t, err)

	status, err := h.svc.Reset(ctx, reviewer, "u1")
	require.NoError(t, err)
	assert.Equal(t, ResetDenied, status)

	status, err = h.svc.Reset(ctx, Actor{ID: "owner"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, ResetDone, status)

	status, err = h.svc.Reset(ctx, admin, "u1")
	require.NoError(t, err)
	assert.Equal(t, ResetNotFound, status)

	out, err := h.svc.Submit(ctx, submission("u1", "m2", "b.SC2Replay"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, out.Status)
}

func TestConcurrentSubmissionsAcceptOnce(t *testing.T) {
	h := newHarness(t, cooldown.Fixed{Days: 45}, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan SubmitStatus, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.svc.Submit(ctx, submission("u1", fmt.Sprintf("m%d", i), "a.SC2Replay"))
			if err == nil {
				results <- out.Status
			}
		}(i)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for status := range results {
		if status == StatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestParseAction(t *testing.T) {
	action, ok := ParseAction(" Reviewed ")
	assert.True(t, ok)
	assert.Equal(t, ActionReviewed, action)
	_, ok = ParseAction("approve")
	assert.False(t, ok)
}
