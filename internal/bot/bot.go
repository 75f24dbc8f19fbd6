package bot

import (
	"context"
	"net/http"
	"sync"
	"time"

	"replay-warden/internal/analytics"
	"replay-warden/internal/config"
	"replay-warden/internal/modules/audit"
	"replay-warden/internal/replay"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	handlerTimeout          = 30 * time.Second
	retentionEvery          = 24 * time.Hour
	retentionDelay          = 30 * time.Second
	queueLimit              = analytics.DefaultQueueLimit
	defaultPresenceInterval = 60 * time.Second
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	replay    *replay.Service
	queue     *analytics.Service
	audit     *audit.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	loopsOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession builds the Discord session with the gateway intents the bot needs and a bounded HTTP client.
func NewSession(cfg config.Config) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions

	session.Client = &http.Client{Timeout: time.Duration(cfg.Discord.RequestTimeoutSeconds) * time.Second}
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, replayService *replay.Service, queue *analytics.Service, auditLogger *audit.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		cfg:     cfg,
		logger:  logger,
		session: session,
		replay:  replayService,
		queue:   queue,
		audit:   auditLogger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	return b.session.Open()
}

// Close stops the background loops and the gateway connection.
func (b *Bot) Close(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("background loops did not stop in time")
	}

	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	defer b.recoverEvent("ready")
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))

	for _, guild := range event.Guilds {
		if guild == nil {
			continue
		}
		if err := b.registerCommands(event.User.ID, guild.ID); err != nil {
			b.logger.Warn("command registration failed", zap.String("guild_id", guild.ID), zap.Error(err))
		}
	}

	b.loopsOnce.Do(func() {
		b.startLoop(b.rotatePresence)
		b.startLoop(b.runRetention)
	})
}

func (b *Bot) startLoop(loop func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		loop(b.ctx)
	}()
}

func (b *Bot) rotatePresence(ctx context.Context) {
	statuses := b.cfg.Presence.Statuses
	if len(statuses) == 0 {
		return
	}
	interval := time.Duration(b.cfg.Presence.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPresenceInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for idx := 0; ; idx = (idx + 1) % len(statuses) {
		b.updateStatus(statuses[idx])
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) updateStatus(text string) {
	err := b.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: text, Type: discordgo.ActivityTypeWatching}},
	})
	if err != nil {
		b.logger.Debug("presence update failed", zap.Error(err))
	}
}

func (b *Bot) runRetention(ctx context.Context) {
	if b.audit == nil || b.cfg.Audit.RetentionDays <= 0 {
		return
	}
	timer := time.NewTimer(retentionDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		cleanupCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.Storage.TimeoutSeconds)*time.Second)
		if err := b.audit.Cleanup(cleanupCtx, b.cfg.Audit.RetentionDays); err != nil {
			b.logger.Warn("audit retention failed", zap.Error(err))
		}
		cancel()
		timer.Reset(retentionEvery)
	}
}

func (b *Bot) recoverEvent(event string) {
	if r := recover(); r != nil {
		b.logger.Error("event handler panic", zap.String("event", event), zap.Any("panic", r), zap.Stack("stack"))
	}
}

func (b *Bot) t(key string, args ...any) string {
	return translate(b.cfg.Language, key, args...)
}
