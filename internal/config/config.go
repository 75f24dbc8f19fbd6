package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	PolicyFixed         = "fixed"
	PolicyCalendarMonth = "calendar_month"

	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	DiscordToken    string          `yaml:"discord_token" validate:"required"`
	LogLevel        string          `yaml:"log_level"`
	Language        string          `yaml:"language" validate:"oneof=es en"`
	ReplayChannelID string          `yaml:"replay_channel_id" validate:"required"`
	ReplaySuffix    string          `yaml:"replay_suffix" validate:"required"`
	CommandPrefix   string          `yaml:"command_prefix"`
	Cooldown        CooldownConfig  `yaml:"cooldown"`
	Reviewers       AccessConfig    `yaml:"reviewers"`
	Admins          AccessConfig    `yaml:"admins"`
	Storage         StorageConfig   `yaml:"storage"`
	Discord         DiscordConfig   `yaml:"discord"`
	Notifications   NotifyConfig    `yaml:"notifications"`
	Presence        PresenceConfig  `yaml:"presence"`
	Keepalive       KeepaliveConfig `yaml:"keepalive"`
	Audit           AuditConfig     `yaml:"audit"`
	EmbedColors     EmbedColors     `yaml:"embed_colors"`
}

type CooldownConfig struct {
	Policy string `yaml:"policy" validate:"oneof=fixed calendar_month"`
	Days   int    `yaml:"days" validate:"min=1"`
}

// AccessConfig names the identities granted a capability, by user or by role.
type AccessConfig struct {
	UserIDs []string `yaml:"user_ids"`
	RoleIDs []string `yaml:"role_ids"`
}

type StorageConfig struct {
	Driver         string `yaml:"driver" validate:"oneof=json sqlite postgres"`
	Path           string `yaml:"path" validate:"required_unless=Driver postgres"`
	DSN            string `yaml:"dsn" validate:"required_if=Driver postgres"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=1"`
}

type DiscordConfig struct {
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" validate:"min=1"`
}

type NotifyConfig struct {
	PreferDirect   bool `yaml:"prefer_direct"`
	NotifyOnReview bool `yaml:"notify_on_review"`
	ReactOnReview  bool `yaml:"react_on_review"`
}

type PresenceConfig struct {
	Statuses        []string `yaml:"statuses"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

type KeepaliveConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr" validate:"required_if=Enabled true"`
	Message        string `yaml:"message"`
	MaxConnections int    `yaml:"max_connections"`
}

type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

type EmbedColors struct {
	Pending  int `yaml:"pending"`
	Reviewed int `yaml:"reviewed"`
	Absent   int `yaml:"absent"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		Language:      "es",
		ReplaySuffix:  ".SC2Replay",
		CommandPrefix: "!",
		Cooldown:      CooldownConfig{Policy: PolicyFixed, Days: 45},
		Storage:       StorageConfig{Driver: DriverJSON, Path: "db.json", TimeoutSeconds: 5},
		Discord:       DiscordConfig{RequestTimeoutSeconds: 15},
		Notifications: NotifyConfig{PreferDirect: true, NotifyOnReview: false, ReactOnReview: true},
		Presence: PresenceConfig{
			Statuses:        []string{"replays de StarCraft II", "el canal de replays"},
			IntervalSeconds: 60,
		},
		Keepalive: KeepaliveConfig{Enabled: true, Addr: ":3000", Message: "Bot is alive!", MaxConnections: 64},
		Audit:     AuditConfig{RetentionDays: 90},
		EmbedColors: EmbedColors{
			Pending:  0xF59E0B,
			Reviewed: 0x22C55E,
			Absent:   0xEF4444,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints plus the rules a tag cannot express.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fieldErr := range verrs {
				fields = append(fields, fieldErr.Namespace()+":"+fieldErr.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if len(cfg.Reviewers.UserIDs) == 0 && len(cfg.Reviewers.RoleIDs) == 0 {
		return errors.New("invalid config: reviewers must list at least one user or role")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Language = envString("LANGUAGE", cfg.Language)
	cfg.ReplayChannelID = envString("REPLAY_CHANNEL_ID", cfg.ReplayChannelID)
	cfg.ReplaySuffix = envString("REPLAY_SUFFIX", cfg.ReplaySuffix)
	cfg.CommandPrefix = envString("COMMAND_PREFIX", cfg.CommandPrefix)
	cfg.Cooldown.Policy = envString("COOLDOWN_POLICY", cfg.Cooldown.Policy)
	cfg.Cooldown.Days = envInt("COOLDOWN_DAYS", cfg.Cooldown.Days)
	cfg.Reviewers.UserIDs = envList("REVIEWER_IDS", cfg.Reviewers.UserIDs)
	cfg.Reviewers.RoleIDs = envList("REVIEWER_ROLE_IDS", cfg.Reviewers.RoleIDs)
	cfg.Admins.UserIDs = envList("ADMIN_IDS", cfg.Admins.UserIDs)
	cfg.Admins.RoleIDs = envList("ADMIN_ROLE_IDS", cfg.Admins.RoleIDs)
	cfg.Storage.Driver = envString("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = envString("STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.DSN = envString("DATABASE_URL", cfg.Storage.DSN)
	cfg.Storage.TimeoutSeconds = envInt("STORAGE_TIMEOUT_SECONDS", cfg.Storage.TimeoutSeconds)
	cfg.Discord.RequestTimeoutSeconds = envInt("DISCORD_REQUEST_TIMEOUT_SECONDS", cfg.Discord.RequestTimeoutSeconds)
	cfg.Notifications.PreferDirect = envBool("PREFER_DIRECT", cfg.Notifications.PreferDirect)
	cfg.Notifications.NotifyOnReview = envBool("NOTIFY_ON_REVIEW", cfg.Notifications.NotifyOnReview)
	cfg.Notifications.ReactOnReview = envBool("REACT_ON_REVIEW", cfg.Notifications.ReactOnReview)
	cfg.Presence.IntervalSeconds = envInt("PRESENCE_INTERVAL_SECONDS", cfg.Presence.IntervalSeconds)
	cfg.Keepalive.Enabled = envBool("KEEPALIVE_ENABLED", cfg.Keepalive.Enabled)
	cfg.Keepalive.Addr = envString("KEEPALIVE_ADDR", cfg.Keepalive.Addr)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Keepalive.Addr = ":" + port
	}
	cfg.Audit.RetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.Audit.RetentionDays)
}

func normalize(cfg *Config) {
	cfg.Language = normalizeLanguage(cfg.Language)
	cfg.Cooldown.Policy = strings.ToLower(strings.TrimSpace(cfg.Cooldown.Policy))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Keepalive.Message == "" {
		cfg.Keepalive.Message = "Bot is alive!"
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

// envList reads a comma separated list, dropping blanks.
func envList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeLanguage(value string) string {
	switch strings.ToLower(value) {
	case "en":
		return "en"
	default:
		return "es"
	}
}
