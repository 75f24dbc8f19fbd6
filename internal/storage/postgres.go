package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in PostgreSQL; upserts rely on the user_id primary key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	files, err := migrationFiles("migrations/postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := migrations.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

const postgresColumns = `user_id, guild_id, channel_id, nombre, submission_id, fecha, revisado, ausente,
	revisado_por, revisado_en, COALESCE(mensaje_replay_id, ''), COALESCE(mensaje_botones_id, '')`

func (s *PostgresStore) GetRecord(ctx context.Context, userID string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM uploads WHERE user_id = $1`, userID)
	return scanPostgresRecord(row)
}

func (s *PostgresStore) FindRecordByPrompt(ctx context.Context, promptMessageID string) (Record, error) {
	if promptMessageID == "" {
		return Record{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM uploads WHERE mensaje_botones_id = $1`, promptMessageID)
	return scanPostgresRecord(row)
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, record Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO uploads (
			user_id, guild_id, channel_id, nombre, submission_id, fecha, revisado, ausente,
			revisado_por, revisado_en, mensaje_replay_id, mensaje_botones_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			guild_id = EXCLUDED.guild_id,
			channel_id = EXCLUDED.channel_id,
			nombre = EXCLUDED.nombre,
			submission_id = EXCLUDED.submission_id,
			fecha = EXCLUDED.fecha,
			revisado = EXCLUDED.revisado,
			ausente = EXCLUDED.ausente,
			revisado_por = EXCLUDED.revisado_por,
			revisado_en = EXCLUDED.revisado_en,
			mensaje_replay_id = EXCLUDED.mensaje_replay_id,
			mensaje_botones_id = EXCLUDED.mensaje_botones_id
	`,
		record.UserID,
		record.GuildID,
		record.ChannelID,
		record.FileName,
		record.SubmissionID,
		record.SubmittedAt,
		record.Reviewed,
		record.Absent,
		record.ReviewedBy,
		record.ReviewedAt,
		record.SourceMessageID,
		record.PromptMessageID,
	)
	return err
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Record, error) {
	var bound *int
	if limit > 0 {
		bound = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+postgresColumns+`
		FROM uploads
		WHERE NOT revisado AND NOT ausente
		ORDER BY fecha ASC
		LIMIT $1
	`, bound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStore) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt)
	return err
}

func (s *PostgresStore) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	return err
}

func scanPostgresRecord(row pgx.Row) (Record, error) {
	var record Record
	err := row.Scan(
		&record.UserID,
		&record.GuildID,
		&record.ChannelID,
		&record.FileName,
		&record.SubmissionID,
		&record.SubmittedAt,
		&record.Reviewed,
		&record.Absent,
		&record.ReviewedBy,
		&record.ReviewedAt,
		&record.SourceMessageID,
		&record.PromptMessageID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	record.SubmittedAt = record.SubmittedAt.UTC()
	if record.ReviewedAt != nil {
		value := record.ReviewedAt.UTC()
		record.ReviewedAt = &value
	}
	return record, nil
}
