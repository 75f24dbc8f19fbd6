package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// SQLStore keeps records in SQLite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Migrate() error {
	files, err := migrationFiles("migrations/sqlite")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := migrations.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

const sqliteColumns = `user_id, guild_id, channel_id, nombre, submission_id, fecha, revisado, ausente,
	revisado_por, revisado_en, COALESCE(mensaje_replay_id, ''), COALESCE(mensaje_botones_id, '')`

func (s *SQLStore) GetRecord(ctx context.Context, userID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM uploads WHERE user_id = ?`, userID)
	return scanSQLiteRecord(row)
}

func (s *SQLStore) FindRecordByPrompt(ctx context.Context, promptMessageID string) (Record, error) {
	if promptMessageID == "" {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM uploads WHERE mensaje_botones_id = ?`, promptMessageID)
	return scanSQLiteRecord(row)
}

func (s *SQLStore) UpsertRecord(ctx context.Context, record Record) error {
	var reviewedAt any
	if record.ReviewedAt != nil {
		reviewedAt = record.ReviewedAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (
			user_id, guild_id, channel_id, nombre, submission_id, fecha, revisado, ausente,
			revisado_por, revisado_en, mensaje_replay_id, mensaje_botones_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			nombre = excluded.nombre,
			submission_id = excluded.submission_id,
			fecha = excluded.fecha,
			revisado = excluded.revisado,
			ausente = excluded.ausente,
			revisado_por = excluded.revisado_por,
			revisado_en = excluded.revisado_en,
			mensaje_replay_id = excluded.mensaje_replay_id,
			mensaje_botones_id = excluded.mensaje_botones_id
	`,
		record.UserID,
		record.GuildID,
		record.ChannelID,
		record.FileName,
		record.SubmissionID,
		record.SubmittedAt.UnixMilli(),
		boolToInt(record.Reviewed),
		boolToInt(record.Absent),
		record.ReviewedBy,
		reviewedAt,
		record.SourceMessageID,
		record.PromptMessageID,
	)
	return err
}

func (s *SQLStore) DeleteRecord(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		// SQLite reads a negative LIMIT as no limit.
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM uploads
		WHERE revisado = 0 AND ausente = 0
		ORDER BY fecha ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLStore) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *SQLStore) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var record Record
	var submittedAt int64
	var reviewed, absent int
	var reviewedAt sql.NullInt64
	err := row.Scan(
		&record.UserID,
		&record.GuildID,
		&record.ChannelID,
		&record.FileName,
		&record.SubmissionID,
		&submittedAt,
		&reviewed,
		&absent,
		&record.ReviewedBy,
		&reviewedAt,
		&record.SourceMessageID,
		&record.PromptMessageID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	record.SubmittedAt = time.UnixMilli(submittedAt).UTC()
	record.Reviewed = reviewed == 1
	record.Absent = absent == 1
	if reviewedAt.Valid {
		value := time.UnixMilli(reviewedAt.Int64).UTC()
		record.ReviewedAt = &value
	}
	return record, nil
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		files = append(files, path.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
