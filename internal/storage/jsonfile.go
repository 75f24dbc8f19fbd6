package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type jsonDocument struct {
	Uploads map[string]jsonRecord `json:"uploads"`
}

// legacyDocument accepts null entries, which older files use for a cleared user.
type legacyDocument struct {
	Uploads map[string]*jsonRecord `json:"uploads"`
}

// jsonRecord keeps the field names used by existing db.json files.
type jsonRecord struct {
	FileName        string     `json:"nombre,omitempty"`
	SubmittedAt     time.Time  `json:"fecha"`
	Reviewed        bool       `json:"revisado"`
	Absent          bool       `json:"ausente"`
	SourceMessageID string     `json:"mensaje_replay_id,omitempty"`
	PromptMessageID string     `json:"mensaje_botones_id,omitempty"`
	SubmissionID    string     `json:"submission_id,omitempty"`
	GuildID         string     `json:"guild_id,omitempty"`
	ChannelID       string     `json:"channel_id,omitempty"`
	ReviewedBy      string     `json:"revisado_por,omitempty"`
	ReviewedAt      *time.Time `json:"revisado_en,omitempty"`
}

// JSONStore keeps every record in one JSON document that is rewritten on each mutation.
// Writes go to a temp file that is renamed over the live file, so readers never see a torn document.
// It is safe for one process only.
type JSONStore struct {
	mu   sync.Mutex
	path string
	doc  jsonDocument
}

func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, doc: jsonDocument{Uploads: make(map[string]jsonRecord)}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.flushLocked()
	}
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		for userID, item := range legacy.Uploads {
			if item != nil {
				s.doc.Uploads[userID] = *item
			}
		}
	}
	return s, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) GetRecord(ctx context.Context, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.doc.Uploads[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return item.toRecord(userID), nil
}

func (s *JSONStore) FindRecordByPrompt(ctx context.Context, promptMessageID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if promptMessageID == "" {
		return Record{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, item := range s.doc.Uploads {
		if item.PromptMessageID == promptMessageID {
			return item.toRecord(userID), nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *JSONStore) UpsertRecord(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.doc.Uploads[record.UserID]
	s.doc.Uploads[record.UserID] = fromRecord(record)
	if err := s.flushLocked(); err != nil {
		if existed {
			s.doc.Uploads[record.UserID] = previous
		} else {
			delete(s.doc.Uploads, record.UserID)
		}
		return err
	}
	return nil
}

func (s *JSONStore) DeleteRecord(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.doc.Uploads[userID]
	if !ok {
		return false, nil
	}
	delete(s.doc.Uploads, userID)
	if err := s.flushLocked(); err != nil {
		s.doc.Uploads[userID] = previous
		return false, err
	}
	return true, nil
}

func (s *JSONStore) ListPending(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var records []Record
	for userID, item := range s.doc.Uploads {
		if item.Reviewed || item.Absent {
			continue
		}
		records = append(records, item.toRecord(userID))
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.Before(records[j].SubmittedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *JSONStore) flushLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (item jsonRecord) toRecord(userID string) Record {
	record := Record{
		UserID:          userID,
		GuildID:         item.GuildID,
		ChannelID:       item.ChannelID,
		FileName:        item.FileName,
		SubmissionID:    item.SubmissionID,
		SubmittedAt:     item.SubmittedAt.UTC(),
		Reviewed:        item.Reviewed,
		Absent:          item.Absent,
		ReviewedBy:      item.ReviewedBy,
		SourceMessageID: item.SourceMessageID,
		PromptMessageID: item.PromptMessageID,
	}
	if item.ReviewedAt != nil {
		value := item.ReviewedAt.UTC()
		record.ReviewedAt = &value
	}
	return record
}

func fromRecord(record Record) jsonRecord {
	return jsonRecord{
		FileName:        record.FileName,
		SubmittedAt:     record.SubmittedAt.UTC(),
		Reviewed:        record.Reviewed,
		Absent:          record.Absent,
		SourceMessageID: record.SourceMessageID,
		PromptMessageID: record.PromptMessageID,
		SubmissionID:    record.SubmissionID,
		GuildID:         record.GuildID,
		ChannelID:       record.ChannelID,
		ReviewedBy:      record.ReviewedBy,
		ReviewedAt:      record.ReviewedAt,
	}
}
