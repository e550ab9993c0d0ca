package prefstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SpeakerPrefs holds one speaker's voice preferences. Zero rows in the store
// resolve to the injected defaults.
type SpeakerPrefs struct {
	ModelUUID     string
	SpeakingRate  float64
	VolumePercent int
}

// Defaults supplies the values returned for speakers with no stored row.
type Defaults struct {
	ModelUUID     string
	SpeakingRate  float64
	VolumePercent int
}

// Store persists per-tenant reading dictionaries and per-speaker voice
// preferences in SQLite. All mutations are synchronous writes.
type Store struct {
	db       *sql.DB
	defaults Defaults
	log      *slog.Logger
	clock    func() time.Time
}

// Open initializes the preference store at path, creating the schema on
// first use.
func Open(ctx context.Context, path string, defaults Defaults, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, defaults: defaults, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS dictionary (
    tenant_id TEXT NOT NULL,
    word TEXT NOT NULL,
    reading TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY(tenant_id, word)
);
CREATE TABLE IF NOT EXISTS speaker_prefs (
    speaker_id TEXT PRIMARY KEY,
    model_uuid TEXT,
    speaking_rate REAL,
    volume_percent INTEGER,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddWord registers or replaces a word→reading mapping for a tenant.
func (s *Store) AddWord(ctx context.Context, tenantID, word, reading string) error {
	if word == "" {
		return errors.New("word must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dictionary(tenant_id, word, reading, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(tenant_id, word) DO UPDATE SET reading=excluded.reading, updated_at=excluded.updated_at`,
		tenantID, word, reading, s.clock().UTC())
	return err
}

// RemoveWord deletes a mapping. The bool reports whether the word existed.
func (s *Store) RemoveWord(ctx context.Context, tenantID, word string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dictionary WHERE tenant_id = ? AND word = ?`, tenantID, word)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Dictionary returns the tenant's full word→reading map.
func (s *Store) Dictionary(ctx context.Context, tenantID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word, reading FROM dictionary WHERE tenant_id = ? ORDER BY word`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	words := make(map[string]string)
	for rows.Next() {
		var word, reading string
		if err := rows.Scan(&word, &reading); err != nil {
			return nil, err
		}
		words[word] = reading
	}
	return words, rows.Err()
}

// SpeakerPrefs resolves a speaker's preferences, falling back to defaults
// for missing rows and missing columns.
func (s *Store) SpeakerPrefs(ctx context.Context, speakerID string) (SpeakerPrefs, error) {
	prefs := SpeakerPrefs{
		ModelUUID:     s.defaults.ModelUUID,
		SpeakingRate:  s.defaults.SpeakingRate,
		VolumePercent: s.defaults.VolumePercent,
	}

	var model sql.NullString
	var rate sql.NullFloat64
	var volume sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT model_uuid, speaking_rate, volume_percent FROM speaker_prefs WHERE speaker_id = ?`,
		speakerID).Scan(&model, &rate, &volume)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, nil
	}
	if err != nil {
		return prefs, err
	}

	if model.Valid && model.String != "" {
		prefs.ModelUUID = model.String
	}
	if rate.Valid {
		prefs.SpeakingRate = rate.Float64
	}
	if volume.Valid {
		prefs.VolumePercent = int(volume.Int64)
	}
	return prefs, nil
}

// SetModel stores the speaker's voice model UUID.
func (s *Store) SetModel(ctx context.Context, speakerID, modelUUID string) error {
	return s.upsertPref(ctx, speakerID, "model_uuid", modelUUID)
}

// SetSpeakingRate stores the speaker's speaking rate.
func (s *Store) SetSpeakingRate(ctx context.Context, speakerID string, rate float64) error {
	return s.upsertPref(ctx, speakerID, "speaking_rate", rate)
}

// SetVolumePercent stores the speaker's personal volume (0-200).
func (s *Store) SetVolumePercent(ctx context.Context, speakerID string, percent int) error {
	return s.upsertPref(ctx, speakerID, "volume_percent", percent)
}

func (s *Store) upsertPref(ctx context.Context, speakerID, column string, value any) error {
	// column is one of three fixed names, never caller input.
	query := fmt.Sprintf(
		`INSERT INTO speaker_prefs(speaker_id, %s, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(speaker_id) DO UPDATE SET %s=excluded.%s, updated_at=excluded.updated_at`,
		column, column, column)
	_, err := s.db.ExecContext(ctx, query, speakerID, value, s.clock().UTC())
	return err
}

// ResetSpeaker removes all stored preferences for a speaker. The bool
// reports whether anything was stored.
func (s *Store) ResetSpeaker(ctx context.Context, speakerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM speaker_prefs WHERE speaker_id = ?`, speakerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
