package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/y0ug/hashguard/internal/database/models"
)

// SQLiteDB represents the SQLite implementation of the Database interface.
type SQLiteDB struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteDB initializes a new SQLiteDB instance.
func NewSQLiteDB(dataSourceName string, logger *logrus.Logger) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(1) // SQLite3 doesn't support multiple writers well.

	sqliteDB := &SQLiteDB{
		db:     db,
		logger: logger,
	}

	if err := sqliteDB.Initialize(context.TODO()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sqliteDB, nil
}

func (s *SQLiteDB) Close(context.Context) error {
	return s.db.Close()
}

// Initialize creates the necessary tables and indexes.
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS url_reputation (
        url_key TEXT PRIMARY KEY,
        verdict TEXT NOT NULL,
        signals TEXT NOT NULL,
        narrative TEXT NOT NULL DEFAULT '',
        computed_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_url_reputation_computed_at ON url_reputation(computed_at);
    `
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// GetEntry retrieves a single reputation entry by its URL key.
func (s *SQLiteDB) GetEntry(ctx context.Context, key string) (models.ReputationEntry, error) {
	var entry models.ReputationEntry

	query := `
		SELECT url_key, verdict, signals, narrative, computed_at
		FROM url_reputation
		WHERE url_key = ?;
	`

	var verdict, signalsJSON, computedAtStr string
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&entry.URLKey,
		&verdict,
		&signalsJSON,
		&entry.Narrative,
		&computedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, ErrEntryNotFound
		}
		s.logger.WithError(err).Errorf("GetEntry: failed to retrieve entry %s", key)
		return entry, err
	}

	computedAt, err := time.Parse(time.RFC3339Nano, computedAtStr)
	if err != nil {
		s.logger.WithError(err).Warnf("GetEntry: invalid time format for entry %s", key)
		return entry, fmt.Errorf("invalid time format for entry %s", key)
	}
	entry.ComputedAt = computedAt
	entry.Verdict = models.Verdict(verdict)

	if err := json.Unmarshal([]byte(signalsJSON), &entry.Signals); err != nil {
		return entry, fmt.Errorf("failed to unmarshal signals for entry %s: %w", key, err)
	}

	return entry, nil
}

// PutEntry inserts or replaces the entry stored under entry.URLKey.
func (s *SQLiteDB) PutEntry(ctx context.Context, entry models.ReputationEntry) error {
	signalsJSON, err := json.Marshal(entry.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	query := `
		INSERT INTO url_reputation (url_key, verdict, signals, narrative, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url_key) DO UPDATE SET
			verdict = excluded.verdict,
			signals = excluded.signals,
			narrative = excluded.narrative,
			computed_at = excluded.computed_at;
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.URLKey,
		string(entry.Verdict),
		string(signalsJSON),
		entry.Narrative,
		entry.ComputedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.WithError(err).Errorf("PutEntry: failed to store entry %s", entry.URLKey)
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry.
func (s *SQLiteDB) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM url_reputation WHERE url_key = ?;`, key)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// CountEntries returns the number of stored entries.
func (s *SQLiteDB) CountEntries(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM url_reputation;`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
