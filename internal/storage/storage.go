// Package storage provides SQLite-backed persistence for submission
// tracking records.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/crypto-counter/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "crypto-counter", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL DEFAULT 'submission',
			reply_id   TEXT,
			ignored    INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_ignored ON submissions(ignored)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a record for the submission id if none exists and returns
// the stored record. The second return value reports whether a new record
// was created. The insert is a single statement, so two concurrent
// triggers for the same id yield exactly one record.
func (s *Storage) Create(id string) (*models.SubmissionRecord, bool, error) {
	rec := &models.SubmissionRecord{ID: id, Kind: models.KindSubmission}
	if err := rec.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid record: %w", err)
	}

	now := time.Now().UnixNano()
	res, err := s.db.Exec(`
		INSERT INTO submissions (id, kind, created_at, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		id, string(models.KindSubmission), now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert record: %w", err)
	}
	n, _ := res.RowsAffected()

	stored, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

// Get returns the record for the submission id, or ErrNotFound.
func (s *Storage) Get(id string) (*models.SubmissionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, reply_id, ignored, created_at, updated_at
		FROM submissions WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// Active returns all non-ignored submission-kind records.
func (s *Storage) Active() ([]*models.SubmissionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, reply_id, ignored, created_at, updated_at
		FROM submissions WHERE kind = ? AND ignored = 0`,
		string(models.KindSubmission))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.SubmissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetReplyID attaches the bot's posted reply to the record. The reply id
// is write-once: a second call for the same record is a no-op, so later
// cycles keep editing the original reply.
func (s *Storage) SetReplyID(id, replyID string) error {
	if replyID == "" {
		return errors.New("reply id must not be empty")
	}
	_, err := s.db.Exec(`
		UPDATE submissions SET reply_id = ?, updated_at = ?
		WHERE id = ? AND reply_id IS NULL`,
		replyID, time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set reply id: %w", err)
	}
	return nil
}

// SetIgnored permanently marks the record as unanalyzable.
func (s *Storage) SetIgnored(id string) error {
	res, err := s.db.Exec(`
		UPDATE submissions SET ignored = 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set ignored: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Truncate removes all records. Used by the --clear-db administrative reset.
func (s *Storage) Truncate() error {
	if _, err := s.db.Exec(`DELETE FROM submissions`); err != nil {
		return fmt.Errorf("failed to truncate records: %w", err)
	}
	return nil
}

func scanRecord(scan func(...any) error) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	var kind string
	var replyID sql.NullString
	var ignored int
	var createdAtNano, updatedAtNano int64
	err := scan(&rec.ID, &kind, &replyID, &ignored, &createdAtNano, &updatedAtNano)
	if err != nil {
		return nil, err
	}
	rec.Kind = models.RecordKind(kind)
	rec.ReplyID = replyID.String
	rec.Ignored = ignored != 0
	rec.CreatedAt = time.Unix(0, createdAtNano)
	rec.UpdatedAt = time.Unix(0, updatedAtNano)
	return &rec, nil
}
