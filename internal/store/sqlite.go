package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
		subject_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS record_fields (
		subject_id TEXT NOT NULL REFERENCES records(subject_id) ON DELETE CASCADE,
		field      TEXT NOT NULL,
		value      TEXT NOT NULL,
		PRIMARY KEY (subject_id, field)
	)`,
	`CREATE TABLE IF NOT EXISTS event_registrations (
		user_id  TEXT NOT NULL,
		event_id TEXT NOT NULL,
		PRIMARY KEY (user_id, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS session_registrations (
		user_id    TEXT NOT NULL,
		event_id   TEXT NOT NULL,
		session_id TEXT NOT NULL,
		PRIMARY KEY (user_id, event_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_fields_value ON record_fields(field, value)`,
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an in-process database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindBySubjectID(ctx context.Context, subjectID string) (*Record, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE subject_id = ?`, subjectID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM record_fields WHERE subject_id = ?`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec := &Record{SubjectID: subjectID, Fields: map[string]string{}}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		rec.Fields[field] = value
	}
	return rec, rows.Err()
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, subjectID string, fields map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO records (subject_id) VALUES (?)`, subjectID); err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyExists
		}
		return err
	}
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_fields (subject_id, field, value) VALUES (?, ?, ?)`,
			subjectID, field, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, subjectID string, fields map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE subject_id = ?`, subjectID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_fields (subject_id, field, value) VALUES (?, ?, ?)
			 ON CONFLICT (subject_id, field) DO UPDATE SET value = excluded.value`,
			subjectID, field, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE subject_id = ?`, subjectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FindSubjectIDByEmail(ctx context.Context, email string) (string, error) {
	var subjectID string
	err := s.db.QueryRowContext(ctx,
		`SELECT subject_id FROM record_fields WHERE field = 'EmailAddress' AND value = ? LIMIT 1`,
		email).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return subjectID, err
}

func (s *SQLiteStore) ExistsRegistration(ctx context.Context, userID, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE user_id = ? AND event_id = ?`,
		userID, eventID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) InsertRegistration(ctx context.Context, userID, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_registrations (user_id, event_id) VALUES (?, ?)`,
		userID, eventID)
	return err
}

func (s *SQLiteStore) ExistsSessionRegistration(ctx context.Context, userID, eventID, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_registrations WHERE user_id = ? AND event_id = ? AND session_id = ?`,
		userID, eventID, sessionID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) InsertSessionRegistration(ctx context.Context, userID, eventID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_registrations (user_id, event_id, session_id) VALUES (?, ?, ?)`,
		userID, eventID, sessionID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
