package participation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dajam-backend/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS participation (
    participation_key TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    session_code TEXT NOT NULL,
    app_type TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'participant',
    token TEXT NOT NULL DEFAULT '',
    saved_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participation_saved_at ON participation(saved_at);

CREATE TABLE IF NOT EXISTS device_identity (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    device_id TEXT NOT NULL
);
`

// SQLiteStore keeps participations in a device-local database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open participation db: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create participation schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `session_id, session_code, app_type, participant_id, display_name, role, token, saved_at`

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM participation WHERE participation_key = ?`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participation (participation_key, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(participation_key) DO UPDATE SET
			session_id = excluded.session_id,
			session_code = excluded.session_code,
			app_type = excluded.app_type,
			participant_id = excluded.participant_id,
			display_name = excluded.display_name,
			role = excluded.role,
			token = excluded.token,
			saved_at = excluded.saved_at
	`, key, rec.SessionID.String(), rec.SessionCode, string(rec.AppType), rec.ParticipantID.String(),
		rec.DisplayName, string(rec.Role), rec.Token, rec.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save participation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM participation WHERE participation_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM participation ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participation: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM participation WHERE saved_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune participations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Identity(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT device_id FROM device_identity WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) SetIdentity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_identity (id, device_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET device_id = excluded.device_id
	`, id)
	if err != nil {
		return fmt.Errorf("failed to save device identity: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec               Record
		sessionID, partID string
		appType, role     string
		savedAt           int64
	)
	if err := row.Scan(&sessionID, &rec.SessionCode, &appType, &partID, &rec.DisplayName, &role, &rec.Token, &savedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("bad session id %q: %w", sessionID, err)
	}
	if rec.ParticipantID, err = uuid.Parse(partID); err != nil {
		return nil, fmt.Errorf("bad participant id %q: %w", partID, err)
	}
	rec.AppType = models.AppType(appType)
	rec.Role = models.Role(role)
	rec.SavedAt = time.UnixMilli(savedAt).UTC()
	return &rec, nil
}
