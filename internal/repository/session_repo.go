package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dajam-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, code, app_type, title, config_json, is_active, is_public, max_participants, expires_at, closed_at, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var appType string
	err := row.Scan(
		&s.ID,
		&s.Code,
		&appType,
		&s.Title,
		&s.ConfigJSON,
		&s.IsActive,
		&s.IsPublic,
		&s.MaxParticipants,
		&s.ExpiresAt,
		&s.ClosedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.AppType = models.AppType(appType)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts an active session. ErrCodeTaken means another active
// session of the same app type already holds the code.
func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	if len(s.ConfigJSON) == 0 {
		s.ConfigJSON = json.RawMessage("{}")
	}

	query := `
		INSERT INTO sessions (code, app_type, title, config_json, is_active, is_public, max_participants, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)
		RETURNING id, is_active, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.Code, string(s.AppType), s.Title, s.ConfigJSON, s.IsPublic, s.MaxParticipants, s.ExpiresAt,
	).Scan(&s.ID, &s.IsActive, &s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// FindActiveByCode returns every active session matching the pair. The
// partial unique index keeps this to at most one row; callers still check.
func (r *SessionRepo) FindActiveByCode(ctx context.Context, appType models.AppType, code string) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE app_type = $1 AND code = $2 AND is_active
	`, string(appType), code)
	if err != nil {
		return nil, fmt.Errorf("failed to find session by code: %w", err)
	}
	return collectSessions(rows)
}

// Close deactivates a session. It reports false when the session was
// already closed.
func (r *SessionRepo) Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var closedID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET is_active = FALSE, closed_at = $2
		WHERE id = $1 AND is_active
		RETURNING id
	`, id, at).Scan(&closedID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to close session: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// ListPublic returns active public sessions, newest first. An empty app
// type lists every app.
func (r *SessionRepo) ListPublic(ctx context.Context, appType models.AppType, limit int) ([]*models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE is_active AND is_public
		  AND ($1 = '' OR app_type = $1)
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT $2
	`, string(appType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list public sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *SessionRepo) ListExpired(ctx context.Context, now time.Time) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return collectSessions(rows)
}
