package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dajam-backend/internal/models"
)

type ParticipantRepo struct {
	pool *pgxpool.Pool
}

func NewParticipantRepo(pool *pgxpool.Pool) *ParticipantRepo {
	return &ParticipantRepo{pool: pool}
}

const participantColumns = `id, session_id, user_id, display_name, role, is_banned, joined_at, metadata_json`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var role string
	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.UserID,
		&p.DisplayName,
		&role,
		&p.IsBanned,
		&p.JoinedAt,
		&p.MetadataJSON,
	)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

// Add inserts p into its session. The session row is locked for the
// capacity check so concurrent joins cannot overfill it. Banned participants
// do not count toward capacity.
func (r *ParticipantRepo) Add(ctx context.Context, p *models.Participant) error {
	if len(p.MetadataJSON) == 0 {
		p.MetadataJSON = json.RawMessage("{}")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var active bool
	var maxParticipants *int
	err = tx.QueryRow(ctx, `
		SELECT is_active, max_participants FROM sessions WHERE id = $1 FOR UPDATE
	`, p.SessionID).Scan(&active, &maxParticipants)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if !active {
		return ErrSessionInactive
	}

	if maxParticipants != nil {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM participants WHERE session_id = $1 AND NOT is_banned
		`, p.SessionID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}
		if count >= *maxParticipants {
			return ErrSessionFull
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO participants (session_id, user_id, display_name, role, metadata_json)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_banned, joined_at
	`, p.SessionID, p.UserID, p.DisplayName, string(p.Role), p.MetadataJSON).Scan(&p.ID, &p.IsBanned, &p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ListBySession returns the whole roster, banned included, in join order.
func (r *ParticipantRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE session_id = $1
		ORDER BY joined_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ParticipantRepo) Ban(ctx context.Context, sessionID, participantID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE participants SET is_banned = TRUE
		WHERE id = $1 AND session_id = $2
	`, participantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to ban participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ParticipantRepo) UpdateMetadata(ctx context.Context, participantID uuid.UUID, metadata json.RawMessage) (*models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, `
		UPDATE participants SET metadata_json = $2
		WHERE id = $1
		RETURNING `+participantColumns, participantID, metadata))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update participant metadata: %w", err)
	}
	return p, nil
}
