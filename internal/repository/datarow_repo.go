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

type DataRowRepo struct {
	pool *pgxpool.Pool
}

func NewDataRowRepo(pool *pgxpool.Pool) *DataRowRepo {
	return &DataRowRepo{pool: pool}
}

// Insert appends row. A row whose id is already stored is left alone, so a
// retried submission is not counted twice.
func (r *DataRowRepo) Insert(ctx context.Context, row *models.DataRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if len(row.PayloadJSON) == 0 {
		row.PayloadJSON = json.RawMessage("{}")
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO data_rows (id, session_id, participant_id, table_name, payload_json)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`, row.ID, row.SessionID, row.ParticipantID, row.Table, row.PayloadJSON).Scan(&row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert data row: %w", err)
	}
	return nil
}

// ListBySession returns every row of a session in insertion order.
func (r *DataRowRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.DataRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, participant_id, table_name, payload_json, created_at
		FROM data_rows
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data rows: %w", err)
	}
	defer rows.Close()

	var out []*models.DataRow
	for rows.Next() {
		var d models.DataRow
		if err := rows.Scan(&d.ID, &d.SessionID, &d.ParticipantID, &d.Table, &d.PayloadJSON, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data row: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
