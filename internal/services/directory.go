package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/codes"
	"dajam-backend/internal/models"
	"dajam-backend/internal/repository"
)

// MaxCodeAttempts bounds how many fresh codes CreateSession tries when the
// store reports a collision.
const MaxCodeAttempts = 5

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindActiveByCode(ctx context.Context, appType models.AppType, code string) ([]*models.Session, error)
	Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListPublic(ctx context.Context, appType models.AppType, limit int) ([]*models.Session, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Session, error)
}

type ParticipantRepository interface {
	Add(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error)
	Ban(ctx context.Context, sessionID, participantID uuid.UUID) error
	UpdateMetadata(ctx context.Context, participantID uuid.UUID, metadata json.RawMessage) (*models.Participant, error)
}

type DataRowRepository interface {
	Insert(ctx context.Context, row *models.DataRow) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.DataRow, error)
}

// SessionDirectory owns the session lifecycle: creation, lookup by code,
// joining, closing and the append-only data rows. Every mutation announces
// itself on the change feed.
type SessionDirectory struct {
	sessions     SessionRepository
	participants ParticipantRepository
	rows         DataRowRepository
	publisher    changefeed.Publisher
	codeLength   int
	now          func() time.Time
	generateCode func(length int) (string, error)
}

func NewSessionDirectory(
	sessions SessionRepository,
	participants ParticipantRepository,
	rows DataRowRepository,
	publisher changefeed.Publisher,
	codeLength int,
) *SessionDirectory {
	if codeLength <= 0 {
		codeLength = codes.DefaultLength
	}
	return &SessionDirectory{
		sessions:     sessions,
		participants: participants,
		rows:         rows,
		publisher:    publisher,
		codeLength:   codeLength,
		now:          time.Now,
		generateCode: codes.Generate,
	}
}

func (d *SessionDirectory) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, *models.Participant, error) {
	const op = "create session"

	fieldErrors := make(map[string]string)
	if !req.AppType.Valid() {
		fieldErrors["app_type"] = "Unknown app type"
	}
	if req.MaxParticipants != nil && *req.MaxParticipants <= 0 {
		fieldErrors["max_participants"] = "Must be positive"
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(d.now()) {
		fieldErrors["expires_at"] = "Must be in the future"
	}
	if len(fieldErrors) > 0 {
		return nil, nil, &apperr.ValidationError{Op: op, Message: "invalid session", Fields: fieldErrors}
	}

	config, err := normalizeJSON(op, "config", req.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateConfig(req.AppType, config); err != nil {
		return nil, nil, err
	}

	var session *models.Session
	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code, err := d.generateCode(d.codeLength)
		if err != nil {
			return nil, nil, &apperr.CreationError{Op: op, Message: "failed to generate code", Err: err}
		}

		candidate := &models.Session{
			Code:            code,
			AppType:         req.AppType,
			Title:           strings.TrimSpace(req.Title),
			ConfigJSON:      config,
			IsPublic:        req.IsPublic,
			MaxParticipants: req.MaxParticipants,
			ExpiresAt:       req.ExpiresAt,
		}
		err = d.sessions.Create(ctx, candidate)
		if errors.Is(err, repository.ErrCodeTaken) {
			log.Printf("directory: code %s taken for %s (attempt %d/%d)", code, req.AppType, attempt, MaxCodeAttempts)
			continue
		}
		if err != nil {
			return nil, nil, &apperr.CreationError{Op: op, Message: "store rejected session", Err: err}
		}
		session = candidate
		break
	}
	if session == nil {
		return nil, nil, &apperr.CreationError{
			Op:      op,
			Message: fmt.Sprintf("no free code after %d attempts", MaxCodeAttempts),
			Err:     repository.ErrCodeTaken,
		}
	}
	d.publish(ctx, session.ID, models.TableSessions, changefeed.KindInsert)

	var host *models.Participant
	if name := strings.TrimSpace(req.HostName); name != "" {
		host = &models.Participant{
			SessionID:   session.ID,
			DisplayName: name,
			Role:        models.RoleHost,
		}
		if err := d.participants.Add(ctx, host); err != nil {
			return session, nil, &apperr.CreationError{Op: op, Message: "failed to add host", Err: err}
		}
		d.publish(ctx, session.ID, models.TableParticipants, changefeed.KindInsert)
	}

	return session, host, nil
}

// LoadSession resolves a share code to the one active session of appType and
// returns it with its roster and rows.
func (d *SessionDirectory) LoadSession(ctx context.Context, appType models.AppType, rawCode string) (*models.Snapshot, error) {
	const op = "load session"

	if !appType.Valid() {
		return nil, &apperr.ValidationError{Op: op, Message: "unknown app type", Fields: map[string]string{"app_type": "Unknown app type"}}
	}
	code := codes.Format(rawCode)
	if len(code) < codes.DefaultLength || len(code) > codes.LongLength || !codes.Validate(code, len(code)) {
		return nil, &apperr.ValidationError{Op: op, Message: "malformed session code", Fields: map[string]string{"code": "Malformed session code"}}
	}

	matches, err := d.sessions.FindActiveByCode(ctx, appType, code)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, &apperr.NotFoundError{Op: op, Message: fmt.Sprintf("no active %s session with code %s", appType, code)}
	}
	session := matches[0]
	if session.Expired(d.now()) {
		return nil, &apperr.NotFoundError{Op: op, Message: fmt.Sprintf("session %s has expired", code)}
	}

	participants, err := d.participants.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	rows, err := d.rows.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return &models.Snapshot{Session: session, Participants: participants, Rows: rows}, nil
}

func (d *SessionDirectory) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s, err := d.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &apperr.NotFoundError{Op: "get session", Message: "session not found", Err: err}
	}
	return s, err
}

func (d *SessionDirectory) JoinSession(ctx context.Context, sessionID uuid.UUID, displayName string, metadata json.RawMessage) (*models.Participant, error) {
	const op = "join session"

	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, &apperr.ValidationError{Op: op, Message: "display name is required", Fields: map[string]string{"display_name": "Display name is required"}}
	}
	meta, err := normalizeJSON(op, "metadata", metadata)
	if err != nil {
		return nil, err
	}

	if s, err := d.sessions.GetByID(ctx, sessionID); err == nil && s.Expired(d.now()) {
		return nil, &apperr.JoinError{Op: op, Message: "session has expired"}
	}

	p := &models.Participant{
		SessionID:    sessionID,
		DisplayName:  name,
		Role:         models.RoleParticipant,
		MetadataJSON: meta,
	}
	switch err := d.participants.Add(ctx, p); {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return nil, &apperr.NotFoundError{Op: op, Message: "session not found", Err: err}
	case errors.Is(err, repository.ErrSessionInactive):
		return nil, &apperr.JoinError{Op: op, Message: "session is closed", Err: err}
	case errors.Is(err, repository.ErrSessionFull):
		return nil, &apperr.JoinError{Op: op, Message: "session is full", Err: err}
	default:
		return nil, &apperr.JoinError{Op: op, Message: "failed to add participant", Err: err}
	}

	d.publish(ctx, sessionID, models.TableParticipants, changefeed.KindInsert)
	return p, nil
}

// ResumeParticipant returns an existing participant of an active session,
// for a device coming back to a session it already joined.
func (d *SessionDirectory) ResumeParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (*models.Participant, error) {
	const op = "resume participant"

	p, err := d.participants.GetByID(ctx, participantID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.SessionID != sessionID) {
		return nil, &apperr.NotFoundError{Op: op, Message: "participant not found"}
	}
	if err != nil {
		return nil, err
	}
	if p.IsBanned {
		return nil, &apperr.JoinError{Op: op, Message: "participant is banned"}
	}

	s, err := d.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive || s.Expired(d.now()) {
		return nil, &apperr.JoinError{Op: op, Message: "session is closed"}
	}
	return p, nil
}

// CloseSession deactivates a session. Closing a closed session is a no-op.
func (d *SessionDirectory) CloseSession(ctx context.Context, sessionID uuid.UUID) error {
	changed, err := d.sessions.Close(ctx, sessionID, d.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return &apperr.NotFoundError{Op: "close session", Message: "session not found", Err: err}
	}
	if err != nil {
		return err
	}
	if changed {
		d.publish(ctx, sessionID, models.TableSessions, changefeed.KindUpdate)
	}
	return nil
}

func (d *SessionDirectory) ReloadParticipants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	return d.participants.ListBySession(ctx, sessionID)
}

func (d *SessionDirectory) ReloadData(ctx context.Context, sessionID uuid.UUID) ([]*models.DataRow, error) {
	return d.rows.ListBySession(ctx, sessionID)
}

// PrepareSubmission validates a row a participant wants to add and returns
// it ready to queue.
func (d *SessionDirectory) PrepareSubmission(ctx context.Context, sessionID, participantID uuid.UUID, payload json.RawMessage) (*models.Submission, error) {
	const op = "submit row"

	s, err := d.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := d.checkWritable(ctx, op, s, &participantID); err != nil {
		return nil, err
	}
	payload, err = normalizeJSON(op, "payload", payload)
	if err != nil {
		return nil, err
	}
	if err := ValidatePayload(s, payload); err != nil {
		return nil, err
	}

	return &models.Submission{
		ID:            uuid.New(),
		SessionID:     sessionID,
		ParticipantID: &participantID,
		Table:         s.AppType.DataTable(),
		PayloadJSON:   payload,
		QueuedAt:      d.now().UTC(),
	}, nil
}

// SubmitRow appends row. Rows for closed sessions or from banned
// participants are rejected.
func (d *SessionDirectory) SubmitRow(ctx context.Context, row *models.DataRow) error {
	const op = "submit row"

	s, err := d.GetSession(ctx, row.SessionID)
	if err != nil {
		return err
	}
	if err := d.checkWritable(ctx, op, s, row.ParticipantID); err != nil {
		return err
	}
	if row.Table == "" {
		row.Table = s.AppType.DataTable()
	}
	if row.Table != s.AppType.DataTable() {
		return &apperr.ValidationError{Op: op, Message: fmt.Sprintf("%s sessions do not accept %s rows", s.AppType, row.Table)}
	}

	if err := d.rows.Insert(ctx, row); err != nil {
		return err
	}
	d.publish(ctx, row.SessionID, row.Table, changefeed.KindInsert)
	return nil
}

func (d *SessionDirectory) checkWritable(ctx context.Context, op string, s *models.Session, participantID *uuid.UUID) error {
	if !s.IsActive || s.Expired(d.now()) {
		return &apperr.ValidationError{Op: op, Message: "session is closed"}
	}
	if participantID == nil {
		return nil
	}
	p, err := d.participants.GetByID(ctx, *participantID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.SessionID != s.ID) {
		return &apperr.NotFoundError{Op: op, Message: "participant not found"}
	}
	if err != nil {
		return err
	}
	if p.IsBanned {
		return &apperr.ValidationError{Op: op, Message: "participant is banned"}
	}
	return nil
}

func (d *SessionDirectory) BanParticipant(ctx context.Context, sessionID, participantID uuid.UUID) error {
	err := d.participants.Ban(ctx, sessionID, participantID)
	if errors.Is(err, repository.ErrNotFound) {
		return &apperr.NotFoundError{Op: "ban participant", Message: "participant not found", Err: err}
	}
	if err != nil {
		return err
	}
	d.publish(ctx, sessionID, models.TableParticipants, changefeed.KindUpdate)
	return nil
}

func (d *SessionDirectory) UpdateMetadata(ctx context.Context, participantID uuid.UUID, metadata json.RawMessage) (*models.Participant, error) {
	const op = "update metadata"

	meta, err := normalizeJSON(op, "metadata", metadata)
	if err != nil {
		return nil, err
	}
	p, err := d.participants.UpdateMetadata(ctx, participantID, meta)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &apperr.NotFoundError{Op: op, Message: "participant not found", Err: err}
	}
	if err != nil {
		return nil, err
	}
	d.publish(ctx, p.SessionID, models.TableParticipants, changefeed.KindUpdate)
	return p, nil
}

// ListPublic lists open public sessions. An empty appType lists all apps.
func (d *SessionDirectory) ListPublic(ctx context.Context, appType models.AppType) ([]*models.Session, error) {
	if appType != "" && !appType.Valid() {
		return nil, &apperr.ValidationError{Op: "list public", Message: "unknown app type", Fields: map[string]string{"app_type": "Unknown app type"}}
	}
	return d.sessions.ListPublic(ctx, appType, 50)
}

// CloseExpired closes every active session whose expiry has passed and
// reports how many it closed.
func (d *SessionDirectory) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := d.sessions.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, s := range expired {
		changed, err := d.sessions.Close(ctx, s.ID, now)
		if err != nil {
			log.Printf("directory: failed to close expired session %s: %v", s.ID, err)
			continue
		}
		if changed {
			closed++
			d.publish(ctx, s.ID, models.TableSessions, changefeed.KindUpdate)
		}
	}
	return closed, nil
}

func (d *SessionDirectory) publish(ctx context.Context, sessionID uuid.UUID, table string, kind changefeed.Kind) {
	if d.publisher == nil {
		return
	}
	e := changefeed.Event{SessionID: sessionID, Table: table, Kind: kind, At: d.now().UTC()}
	if err := d.publisher.Publish(ctx, e); err != nil {
		log.Printf("directory: failed to publish %s %s for session %s: %v", table, kind, sessionID, err)
	}
}
