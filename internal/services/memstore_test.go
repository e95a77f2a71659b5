package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/models"
	"dajam-backend/internal/repository"
)

// memDB backs the three repository stubs with the same rules as the
// Postgres repositories.
type memDB struct {
	mu           sync.Mutex
	sessions     []*models.Session
	participants []*models.Participant
	rows         []*models.DataRow
	clock        time.Time
}

func newMemDB() *memDB {
	return &memDB{clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Millisecond)
	return db.clock
}

type memSessions struct{ db *memDB }

func (m memSessions) Create(_ context.Context, s *models.Session) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, other := range m.db.sessions {
		if other.IsActive && other.AppType == s.AppType && other.Code == s.Code {
			return repository.ErrCodeTaken
		}
	}
	s.ID = uuid.New()
	s.IsActive = true
	s.CreatedAt = m.db.tick()
	cp := *s
	m.db.sessions = append(m.db.sessions, &cp)
	return nil
}

func (m memSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memSessions) FindActiveByCode(_ context.Context, appType models.AppType, code string) ([]*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.Session
	for _, s := range m.db.sessions {
		if s.IsActive && s.AppType == appType && s.Code == code {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memSessions) Close(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.sessions {
		if s.ID == id {
			if !s.IsActive {
				return false, nil
			}
			s.IsActive = false
			s.ClosedAt = &at
			return true, nil
		}
	}
	return false, repository.ErrNotFound
}

func (m memSessions) ListPublic(_ context.Context, appType models.AppType, _ int) ([]*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.Session
	for _, s := range m.db.sessions {
		if s.IsActive && s.IsPublic && (appType == "" || s.AppType == appType) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memSessions) ListExpired(_ context.Context, now time.Time) ([]*models.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.Session
	for _, s := range m.db.sessions {
		if s.IsActive && s.Expired(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memParticipants struct{ db *memDB }

func (m memParticipants) Add(_ context.Context, p *models.Participant) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var session *models.Session
	for _, s := range m.db.sessions {
		if s.ID == p.SessionID {
			session = s
		}
	}
	if session == nil {
		return repository.ErrNotFound
	}
	if !session.IsActive {
		return repository.ErrSessionInactive
	}
	if session.MaxParticipants != nil {
		count := 0
		for _, other := range m.db.participants {
			if other.SessionID == p.SessionID && !other.IsBanned {
				count++
			}
		}
		if count >= *session.MaxParticipants {
			return repository.ErrSessionFull
		}
	}

	if len(p.MetadataJSON) == 0 {
		p.MetadataJSON = json.RawMessage("{}")
	}
	p.ID = uuid.New()
	p.JoinedAt = m.db.tick()
	cp := *p
	m.db.participants = append(m.db.participants, &cp)
	return nil
}

func (m memParticipants) GetByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.participants {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memParticipants) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.Participant
	for _, p := range m.db.participants {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memParticipants) Ban(_ context.Context, sessionID, participantID uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.participants {
		if p.ID == participantID && p.SessionID == sessionID {
			p.IsBanned = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m memParticipants) UpdateMetadata(_ context.Context, participantID uuid.UUID, metadata json.RawMessage) (*models.Participant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.participants {
		if p.ID == participantID {
			p.MetadataJSON = metadata
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memRows struct{ db *memDB }

func (m memRows) Insert(_ context.Context, row *models.DataRow) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	for _, r := range m.db.rows {
		if r.ID == row.ID {
			return nil
		}
	}
	row.CreatedAt = m.db.tick()
	cp := *row
	m.db.rows = append(m.db.rows, &cp)
	return nil
}

func (m memRows) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.DataRow, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*models.DataRow
	for _, r := range m.db.rows {
		if r.SessionID == sessionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Table + ":" + string(e.Kind)
	}
	return out
}

func newTestDirectory() (*SessionDirectory, *memDB, *recordingPublisher) {
	db := newMemDB()
	pub := &recordingPublisher{}
	dir := NewSessionDirectory(memSessions{db}, memParticipants{db}, memRows{db}, pub, 6)
	dir.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return dir, db, pub
}

func pollConfig(options ...string) json.RawMessage {
	data, _ := json.Marshal(PollConfig{Options: options})
	return data
}
