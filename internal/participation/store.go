// Package participation remembers, per device, which sessions this device
// has joined so a reload or a second visit resumes the same participant
// instead of joining again as a stranger.
package participation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/models"
)

var ErrNotFound = errors.New("participation record not found")

// DefaultTTL is how long a participation stays resumable.
const DefaultTTL = 24 * time.Hour

type Record struct {
	SessionID     uuid.UUID      `json:"session_id"`
	SessionCode   string         `json:"session_code"`
	AppType       models.AppType `json:"app_type"`
	ParticipantID uuid.UUID      `json:"participant_id"`
	DisplayName   string         `json:"display_name"`
	Role          models.Role    `json:"role"`
	Token         string         `json:"token,omitempty"`
	SavedAt       time.Time      `json:"saved_at"`
}

// Key identifies a participation by app and code. Codes are only unique
// within an app type.
func Key(appType models.AppType, code string) string {
	return string(appType) + ":" + code
}

func (r Record) Key() string {
	return Key(r.AppType, r.SessionCode)
}

type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
	// Prune removes records saved before olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	Identity(ctx context.Context) (string, error)
	SetIdentity(ctx context.Context, id string) error
}

// MemoryStore keeps everything in process.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	identity string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if rec.SavedAt.Before(olderThan) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Identity(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == "" {
		return "", ErrNotFound
	}
	return s.identity, nil
}

func (s *MemoryStore) SetIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	return nil
}

func sortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SavedAt.After(recs[j].SavedAt)
	})
}
