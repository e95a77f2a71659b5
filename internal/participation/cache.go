package participation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/models"
)

// Cache applies the resume policy on top of a Store: records older than the
// ttl are treated as gone.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// DeviceID returns this device's identity, creating one on first use.
func (c *Cache) DeviceID(ctx context.Context) (string, error) {
	id, err := c.store.Identity(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := c.store.SetIdentity(ctx, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// Remember stores rec, stamping it with the current time.
func (c *Cache) Remember(ctx context.Context, rec Record) error {
	rec.SavedAt = c.now().UTC()
	return c.store.Set(ctx, rec.Key(), rec)
}

// Resume returns the participation for a session if it is still fresh.
func (c *Cache) Resume(ctx context.Context, appType models.AppType, code string) (*Record, bool, error) {
	key := Key(appType, code)
	rec, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if c.now().Sub(rec.SavedAt) > c.ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return rec, true, nil
}

func (c *Cache) Forget(ctx context.Context, appType models.AppType, code string) error {
	return c.store.Delete(ctx, Key(appType, code))
}

// History lists fresh participations, newest first.
func (c *Cache) History(ctx context.Context) ([]Record, error) {
	recs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := c.now().Add(-c.ttl)
	out := recs[:0]
	for _, rec := range recs {
		if !rec.SavedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Prune drops everything older than the ttl.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	return c.store.Prune(ctx, c.now().Add(-c.ttl))
}
