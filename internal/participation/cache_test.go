package participation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"dajam-backend/internal/models"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleRecord(code string) Record {
	return Record{
		SessionID:     uuid.New(),
		SessionCode:   code,
		AppType:       models.AppPoll,
		ParticipantID: uuid.New(),
		DisplayName:   "Ada",
		Role:          models.RoleParticipant,
		Token:         "tok",
	}
}

func TestCache_RememberAndResume(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cache := NewCache(store, DefaultTTL)
			rec := sampleRecord("ABC234")

			if err := cache.Remember(ctx, rec); err != nil {
				t.Fatalf("Remember returned error: %v", err)
			}

			got, ok, err := cache.Resume(ctx, models.AppPoll, "ABC234")
			if err != nil || !ok {
				t.Fatalf("Resume = %v, %v; want a record", ok, err)
			}
			if got.ParticipantID != rec.ParticipantID || got.SessionID != rec.SessionID || got.Token != "tok" {
				t.Fatalf("resumed %+v, want %+v", got, rec)
			}

			if _, ok, _ := cache.Resume(ctx, models.AppRanking, "ABC234"); ok {
				t.Fatalf("expected codes to be scoped by app type")
			}
		})
	}
}

func TestCache_ExpiredRecordIsNotResumed(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cache := NewCache(store, DefaultTTL)
			start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			cache.now = func() time.Time { return start }

			if err := cache.Remember(ctx, sampleRecord("OLD234")); err != nil {
				t.Fatalf("Remember returned error: %v", err)
			}

			cache.now = func() time.Time { return start.Add(25 * time.Hour) }
			if _, ok, err := cache.Resume(ctx, models.AppPoll, "OLD234"); ok || err != nil {
				t.Fatalf("expected stale record to be dropped, got ok=%v err=%v", ok, err)
			}
			if _, err := store.Get(ctx, Key(models.AppPoll, "OLD234")); err != ErrNotFound {
				t.Fatalf("expected stale record to be deleted, got %v", err)
			}
		})
	}
}

func TestCache_PruneAndHistory(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cache := NewCache(store, DefaultTTL)
			start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			cache.now = func() time.Time { return start }
			_ = cache.Remember(ctx, sampleRecord("AAA234"))
			cache.now = func() time.Time { return start.Add(20 * time.Hour) }
			_ = cache.Remember(ctx, sampleRecord("BBB234"))
			cache.now = func() time.Time { return start.Add(21 * time.Hour) }
			_ = cache.Remember(ctx, sampleRecord("CCC234"))

			cache.now = func() time.Time { return start.Add(30 * time.Hour) }
			history, err := cache.History(ctx)
			if err != nil {
				t.Fatalf("History returned error: %v", err)
			}
			if len(history) != 2 || history[0].SessionCode != "CCC234" || history[1].SessionCode != "BBB234" {
				t.Fatalf("unexpected history %+v", history)
			}

			n, err := cache.Prune(ctx)
			if err != nil {
				t.Fatalf("Prune returned error: %v", err)
			}
			if n != 1 {
				t.Fatalf("Prune removed %d records, want 1", n)
			}
		})
	}
}

func TestCache_DeviceIDIsStable(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cache := NewCache(store, DefaultTTL)

			first, err := cache.DeviceID(ctx)
			if err != nil {
				t.Fatalf("DeviceID returned error: %v", err)
			}
			if _, err := uuid.Parse(first); err != nil {
				t.Fatalf("expected uuid device id, got %q", first)
			}
			second, _ := cache.DeviceID(ctx)
			if first != second {
				t.Fatalf("device id changed: %q then %q", first, second)
			}
		})
	}
}

func TestCache_Forget(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryStore(), DefaultTTL)
	_ = cache.Remember(ctx, sampleRecord("FGT234"))

	if err := cache.Forget(ctx, models.AppPoll, "FGT234"); err != nil {
		t.Fatalf("Forget returned error: %v", err)
	}
	if _, ok, _ := cache.Resume(ctx, models.AppPoll, "FGT234"); ok {
		t.Fatalf("expected forgotten record to be gone")
	}
}
