package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

const (
	SubmissionQueue = "queue:submissions"
	maxAttempts     = 3
	lockTTL         = 2 * time.Minute

	// BlockTimeout bounds each BLPOP. The queue connection's read timeout
	// must outlast it.
	BlockTimeout = 30 * time.Second
)

// RowSubmitter persists one row. services.SessionDirectory satisfies it.
type RowSubmitter interface {
	SubmitRow(ctx context.Context, row *models.DataRow) error
}

// queueClient is the part of *redis.Client the pool uses. The list is
// first-in-first-out: producers RPUSH, workers BLPOP.
type queueClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Pool drains queued submissions into the session store. Clients get 202
// as soon as a submission is queued and learn about the row through the
// change feed.
type Pool struct {
	redis       queueClient
	submitter   RowSubmitter
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, submitter RowSubmitter, workerCount int) *Pool {
	return newPool(redisClient, submitter, workerCount)
}

func newPool(client queueClient, submitter RowSubmitter, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		redis:       client,
		submitter:   submitter,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue pushes a prepared submission onto the queue.
func (p *Pool) Enqueue(ctx context.Context, sub *models.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}
	if err := p.redis.RPush(ctx, SubmissionQueue, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to queue submission: %w", err)
	}
	return nil
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d submission workers", p.workerCount)
}

func (p *Pool) Stop() {
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		p.processNext(context.Background(), id, BlockTimeout)
	}
}

// processNext takes the oldest queued submission, waiting up to timeout,
// and stores it. It reports whether a submission was taken.
func (p *Pool) processNext(ctx context.Context, id int, timeout time.Duration) bool {
	result, err := p.redis.BLPop(ctx, timeout, SubmissionQueue).Result()
	if err != nil || len(result) < 2 {
		return false
	}

	var sub models.Submission
	if err := json.Unmarshal([]byte(result[1]), &sub); err != nil {
		log.Printf("Worker %d: dropping unreadable submission: %v", id, err)
		return true
	}

	lockKey := fmt.Sprintf("submission_lock:%s", sub.ID)
	locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil || !locked {
		return true
	}

	if err := p.submitter.SubmitRow(ctx, sub.Row()); err != nil {
		p.handleFailure(&sub, err)
	}

	p.redis.Del(ctx, lockKey)
	return true
}

func (p *Pool) handleFailure(sub *models.Submission, err error) {
	sub.Attempts++
	if !retryable(err) {
		log.Printf("submission %s for session %s rejected: %v", sub.ID, sub.SessionID, err)
		return
	}
	if sub.Attempts >= maxAttempts {
		log.Printf("submission %s for session %s failed permanently after %d attempts: %v", sub.ID, sub.SessionID, sub.Attempts, err)
		return
	}

	delay := retryDelay(sub.Attempts)
	log.Printf("submission %s failed (attempt %d): %v, retrying in %s", sub.ID, sub.Attempts, err, delay)

	data, _ := json.Marshal(sub)
	time.AfterFunc(delay, func() {
		p.redis.RPush(context.Background(), SubmissionQueue, string(data))
	})
}

// retryable reports whether a failed submission may succeed later. Rows the
// directory refused or that point at a missing session never will.
func retryable(err error) bool {
	var verr *apperr.ValidationError
	var nerr *apperr.NotFoundError
	return !errors.As(err, &verr) && !errors.As(err, &nerr)
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
