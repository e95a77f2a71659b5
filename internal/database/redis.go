package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps blocking queue traffic and pub/sub on separate
// connections. Queue carries the submission list and the participation
// store; PubSub carries the change feed.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// redisOptions derives both connections' options from one URL. The queue
// connection waits blockTimeout plus a margin so a BLPOP that returns
// empty is never cut off as a read error.
func redisOptions(redisURL string, blockTimeout time.Duration) (queue, pubsub *redis.Options, err error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	q := *opt
	q.ClientName = "dajam-queue"
	if floor := blockTimeout + 5*time.Second; q.ReadTimeout < floor {
		q.ReadTimeout = floor
	}

	ps := *opt
	ps.ClientName = "dajam-feed"
	return &q, &ps, nil
}

func NewRedisClients(redisURL string, blockTimeout time.Duration) (*RedisClients, error) {
	queueOpt, pubsubOpt, err := redisOptions(redisURL, blockTimeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clients := &RedisClients{
		Queue:  redis.NewClient(queueOpt),
		PubSub: redis.NewClient(pubsubOpt),
	}
	for name, c := range map[string]*redis.Client{"queue": clients.Queue, "pubsub": clients.PubSub} {
		if err := c.Ping(ctx).Err(); err != nil {
			clients.Close()
			return nil, fmt.Errorf("failed to ping Redis (%s): %w", name, err)
		}
	}
	return clients, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
