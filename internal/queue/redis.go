package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKey = "crashreports:enrich:jobs"

	blockingPopTimeout = 5 * time.Second
)

// RedisQueue is a list-backed queue: LPUSH to enqueue, BRPOP to dequeue.
// It is shared by every process pointed at the same key.
type RedisQueue struct {
	client    *redis.Client
	key       string
	ownClient bool
	closed    atomic.Bool
}

func NewRedisQueue(ctx context.Context, redisURL, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	q := NewRedisQueueFromClient(client, key)
	q.ownClient = true
	return q, nil
}

// NewRedisQueueFromClient wraps an existing client; Close leaves it open.
func NewRedisQueueFromClient(client *redis.Client, key string) *RedisQueue {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		trimmed = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: trimmed}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks until a job arrives, ctx ends, or the queue is closed.
// Malformed payloads are dropped.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		res, err := q.client.BRPop(ctx, blockingPopTimeout, q.key).Result()
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case errors.Is(err, redis.ErrClosed):
				return Job{}, ErrClosed
			case ctx.Err() != nil:
				return Job{}, ctx.Err()
			default:
				return Job{}, fmt.Errorf("brpop %s: %w", q.key, err)
			}
		}
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			continue
		}
		if job.Validate() != nil {
			continue
		}
		return job, nil
	}
}

// Len is the number of jobs waiting in redis.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	if q.ownClient {
		return q.client.Close()
	}
	return nil
}
