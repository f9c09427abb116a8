package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisTransport.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	PollInterval time.Duration
}

// RedisTransport is a Transport backed by Redis lists. Ready tasks live in a
// list consumed with BLMOVE into an active list; delayed retries sit in a
// sorted set scored by their due time until promoted.
type RedisTransport struct {
	client       *redis.Client
	pollInterval time.Duration
	now          func() time.Time

	ready      string
	active     string
	delayed    string
	heartbeats string
	pending    string
	completed  string
	failed     string
}

type redisEnvelope struct {
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	StoredFilename string     `json:"stored_filename"`
	Content        []byte     `json:"content,omitempty"`
	Attempts       int        `json:"attempts"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	LastError      string     `json:"last_error,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

var (
	enqueueScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('LPUSH', KEYS[2], ARGV[2])
return 1`)

	promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('LPUSH', KEYS[2], member)
end
return #due`)

	// KEYS: active, heartbeats, pending, destination. ARGV: receipt, mode, payload, score, job id.
	settleScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
if ARGV[2] == 'retry' then
  redis.call('ZADD', KEYS[4], ARGV[4], ARGV[3])
else
  redis.call('SREM', KEYS[3], ARGV[5])
  redis.call('LPUSH', KEYS[4], ARGV[3])
end
return 1`)

	// KEYS: active, heartbeats, ready. ARGV: receipt, payload.
	reclaimScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('LPUSH', KEYS[3], ARGV[2])
return 1`)
)

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return newRedisTransport(client, opts), nil
}

func newRedisTransport(client *redis.Client, opts RedisOptions) *RedisTransport {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "vidqueue"
	}
	poll := opts.PollInterval
	if poll < time.Second {
		poll = time.Second
	}
	return &RedisTransport{
		client:       client,
		pollInterval: poll,
		now:          time.Now,
		ready:        prefix + ":ready",
		active:       prefix + ":active",
		delayed:      prefix + ":delayed",
		heartbeats:   prefix + ":heartbeats",
		pending:      prefix + ":pending",
		completed:    prefix + ":completed",
		failed:       prefix + ":failed",
	}
}

func (r *RedisTransport) Close() error {
	return r.client.Close()
}

func (r *RedisTransport) Enqueue(ctx context.Context, task Task) error {
	if task.JobID == "" || task.StoredFilename == "" {
		return errors.New("enqueue: job id and stored filename are required")
	}
	env := redisEnvelope{
		ID:             uuid.NewString(),
		JobID:          task.JobID,
		StoredFilename: task.StoredFilename,
		Content:        task.Content,
		EnqueuedAt:     r.now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("enqueue: encode task: %w", err)
	}
	added, err := enqueueScript.Run(ctx, r.client, []string{r.pending, r.ready}, task.JobID, string(raw)).Int()
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("enqueue: job %s: %w", task.JobID, ErrAlreadyQueued)
	}
	return nil
}

func (r *RedisTransport) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.promoteDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		raw, err := r.client.BLMove(ctx, r.ready, r.active, "RIGHT", "LEFT", r.pollInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// Unreadable payloads cannot be retried; park them with the failures.
			_ = r.client.LRem(ctx, r.active, 1, raw).Err()
			_ = r.client.LPush(ctx, r.failed, raw).Err()
			continue
		}
		if err := r.client.HSet(ctx, r.heartbeats, raw, r.now().UnixMilli()).Err(); err != nil {
			return nil, fmt.Errorf("dequeue: record heartbeat: %w", err)
		}
		return &Delivery{
			Task: Task{
				JobID:          env.JobID,
				StoredFilename: env.StoredFilename,
				Content:        env.Content,
				EnqueuedAt:     env.EnqueuedAt,
			},
			Attempt: env.Attempts + 1,
			receipt: raw,
		}, nil
	}
}

func (r *RedisTransport) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, r.client, []string{r.delayed, r.ready}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("promote delayed tasks: %w", err)
	}
	return nil
}

// settled rewrites the delivery envelope for its next resting place.
func (r *RedisTransport) settled(d *Delivery, cause error, terminal bool) (string, error) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(d.receipt), &env); err != nil {
		return "", fmt.Errorf("decode receipt: %w", err)
	}
	env.Attempts = d.Attempt
	env.LastError = causeMessage(cause)
	if terminal {
		finished := r.now().UTC()
		env.FinishedAt = &finished
		env.Content = nil
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	return string(raw), nil
}

func (r *RedisTransport) settle(ctx context.Context, d *Delivery, mode, destination string, payload string, score int64) error {
	if d == nil {
		return errors.New("nil delivery")
	}
	moved, err := settleScript.Run(ctx, r.client,
		[]string{r.active, r.heartbeats, r.pending, destination},
		d.receipt, mode, payload, score, d.Task.JobID,
	).Int()
	if err != nil {
		return err
	}
	if moved == 0 {
		return fmt.Errorf("job %s: %w", d.Task.JobID, ErrStaleDelivery)
	}
	return nil
}

func (r *RedisTransport) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return errors.New("ack: nil delivery")
	}
	payload, err := r.settled(d, nil, true)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if err := r.settle(ctx, d, "ack", r.completed, payload, 0); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (r *RedisTransport) Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error {
	if d == nil {
		return errors.New("retry: nil delivery")
	}
	payload, err := r.settled(d, cause, false)
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	due := r.now().Add(delay).UnixMilli()
	if err := r.settle(ctx, d, "retry", r.delayed, payload, due); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

func (r *RedisTransport) Fail(ctx context.Context, d *Delivery, cause error) error {
	if d == nil {
		return errors.New("fail: nil delivery")
	}
	payload, err := r.settled(d, cause, true)
	if err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	if err := r.settle(ctx, d, "fail", r.failed, payload, 0); err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	return nil
}

func (r *RedisTransport) Heartbeat(ctx context.Context, d *Delivery) error {
	if d == nil {
		return errors.New("heartbeat: nil delivery")
	}
	exists, err := r.client.HExists(ctx, r.heartbeats, d.receipt).Result()
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if !exists {
		return fmt.Errorf("heartbeat: job %s: %w", d.Task.JobID, ErrStaleDelivery)
	}
	if err := r.client.HSet(ctx, r.heartbeats, d.receipt, r.now().UnixMilli()).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// requeue moves one active receipt back to the ready list, counting the
// interrupted delivery as an attempt.
func (r *RedisTransport) requeue(ctx context.Context, receipt string) (bool, error) {
	var env redisEnvelope
	payload := receipt
	if err := json.Unmarshal([]byte(receipt), &env); err == nil {
		env.Attempts++
		env.LastError = "reclaimed after missed heartbeats"
		if raw, err := json.Marshal(env); err == nil {
			payload = string(raw)
		}
	}
	moved, err := reclaimScript.Run(ctx, r.client, []string{r.active, r.heartbeats, r.ready}, receipt, payload).Int()
	if err != nil {
		return false, err
	}
	return moved == 1, nil
}

func (r *RedisTransport) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	beats, err := r.client.HGetAll(ctx, r.heartbeats).Result()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	var reclaimed int64
	for receipt, rawTS := range beats {
		ts, err := strconv.ParseInt(rawTS, 10, 64)
		if err == nil && ts >= cutoff.UnixMilli() {
			continue
		}
		ok, err := r.requeue(ctx, receipt)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim stale tasks: %w", err)
		}
		if ok {
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (r *RedisTransport) Recover(ctx context.Context) (int64, error) {
	receipts, err := r.client.LRange(ctx, r.active, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("recover active tasks: %w", err)
	}
	var recovered int64
	for _, receipt := range receipts {
		ok, err := r.requeue(ctx, receipt)
		if err != nil {
			return recovered, fmt.Errorf("recover active tasks: %w", err)
		}
		if ok {
			recovered++
		}
	}
	return recovered, nil
}

func (r *RedisTransport) Prune(ctx context.Context, keep Retention) (int64, error) {
	var total int64
	for _, bound := range []struct {
		key  string
		keep int
	}{
		{r.completed, keep.Completed},
		{r.failed, keep.Failed},
	} {
		length, err := r.client.LLen(ctx, bound.key).Result()
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", bound.key, err)
		}
		limit := int64(max(bound.keep, 0))
		if length <= limit {
			continue
		}
		if limit == 0 {
			err = r.client.Del(ctx, bound.key).Err()
		} else {
			err = r.client.LTrim(ctx, bound.key, 0, limit-1).Err()
		}
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", bound.key, err)
		}
		total += length - limit
	}
	return total, nil
}

func (r *RedisTransport) Stats(ctx context.Context) (Stats, error) {
	var (
		ready, active, completed, failed *redis.IntCmd
		delayed                          *redis.IntCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, r.ready)
		active = pipe.LLen(ctx, r.active)
		completed = pipe.LLen(ctx, r.completed)
		failed = pipe.LLen(ctx, r.failed)
		delayed = pipe.ZCard(ctx, r.delayed)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Queued:    int(ready.Val()),
		Delayed:   int(delayed.Val()),
		Active:    int(active.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
	}, nil
}
