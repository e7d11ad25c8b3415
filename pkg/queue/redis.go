package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"CardSignals/pkg/logger"
	"CardSignals/pkg/resilience"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed work queue with a delayed-retry sorted set
// and a dead letter list.
type RedisQueue struct {
	l       *logger.Logger
	cfg     Config
	client  *redis.Client
	prefix  string
	newID   func() string
	now     func() time.Time
	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*RedisQueue)

// WithKeyPrefix sets the Redis key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// WithIDs overrides message id generation.
func WithIDs(fn func() string) Option {
	return func(r *RedisQueue) { r.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *RedisQueue) { r.now = now }
}

func NewRedisQueue(l *logger.Logger, cfg Config, client *redis.Client, opts ...Option) *RedisQueue {
	if l == nil {
		l = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	r := &RedisQueue{
		l:      l,
		cfg:    cfg,
		client: client,
		prefix: "cardsignals:queue",
		newID:  uuid.NewString,
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds jobs keyed by their type. A second job for a type is ignored.
func (r *RedisQueue) Register(jobs ...Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range jobs {
		if _, exists := r.jobs[j.Type()]; exists {
			r.l.Warn("job already registered", logger.String("type", j.Type()))
			continue
		}
		r.jobs[j.Type()] = j
		r.l.Info("job registered", logger.String("job", j.Name()), logger.String("type", j.Type()))
	}
}

// Start launches the workers and the retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.running = true

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)

	r.l.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.String("prefix", r.prefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop queue: %w", ctx.Err())
	}
}

// Enqueue pushes a message and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: r.newID(), Type: msgType, Payload: raw, EnqueuedAt: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.cfg.PollTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.l.Error("brpop failed", logger.Int("worker_id", id), logger.Error(err))
			_ = resilience.Sleep(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.l.Error("dropping undecodable message", logger.Error(err))
			continue
		}
		r.process(ctx, msg)
	}
}

func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job for message type", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(ctx, msg)
		return
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		r.l.Debug("job done", logger.String("job", job.Name()), logger.String("id", msg.ID), logger.Duration("duration_ms", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		r.l.Warn("job cancelled", logger.String("job", job.Name()), logger.String("id", msg.ID))
		return
	}
	r.fail(ctx, msg, job, err)
}

func (r *RedisQueue) fail(ctx context.Context, msg Message, job Job, err error) {
	msg.Attempts++
	msg.LastError = err.Error()
	r.l.Error("job failed",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))

	if msg.Attempts > r.cfg.RetryLimit {
		r.deadLetter(ctx, msg)
		return
	}
	at := r.now().Add(resilience.Backoff(r.cfg.RetryDelay, 16*r.cfg.RetryDelay, msg.Attempts))
	data, mErr := json.Marshal(msg)
	if mErr != nil {
		r.l.Error("marshal retry", logger.Error(mErr))
		return
	}
	if zErr := r.client.ZAdd(context.WithoutCancel(ctx), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); zErr != nil {
		r.l.Error("schedule retry", logger.Error(zErr))
	}
}

func (r *RedisQueue) deadLetter(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.WithoutCancel(ctx), r.deadLetterKey(), data).Err(); err != nil {
		r.l.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.MoveDue(ctx); err != nil && ctx.Err() == nil {
				r.l.Error("move due retries", logger.Error(err))
			}
		}
	}
}

// MoveDue moves retries whose time has come back onto the main list.
func (r *RedisQueue) MoveDue(ctx context.Context) (int, error) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}
	moved := 0
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, fmt.Errorf("requeue: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (r *RedisQueue) queueKey() string      { return r.prefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.prefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.prefix + ":dlq" }

var _ Enqueuer = (*RedisQueue)(nil)
