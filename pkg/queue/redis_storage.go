package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/redis"
)

// claimScript returns expired locks to the pending set, then moves the
// earliest due task from pending to processing.
//
// KEYS: pending, processing. ARGV: now ms, lock deadline ms.
var claimScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

// RedisStorage is the durable queue backend. Due tasks sit in a sorted set
// per queue scored by due time; claimed tasks move to a processing set
// scored by lock deadline and return to pending when the lock lapses.
// Exhausted tasks are pushed to a dead-letter list.
//
// While the cache is unavailable ClaimTask finds nothing and every write
// returns redis.ErrUnavailable.
type RedisStorage struct {
	cache redis.Provider
	cfg   Config
	now   func() time.Time
}

// NewRedisStorage creates the storage.
func NewRedisStorage(cache redis.Provider, cfg Config) *RedisStorage {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	return &RedisStorage{cache: cache, cfg: cfg, now: time.Now}
}

func (s *RedisStorage) taskKey(id uuid.UUID) string   { return s.cfg.Prefix + "task:" + id.String() }
func (s *RedisStorage) pendingKey(q string) string    { return s.cfg.Prefix + q + ":pending" }
func (s *RedisStorage) processingKey(q string) string { return s.cfg.Prefix + q + ":processing" }
func (s *RedisStorage) periodicKey(n string) string   { return s.cfg.Prefix + "periodic:" + n }
func (s *RedisStorage) deadKey() string               { return s.cfg.Prefix + "dead" }

// CreateTask stores task as pending. A periodic task is skipped when one
// with the same name is already pending, so several schedulers can run.
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	c := s.cache.Get(ctx)
	if c == nil {
		return redis.ErrUnavailable
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	if task.TaskType == TaskTypePeriodic {
		ok, err := c.SetNX(ctx, s.periodicKey(task.TaskName), task.ID.String(), 0).Result()
		if err != nil {
			return s.cache.Report(ctx, err)
		}
		if !ok {
			return nil
		}
	}

	_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.taskKey(task.ID), data, 0)
		p.ZAdd(ctx, s.pendingKey(task.Queue), goredis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: task.ID.String(),
		})
		return nil
	})
	return s.cache.Report(ctx, err)
}

// GetPendingTaskByName returns the pending periodic task called name.
func (s *RedisStorage) GetPendingTaskByName(ctx context.Context, name string) (*Task, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, redis.ErrUnavailable
	}

	raw, err := c.Get(ctx, s.periodicKey(name)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return s.load(ctx, c, id)
}

// ClaimTask locks the earliest due task of the first queue that has one.
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, ErrNoTaskToClaim
	}

	now := s.now()
	for _, q := range queues {
		raw, err := claimScript.Run(ctx, c,
			[]string{s.pendingKey(q), s.processingKey(q)},
			now.UnixMilli(), now.Add(lock).UnixMilli(),
		).Text()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, s.cache.Report(ctx, err)
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			_ = c.ZRem(ctx, s.processingKey(q), raw).Err()
			continue
		}
		task, err := s.load(ctx, c, id)
		if errors.Is(err, ErrTaskNotFound) {
			_ = c.ZRem(ctx, s.processingKey(q), raw).Err()
			continue
		}
		if err != nil {
			return nil, err
		}

		task.Status = TaskStatusProcessing
		task.LockedBy = &workerID
		if err := s.save(ctx, c, task); err != nil {
			return nil, err
		}
		return task, nil
	}

	return nil, ErrNoTaskToClaim
}

// CompleteTask removes a processed task.
func (s *RedisStorage) CompleteTask(ctx context.Context, id uuid.UUID) error {
	c := s.cache.Get(ctx)
	if c == nil {
		return redis.ErrUnavailable
	}
	task, err := s.load(ctx, c, id)
	if err != nil {
		return err
	}

	_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZRem(ctx, s.processingKey(task.Queue), id.String())
		p.Del(ctx, s.taskKey(id))
		if task.TaskType == TaskTypePeriodic {
			p.Del(ctx, s.periodicKey(task.TaskName))
		}
		return nil
	})
	return s.cache.Report(ctx, err)
}

// FailTask records a failed attempt. A task with retries left goes back to
// pending after the configured backoff; an exhausted one is marked failed
// and left for MoveToDLQ.
func (s *RedisStorage) FailTask(ctx context.Context, id uuid.UUID, errMsg string) (*Task, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, redis.ErrUnavailable
	}
	task, err := s.load(ctx, c, id)
	if err != nil {
		return nil, err
	}

	task.RetryCount++
	task.Error = errMsg
	task.LockedBy = nil

	data := func() ([]byte, error) { return json.Marshal(task) }

	if task.Exhausted() {
		task.Status = TaskStatusFailed
		b, err := data()
		if err != nil {
			return nil, err
		}
		_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, s.taskKey(id), b, 0)
			p.ZRem(ctx, s.processingKey(task.Queue), id.String())
			return nil
		})
		return task, s.cache.Report(ctx, err)
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = s.now().Add(s.cfg.RetryDelay(task.RetryCount))
	b, err := data()
	if err != nil {
		return nil, err
	}
	_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.taskKey(id), b, 0)
		p.ZRem(ctx, s.processingKey(task.Queue), id.String())
		p.ZAdd(ctx, s.pendingKey(task.Queue), goredis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: id.String(),
		})
		return nil
	})
	return task, s.cache.Report(ctx, err)
}

// MoveToDLQ moves a task to the dead-letter list.
func (s *RedisStorage) MoveToDLQ(ctx context.Context, id uuid.UUID) error {
	c := s.cache.Get(ctx)
	if c == nil {
		return redis.ErrUnavailable
	}
	task, err := s.load(ctx, c, id)
	if err != nil {
		return err
	}

	dl := DeadLetter{ID: uuid.New(), Task: *task, Error: task.Error, FailedAt: s.now()}
	data, err := json.Marshal(dl)
	if err != nil {
		return err
	}

	_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LPush(ctx, s.deadKey(), data)
		p.ZRem(ctx, s.pendingKey(task.Queue), id.String())
		p.ZRem(ctx, s.processingKey(task.Queue), id.String())
		p.Del(ctx, s.taskKey(id))
		if task.TaskType == TaskTypePeriodic {
			p.Del(ctx, s.periodicKey(task.TaskName))
		}
		return nil
	})
	return s.cache.Report(ctx, err)
}

// ExtendLock pushes the lock deadline of a processing task.
func (s *RedisStorage) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	c := s.cache.Get(ctx)
	if c == nil {
		return redis.ErrUnavailable
	}
	task, err := s.load(ctx, c, id)
	if err != nil {
		return err
	}
	err = c.ZAddXX(ctx, s.processingKey(task.Queue), goredis.Z{
		Score:  float64(s.now().Add(d).UnixMilli()),
		Member: id.String(),
	}).Err()
	return s.cache.Report(ctx, err)
}

// DeadLetters returns up to limit dead-lettered tasks, newest first.
func (s *RedisStorage) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, redis.ErrUnavailable
	}
	if limit <= 0 {
		limit = 100
	}

	raws, err := c.LRange(ctx, s.deadKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}

	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Requeue moves a dead letter back to its queue as a new task with a fresh
// retry budget.
func (s *RedisStorage) Requeue(ctx context.Context, deadLetterID uuid.UUID) (*Task, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, redis.ErrUnavailable
	}

	raws, err := c.LRange(ctx, s.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}

	for _, raw := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil || dl.ID != deadLetterID {
			continue
		}

		removed, err := c.LRem(ctx, s.deadKey(), 1, raw).Result()
		if err != nil {
			return nil, s.cache.Report(ctx, err)
		}
		if removed == 0 {
			break
		}

		task := dl.Task
		task.ID = uuid.New()
		task.Status = TaskStatusPending
		task.RetryCount = 0
		task.Error = ""
		task.LockedBy = nil
		task.ScheduledAt = s.now()
		if err := s.CreateTask(ctx, &task); err != nil {
			return nil, err
		}
		return &task, nil
	}

	return nil, ErrTaskNotFound
}

// Pending returns the number of tasks waiting in queue.
func (s *RedisStorage) Pending(ctx context.Context, queue string) (int64, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return 0, redis.ErrUnavailable
	}
	n, err := c.ZCard(ctx, s.pendingKey(queue)).Result()
	return n, s.cache.Report(ctx, err)
}

func (s *RedisStorage) load(ctx context.Context, c goredis.UniversalClient, id uuid.UUID) (*Task, error) {
	data, err := c.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *RedisStorage) save(ctx context.Context, c goredis.UniversalClient, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.cache.Report(ctx, c.Set(ctx, s.taskKey(task.ID), data, 0).Err())
}

// ParseTaskID parses a task or dead-letter id.
func ParseTaskID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Join(ErrTaskNotFound, err)
	}
	return id, nil
}

