package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmarket-api/domain"
)

type backend interface {
	ListOpenTasks(ctx context.Context) ([]domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, upd domain.TaskUpdate, etag string) error
	GetLocation(ctx context.Context, userID string) (*domain.Location, error)
	UpsertLocation(ctx context.Context, userID string, loc domain.Location) error
}

// Cache wraps a Storage instance with Redis-backed caching for the open-task
// scan and saved locations. Task writes evict the scan; location writes
// evict that user's entry. Redis failures silently fall through to the
// backing storage.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) ListOpenTasks(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListOpenTasks(ctx)
	if err != nil {
		return nil, err
	}
	c.storeTasks(ctx, tasks)
	return tasks, nil
}

// InsertTask writes through and drops the open-task scan, which the new row
// would otherwise be missing from until expiry.
func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evictTasks(ctx)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, upd domain.TaskUpdate, etag string) error {
	if err := c.base.UpdateTask(ctx, upd, etag); err != nil {
		return err
	}
	c.evictTasks(ctx)
	return nil
}

func (c *Cache) GetLocation(ctx context.Context, userID string) (*domain.Location, error) {
	if loc, ok := c.loadLocationFromCache(ctx, userID); ok {
		return loc, nil
	}
	loc, err := c.base.GetLocation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loc != nil {
		c.storeLocation(ctx, userID, *loc)
	}
	return loc, nil
}

func (c *Cache) UpsertLocation(ctx context.Context, userID string, loc domain.Location) error {
	if err := c.base.UpsertLocation(ctx, userID, loc); err != nil {
		return err
	}
	if c.redis != nil {
		_ = c.redis.Del(ctx, locationCacheKey(userID)).Err()
	}
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, openTasksCacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, openTasksCacheKey()).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, openTasksCacheKey()).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, openTasksCacheKey(), data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, openTasksCacheKey()).Err()
}

func (c *Cache) loadLocationFromCache(ctx context.Context, userID string) (*domain.Location, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, locationCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, locationCacheKey(userID)).Err()
		}
		return nil, false
	}
	var loc domain.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		_ = c.redis.Del(ctx, locationCacheKey(userID)).Err()
		return nil, false
	}
	return &loc, true
}

func (c *Cache) storeLocation(ctx context.Context, userID string, loc domain.Location) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, locationCacheKey(userID), data, c.ttl).Err()
}

func openTasksCacheKey() string {
	return "tasks:open"
}

func locationCacheKey(userID string) string {
	return "location:" + userID
}
