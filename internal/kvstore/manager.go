package kvstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// SettingsProvider supplies the latest Redis settings snapshot.
type SettingsProvider func() RedisSettings

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

type redisConfig struct {
	addr     string
	password string
	prefix   string
	db       int
}

// Manager routes to Redis when enabled and healthy, and to the primary store otherwise.
type Manager struct {
	primary        Store
	provider       SettingsProvider
	nowFn          func() time.Time
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisStore   *RedisStore
	redisCfg     redisConfig
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(primary Store, provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if primary == nil {
		primary = NewMemoryStore(nowFn)
	}
	if provider == nil {
		provider = LoadRedisSettings
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		primary:        primary,
		provider:       provider,
		nowFn:          nowFn,
		newRedisClient: newRedisClient,
	}
}

// Get implements Store.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if store := m.redis(ctx); store != nil {
		value, err := store.Get(ctx, key)
		if err == nil || errors.Is(err, ErrNotFound) {
			return value, err
		}
		m.tripBreaker(err, m.nowFn())
	}
	return m.primary.Get(ctx, key)
}

// Set implements Store.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if store := m.redis(ctx); store != nil {
		errSet := store.Set(ctx, key, value, ttl)
		if errSet == nil {
			return nil
		}
		m.tripBreaker(errSet, m.nowFn())
	}
	return m.primary.Set(ctx, key, value, ttl)
}

// Delete implements Store.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if store := m.redis(ctx); store != nil {
		errDel := store.Delete(ctx, key)
		if errDel == nil {
			return m.primary.Delete(ctx, key)
		}
		m.tripBreaker(errDel, m.nowFn())
	}
	return m.primary.Delete(ctx, key)
}

// redis returns the Redis store when enabled and not tripped.
func (m *Manager) redis(ctx context.Context) *RedisStore {
	cfg := m.provider()
	if !cfg.Enabled {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	if m.isBreakerActive(now) {
		return nil
	}
	store, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil
	}
	return store
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("kvstore: redis unavailable, falling back to database")
}

func (m *Manager) ensureRedis(ctx context.Context, cfg RedisSettings) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("kvstore redis: missing address")
	}

	nextCfg := redisConfig{
		addr:     addr,
		password: strings.TrimSpace(cfg.Password),
		prefix:   strings.TrimSpace(cfg.Prefix),
		db:       cfg.DB,
	}
	if nextCfg.db < 0 {
		nextCfg.db = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisStore != nil && m.redisCfg == nextCfg {
		return m.redisStore, nil
	}
	if m.redisStore != nil {
		_ = m.redisStore.Close()
		m.redisStore = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     nextCfg.addr,
		Password: nextCfg.password,
		DB:       nextCfg.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisStore = NewRedisStore(client, nextCfg.prefix)
	m.redisCfg = nextCfg
	return m.redisStore, nil
}
