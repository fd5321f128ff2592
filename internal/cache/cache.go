// Package cache provides Redis-based caching with graceful degradation.
// When Redis is unavailable, operations return ErrUnavailable and callers
// fall back to whatever local copy they hold.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned when Redis is down or the circuit is open.
var ErrUnavailable = errors.New("cache unavailable")

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// Service wraps a Redis client behind a small circuit breaker: after a few
// consecutive failures the cache reports unhealthy and stops issuing calls
// until the next successful ping.
type Service struct {
	client *redis.Client
	log    zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastProbe    time.Time

	maxFailures   int
	probeInterval time.Duration
}

// New connects to Redis. A failed initial connection is not fatal; the
// service starts degraded and recovers when Redis comes back.
func New(cfg Config, logger zerolog.Logger) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		log:           logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		probeInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.log.Warn().Err(err).Msg("initial Redis connection failed, starting degraded")
		return s
	}

	s.healthy = true
	s.log.Info().Str("address", cfg.Address).Msg("Redis connected")
	return s
}

// IsHealthy reports whether Redis is currently usable.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// Ping probes Redis and restores the healthy flag on success.
func (s *Service) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return nil
}

// usable reports whether a call should be issued. While unhealthy, one
// probing call is let through every probeInterval so the service can
// recover without an external pinger.
func (s *Service) usable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthy {
		return true
	}
	if time.Since(s.lastProbe) >= s.probeInterval {
		s.lastProbe = time.Now()
		return true
	}
	return false
}

// GetJSON reads key and unmarshals it into dest.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !s.usable() {
		return ErrUnavailable
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.recordSuccess()
		return ErrMiss
	}
	if err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return json.Unmarshal(raw, dest)
}

// SetJSON marshals value and writes it under key. A zero TTL stores the key
// without expiry.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.usable() {
		return ErrUnavailable
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return nil
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	return s.client.Close()
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.log.Warn().Int("failures", s.failureCount).Msg("Redis marked unhealthy")
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		s.log.Info().Msg("Redis recovered")
	}
	s.failureCount = 0
	s.healthy = true
}
