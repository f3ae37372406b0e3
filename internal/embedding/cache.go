package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "storyrag:emb"

// Cache stores raw model output keyed by model and text. A miss returns
// (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// CachingLoader wraps a Loader so the loaded model reads through cache.
// Cache failures never fail an embedding call; they are logged and the
// model is asked directly.
type CachingLoader struct {
	inner Loader
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachingLoader creates a CachingLoader with an explicit entry TTL.
func NewCachingLoader(inner Loader, cache Cache, ttl time.Duration, log *logger.Logger) *CachingLoader {
	return &CachingLoader{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger.OrNop(log).With("component", "embedding_cache"),
	}
}

func (l *CachingLoader) Load(ctx context.Context) (Model, error) {
	m, err := l.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedModel{Model: m, cache: l.cache, ttl: l.ttl, log: l.log}, nil
}

type cachedModel struct {
	Model
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

func (m *cachedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		vec, ok, err := m.cache.Get(ctx, CacheKey(m.Name(), m.Dimensions(), t))
		if err != nil {
			m.log.Warn("embedding cache read failed", "error", err)
		}
		if ok && len(vec) == m.Dimensions() {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := m.Model.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("model %s returned %d vectors for %d texts", m.Name(), len(vecs), len(missTexts))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := m.cache.Set(ctx, CacheKey(m.Name(), m.Dimensions(), missTexts[j]), vecs[j], m.ttl); err != nil {
			m.log.Warn("embedding cache write failed", "error", err)
		}
	}

	return out, nil
}

// CacheKey builds the cache key for text under a model. The text length is
// part of the key next to its hash.
func CacheKey(model string, dims int, text string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%016x", cacheKeyPrefix, model, dims, len(text), xxhash.Sum64String(text))
}

// RedisCache is a Cache backed by Redis string values.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a RedisCache and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := DecodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, EncodeVector(vec), ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// EncodeVector packs vec as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
