package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	getErr  error
	setErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]float32)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = vec
	return nil
}

func TestCachingLoader_EmbedsOnlyMisses(t *testing.T) {
	model := &MockModel{dims: 2}
	model.On("Embed", mock.Anything, []string{"a", "b"}).Return([][]float32{{1, 0}, {0, 1}}, nil).Once()
	model.On("Embed", mock.Anything, []string{"c"}).Return([][]float32{{1, 1}}, nil).Once()

	cache := newMemCache()
	loader := NewCachingLoader(LoaderFunc(func(ctx context.Context) (Model, error) { return model, nil }), cache, time.Hour, nil)
	m, err := loader.Load(context.Background())
	require.NoError(t, err)

	first, err := m.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, first)
	assert.Len(t, cache.entries, 2)

	second, err := m.Embed(context.Background(), []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {1, 0}}, second)

	model.AssertExpectations(t)
}

func TestCachingLoader_CacheErrorsFallThrough(t *testing.T) {
	model := &MockModel{dims: 2}
	model.On("Embed", mock.Anything, []string{"a"}).Return([][]float32{{1, 0}}, nil).Twice()

	cache := newMemCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")

	loader := NewCachingLoader(LoaderFunc(func(ctx context.Context) (Model, error) { return model, nil }), cache, time.Hour, nil)
	m, err := loader.Load(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := m.Embed(context.Background(), []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}}, out)
	}
	model.AssertExpectations(t)
}

func TestCachingLoader_IgnoresWrongLengthEntries(t *testing.T) {
	model := &MockModel{dims: 2}
	model.On("Embed", mock.Anything, []string{"a"}).Return([][]float32{{1, 0}}, nil).Once()

	cache := newMemCache()
	cache.entries[CacheKey("mock", 2, "a")] = []float32{1, 2, 3}

	loader := NewCachingLoader(LoaderFunc(func(ctx context.Context) (Model, error) { return model, nil }), cache, time.Hour, nil)
	m, err := loader.Load(context.Background())
	require.NoError(t, err)

	out, err := m.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, out)
}

func TestCachingLoader_PropagatesLoadError(t *testing.T) {
	loadErr := errors.New("no weights")
	loader := NewCachingLoader(LoaderFunc(func(ctx context.Context) (Model, error) { return nil, loadErr }), newMemCache(), time.Hour, nil)
	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, loadErr)
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("hashing-v1", 1536, "hello")
	k2 := CacheKey("hashing-v1", 1536, "hello")
	k3 := CacheKey("hashing-v1", 768, "hello")
	k4 := CacheKey("hashing-v1", 1536, "hello!")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.Contains(t, k1, "storyrag:emb:hashing-v1:1536:5:")
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.25, -1.5, 3e-7}
	got, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
