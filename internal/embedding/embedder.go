package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultInitTimeout = 2 * time.Minute
	DefaultCallTimeout = 30 * time.Second

	initKey = "init"
)

// State is the lifecycle state of an Embedder.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Config controls Embedder timeouts.
type Config struct {
	// InitTimeout bounds the model load, independent of any caller.
	InitTimeout time.Duration
	// CallTimeout bounds an inference call when the caller set no deadline.
	CallTimeout time.Duration
}

// DefaultConfig returns the default Embedder configuration.
func DefaultConfig() Config {
	return Config{
		InitTimeout: DefaultInitTimeout,
		CallTimeout: DefaultCallTimeout,
	}
}

// Embedder owns the embedding model for the whole process. The model is
// loaded at most once; concurrent first callers share a single load and
// observe the same outcome. A failed load is sticky until Reset.
type Embedder struct {
	loader Loader
	cfg    Config
	log    *logger.Logger

	group singleflight.Group

	mu      sync.RWMutex
	model   Model
	initErr error
}

// New creates an Embedder that loads its model through loader on first use.
func New(loader Loader, cfg Config, log *logger.Logger) *Embedder {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Embedder{
		loader: loader,
		cfg:    cfg,
		log:    logger.OrNop(log).With("component", "embedder"),
	}
}

// State reports where the Embedder is in its lifecycle.
func (e *Embedder) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.model != nil:
		return StateReady
	case e.initErr != nil:
		return StateFailed
	default:
		return StateUninitialized
	}
}

// IsReady reports whether the model is loaded.
func (e *Embedder) IsReady() bool {
	return e.State() == StateReady
}

// Dimensions returns the model's vector length, or 0 before initialization.
func (e *Embedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return 0
	}
	return e.model.Dimensions()
}

// ModelName returns the loaded model's name, or "" before initialization.
func (e *Embedder) ModelName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return ""
	}
	return e.model.Name()
}

// Init loads the model if needed. The caller's context only bounds how long
// it waits; the load itself runs detached, limited by InitTimeout.
func (e *Embedder) Init(ctx context.Context) error {
	if _, done, err := e.loaded(); done {
		return err
	}

	ch := e.group.DoChan(initKey, func() (interface{}, error) {
		if m, done, err := e.loaded(); done {
			return m, err
		}
		return e.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return domain.FromContextError(ctx.Err())
	}
}

// Reset clears a failed initialization so the next call retries the load.
// A loaded model is kept.
func (e *Embedder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil && e.initErr != nil {
		e.log.Info("clearing failed model initialization")
		e.initErr = nil
	}
}

func (e *Embedder) loaded() (Model, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model != nil {
		return e.model, true, nil
	}
	if e.initErr != nil {
		return nil, true, e.initErr
	}
	return nil, false, nil
}

func (e *Embedder) load(ctx context.Context) (Model, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.InitTimeout)
	defer cancel()

	started := time.Now()
	e.log.Info("loading embedding model")

	m, err := e.loader.Load(ctx)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	if err == nil && m.Dimensions() <= 0 {
		err = fmt.Errorf("model %s reports %d dimensions", m.Name(), m.Dimensions())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.initErr = domain.ErrModelUnavailable.Wrap(domain.FromContextError(err))
		e.log.Error("embedding model failed to load", "error", err, "elapsed", time.Since(started))
		return nil, e.initErr
	}
	e.model = m
	e.log.Info("embedding model ready", "model", m.Name(), "dimensions", m.Dimensions(), "elapsed", time.Since(started))
	return m, nil
}

// Embed returns the unit-normalized vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one call. Output order matches input order and
// each vector equals what Embed returns for the same text.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.ErrInvalidInput.Wrap(fmt.Errorf("text %d is empty", i))
		}
	}

	if err := e.Init(ctx); err != nil {
		return nil, err
	}
	m, _, _ := e.loaded()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	vecs, err := m.Embed(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.FromContextError(ctxErr)
		}
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("model %s returned %d vectors for %d texts", m.Name(), len(vecs), len(texts))
	}

	dims := m.Dimensions()
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != dims {
			return nil, domain.ErrDimensionMismatch.Wrap(fmt.Errorf("text %d: got %d, want %d", i, len(v), dims))
		}
		cp := make([]float32, len(v))
		copy(cp, v)
		if err := Normalize(cp); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = cp
	}

	return out, nil
}
