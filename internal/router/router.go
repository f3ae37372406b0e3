// Package router decides whether a question should be answered from the
// asker's own documents.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
)

const DefaultTimeout = 3 * time.Second

// Classifier reports whether a question is about the asker's own documents.
type Classifier interface {
	Classify(ctx context.Context, question string) (bool, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, question string) (bool, error)

func (f ClassifierFunc) Classify(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Decision is the outcome of routing one question. Err is set when the
// classifier failed or timed out; Personal is then false.
type Decision struct {
	Personal bool
	Err      error
	Elapsed  time.Duration
}

type Router struct {
	classifier Classifier
	timeout    time.Duration
	log        *logger.Logger
}

func New(classifier Classifier, timeout time.Duration, log *logger.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{
		classifier: classifier,
		timeout:    timeout,
		log:        logger.OrNop(log).With("component", "query_router"),
	}
}

// Classify reports whether question needs personal context. Any classifier
// error or timeout yields false.
func (r *Router) Classify(ctx context.Context, question string) bool {
	return r.Route(ctx, question).Personal
}

// Route classifies question and returns the full decision.
func (r *Router) Route(ctx context.Context, question string) Decision {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		personal bool
		err      error
	}
	// The send must not block once Route has returned.
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("classifier panic: %v", p)}
			}
		}()
		personal, err := r.classifier.Classify(ctx, question)
		ch <- result{personal: personal, err: err}
	}()

	var d Decision
	select {
	case res := <-ch:
		d = Decision{Personal: res.personal && res.err == nil, Err: res.err}
	case <-ctx.Done():
		d = Decision{Err: domain.ErrClassifierTimeout.Wrap(ctx.Err())}
	}
	d.Elapsed = time.Since(started)

	if d.Err != nil {
		r.log.Warn("classifier failed, treating question as general", "error", d.Err, "elapsed", d.Elapsed)
	} else {
		r.log.Debug("question classified", "personal", d.Personal, "elapsed", d.Elapsed)
	}
	return d
}
