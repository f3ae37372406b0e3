package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockClassifier is a mock implementation of Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, question string) (bool, error) {
	args := m.Called(ctx, question)
	return args.Bool(0), args.Error(1)
}

func TestCueClassifier(t *testing.T) {
	c := NewCueClassifier()
	tests := []struct {
		question string
		want     bool
	}{
		{"what's the weather today?", false},
		{"what happened on my trip to Sylhet in the story I wrote?", true},
		{"tell me about my story", true},
		{"Summarise the PDF I uploaded", true},
		{"who wrote the first novel in Bangla?", false},
		{"my favourite colour is blue", false},
		{"In our diary, what did we say about Dhaka?", true},
		{"I’m looking for the poem from last winter", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.question)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_ScenarioQuestions(t *testing.T) {
	r := New(NewCueClassifier(), time.Second, nil)

	assert.False(t, r.Classify(context.Background(), "what's the weather today?"))
	assert.True(t, r.Classify(context.Background(), "what happened on my trip to Sylhet in the story I wrote?"))
}

func TestRouter_ClassifierErrorFailsClosed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := new(MockClassifier)
	classErr := errors.New("upstream 500")
	m.On("Classify", mock.Anything, "tell me about my story").Return(true, classErr)

	r := New(m, time.Second, logger.NewWithCore(core))
	d := r.Route(context.Background(), "tell me about my story")

	assert.False(t, d.Personal)
	assert.ErrorIs(t, d.Err, classErr)
	assert.Equal(t, 1, logs.FilterMessage("classifier failed, treating question as general").Len())
	m.AssertExpectations(t)
}

func TestRouter_TimeoutFailsClosed(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := ClassifierFunc(func(ctx context.Context, question string) (bool, error) {
		// Ignores ctx on purpose.
		<-release
		return true, nil
	})

	r := New(slow, 20*time.Millisecond, nil)
	started := time.Now()
	d := r.Route(context.Background(), "tell me about my story")

	assert.False(t, d.Personal)
	assert.ErrorIs(t, d.Err, domain.ErrClassifierTimeout)
	assert.Less(t, time.Since(started), time.Second)
}

func TestRouter_CallerDeadlineShorterThanTimeout(t *testing.T) {
	slow := ClassifierFunc(func(ctx context.Context, question string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	r := New(slow, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, r.Classify(ctx, "my story"))
}

func TestRouter_PanicFailsClosed(t *testing.T) {
	r := New(ClassifierFunc(func(ctx context.Context, question string) (bool, error) {
		panic("boom")
	}), time.Second, nil)

	d := r.Route(context.Background(), "my story")
	assert.False(t, d.Personal)
	assert.Error(t, d.Err)
}

func TestNew_DefaultTimeout(t *testing.T) {
	r := New(NewCueClassifier(), 0, nil)
	assert.Equal(t, DefaultTimeout, r.timeout)
}
