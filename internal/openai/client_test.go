package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockChatAPI is a mock for chat completions
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func testClient(api EmbeddingAPI) *Client {
	return &Client{api: api, model: "test-model", dimensions: DefaultEmbeddingDimensions, hasKey: true}
}

func vectorOf(n int, scale float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) * scale
	}
	return v
}

func TestClient_Embed_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	ctx := context.Background()
	texts := []string{"My grandmother's house in Sylhet.", "The monsoon came early."}
	expected := [][]float32{vectorOf(1536, 0.001), vectorOf(1536, 0.002)}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(expected, nil)

	vecs, err := client.Embed(ctx, texts)

	assert.NoError(t, err)
	assert.Equal(t, expected, vecs)
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	ctx := context.Background()
	texts := []string{"Test text"}
	apiErr := errors.New("API rate limit exceeded")

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(nil, apiErr)

	vecs, err := client.Embed(ctx, texts)

	assert.Error(t, err)
	assert.Nil(t, vecs)
	assert.Contains(t, err.Error(), "failed to create embedding")
	assert.ErrorIs(t, err, apiErr)
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	ctx := context.Background()
	texts := []string{"Test text"}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return([][]float32{make([]float32, 512)}, nil)

	vecs, err := client.Embed(ctx, texts)

	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	mockAPI.AssertExpectations(t)
}

func TestClient_Load_ProbesOnce(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{probeText}).Return([][]float32{vectorOf(1536, 0.001)}, nil).Once()

	model, err := client.Load(context.Background())

	require.NoError(t, err)
	assert.Same(t, client, model)
	assert.Equal(t, 1536, model.Dimensions())
	assert.Equal(t, "test-model", model.Name())
	mockAPI.AssertExpectations(t)
}

func TestClient_Load_ProbeFails(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{probeText}).Return([][]float32{make([]float32, 3)}, nil)

	model, err := client.Load(context.Background())

	assert.Nil(t, model)
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestClient_Load_NoAPIKey(t *testing.T) {
	client := NewClient("")

	model, err := client.Load(context.Background())

	assert.Nil(t, model)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key"})

	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, string(DefaultEmbeddingModel), client.Name())
}

func TestNewClientWithConfig_BaseURLWithoutKey(t *testing.T) {
	client := NewClientWithConfig(Config{BaseURL: "http://localhost:11434/v1", EmbeddingDimensions: 768})

	assert.True(t, client.hasKey)
	assert.Equal(t, 768, client.Dimensions())
}

func TestChatClassifier_Classify(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    bool
		wantErr bool
	}{
		{name: "yes", answer: "YES", want: true},
		{name: "yes lowercase with period", answer: " yes.", want: true},
		{name: "quoted yes", answer: "\"Yes\"", want: true},
		{name: "no", answer: "NO", want: false},
		{name: "no with newline", answer: "No\n", want: false},
		{name: "rambling", answer: "It depends on the user", wantErr: true},
		{name: "empty", answer: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockChatAPI)
			c := &ChatClassifier{api: mockAPI}
			mockAPI.On("Complete", mock.Anything, classifierPrompt, "what happened on my trip?").Return(tt.answer, nil)

			got, err := c.Classify(context.Background(), "what happened on my trip?")

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseableAnswer)
				assert.False(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatClassifier_APIError(t *testing.T) {
	mockAPI := new(MockChatAPI)
	c := &ChatClassifier{api: mockAPI}
	apiErr := errors.New("503 service unavailable")
	mockAPI.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", apiErr)

	got, err := c.Classify(context.Background(), "what's the weather like today?")

	assert.False(t, got)
	assert.ErrorIs(t, err, apiErr)
	assert.Contains(t, err.Error(), "failed to classify question")
}

func TestNewChatClassifier_DefaultModel(t *testing.T) {
	c := NewChatClassifier(ClassifierConfig{APIKey: "k", BaseURL: "https://api.groq.com/openai/v1"})

	adapter, ok := c.api.(*chatAdapter)
	require.True(t, ok)
	assert.Equal(t, DefaultClassifierModel, adapter.model)
}
