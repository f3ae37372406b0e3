package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultClassifierModel is served by Groq's OpenAI-compatible endpoint.
const DefaultClassifierModel = "llama-3.3-70b-versatile"

const classifierPrompt = `You decide whether a question should be answered from the user's own stored writing (stories, diaries, notes, uploaded documents) or from general knowledge.
Answer with exactly one word: YES if the question is about the user's own documents or experiences described in them, NO otherwise.`

// ErrUnparseableAnswer is returned when the model answers with neither YES nor NO.
var ErrUnparseableAnswer = errors.New("classifier answer is neither YES nor NO")

// ChatAPI sends one system and one user message and returns the reply text.
type ChatAPI interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type chatAdapter struct {
	client *openai.Client
	model  string
}

func (a *chatAdapter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		// A literal 0 is dropped by omitempty.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type ClassifierConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatClassifier asks a chat model whether a question needs personal context.
type ChatClassifier struct {
	api ChatAPI
}

// NewChatClassifier creates a classifier against any OpenAI-compatible endpoint.
func NewChatClassifier(cfg ClassifierConfig) *ChatClassifier {
	model := cfg.Model
	if model == "" {
		model = DefaultClassifierModel
	}
	return &ChatClassifier{
		api: &chatAdapter{client: newAPIClient(cfg.APIKey, cfg.BaseURL), model: model},
	}
}

// Classify reports true when the model answers YES.
func (c *ChatClassifier) Classify(ctx context.Context, question string) (bool, error) {
	answer, err := c.api.Complete(ctx, classifierPrompt, question)
	if err != nil {
		return false, fmt.Errorf("failed to classify question: %w", err)
	}
	return parseAnswer(answer)
}

func parseAnswer(answer string) (bool, error) {
	a := strings.ToUpper(strings.TrimSpace(answer))
	a = strings.TrimLeft(a, "\"'`*")
	switch {
	case strings.HasPrefix(a, "YES"):
		return true, nil
	case strings.HasPrefix(a, "NO"):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnparseableAnswer, answer)
	}
}
