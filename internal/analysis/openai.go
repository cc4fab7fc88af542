package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "You are a cybersecurity expert reviewing automated penetration test results. " +
	"Be concise, prioritise by risk and give concrete remediation steps."

var (
	// ErrDisabled is returned when no API key or endpoint is configured.
	ErrDisabled = errors.New("analysis client not configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("analysis client closed")
)

// Analyzer produces remediation text for scan evidence. Implementations are
// created once per pipeline and released with Close.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (string, error)
	Close() error
}

// OpenAIAnalyzer talks to the OpenAI chat completions API or any compatible
// endpoint, such as a local llama.cpp server.
type OpenAIAnalyzer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	inputTokens int
	timeout     time.Duration
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// NewOpenAIAnalyzer creates an analyzer. Without API key and base URL the
// analyzer is disabled and every Analyze call returns ErrDisabled.
func NewOpenAIAnalyzer(cfg config.AnalysisConfig, logger *zap.SugaredLogger) *OpenAIAnalyzer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &OpenAIAnalyzer{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		inputTokens: cfg.InputTokens,
		timeout:     config.Duration(cfg.Timeout, 60*time.Second),
		logger:      logger,
	}
	if a.model == "" {
		a.model = openai.GPT4oMini
	}

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return a
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	a.client = openai.NewClientWithConfig(clientCfg)
	return a
}

// IsEnabled returns whether the analyzer can make requests
func (a *OpenAIAnalyzer) IsEnabled() bool {
	return a.client != nil
}

// Analyze asks the model for prioritized fixes based on the assessment input.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, in Input) (string, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if !a.IsEnabled() {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := BuildPrompt(in, a.inputTokens)
	a.logger.Debugw("Requesting analysis", "model", a.model, "prompt_tokens_estimate", EstimateTokens(prompt))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   a.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return text, nil
}

// Close releases the analyzer. It is safe to call more than once.
func (a *OpenAIAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
