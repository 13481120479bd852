// Package llm wraps the completion provider behind a strict request/response
// contract: free-text completions with empty-body temperature escalation, and
// structured JSON completions with a bounded repair-retry loop.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/metrics"
	"github.com/quality-agent/backend/pkg/circuitbreaker"
	"github.com/quality-agent/backend/pkg/logger"
	"github.com/quality-agent/backend/pkg/retry"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged prompt segment.
type Message struct {
	Role    string
	Content string
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	// Total attempts for the structured-JSON repair loop.
	StructuredAttempts int
	// Temperature escalation applied when the provider returns an empty body.
	TempStep    float32
	TempCeiling float32
}

type Client struct {
	client             *openai.Client
	model              string
	temperature        float32
	maxTokens          int
	timeout            time.Duration
	structuredAttempts int
	tempStep           float32
	tempCeiling        float32
	cb                 *circuitbreaker.CircuitBreaker
	retryConfig        retry.Config
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.StructuredAttempts == 0 {
		cfg.StructuredAttempts = 2
	}
	if cfg.TempStep == 0 {
		cfg.TempStep = 0.3
	}
	if cfg.TempCeiling == 0 {
		cfg.TempCeiling = 0.7
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized", zap.String("model", cfg.Model))

	return &Client{
		client:             openai.NewClientWithConfig(clientConfig),
		model:              cfg.Model,
		temperature:        cfg.Temperature,
		maxTokens:          cfg.MaxTokens,
		timeout:            cfg.Timeout,
		structuredAttempts: cfg.StructuredAttempts,
		tempStep:           cfg.TempStep,
		tempCeiling:        cfg.TempCeiling,
		cb:                 cb,
		retryConfig:        retryConfig,
	}
}

// Complete performs a free-text completion. An empty or whitespace-only body
// is retried with the temperature raised by tempStep, capped at tempCeiling.
func (c *Client) Complete(ctx context.Context, msgs []Message, temperature float32) (string, error) {
	temp := c.effectiveTemperature(temperature)

	var lastRaw string
	for attempt := 1; attempt <= c.structuredAttempts; attempt++ {
		raw, err := c.chat(ctx, msgs, temp)
		if err != nil {
			return "", &ProviderError{Op: "complete", Err: err}
		}

		body := strings.TrimSpace(raw)
		if body != "" {
			return body, nil
		}

		lastRaw = raw
		metrics.ProviderRetries.WithLabelValues("empty").Inc()
		temp = c.escalate(temp)
		logger.Warn("Empty completion, retrying with elevated temperature",
			zap.Int("attempt", attempt),
			zap.Float32("temperature", temp),
		)
	}

	return "", &ProviderError{Op: "complete", Raw: lastRaw, Err: ErrEmptyCompletion}
}

// CompleteStructured performs a completion that must yield a single JSON
// object, and decodes it into out. Malformed output appends one corrective
// instruction to the prompt and retries; empty output escalates temperature.
// Exhausting the attempt budget returns a *ProviderError carrying the last
// raw response for diagnostics.
func (c *Client) CompleteStructured(ctx context.Context, msgs []Message, temperature float32, out interface{}) error {
	temp := c.effectiveTemperature(temperature)
	prompt := make([]Message, len(msgs))
	copy(prompt, msgs)

	var lastRaw string
	var lastErr error

	for attempt := 1; attempt <= c.structuredAttempts; attempt++ {
		raw, err := c.chat(ctx, prompt, temp)
		if err != nil {
			return &ProviderError{Op: "complete_structured", Err: err}
		}

		body := strings.TrimSpace(raw)
		if body == "" {
			lastRaw = raw
			lastErr = ErrEmptyCompletion
			metrics.ProviderRetries.WithLabelValues("empty").Inc()
			temp = c.escalate(temp)
			continue
		}

		payload, err := parseStructured(body)
		if err != nil {
			lastRaw = raw
			lastErr = err
			metrics.ProviderRetries.WithLabelValues("malformed").Inc()
			prompt = append(prompt, correctiveMessage())
			logger.Warn("Malformed structured completion, retrying with corrective instruction",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		return decodePayload(payload, out)
	}

	return &ProviderError{Op: "complete_structured", Raw: lastRaw, Err: lastErr}
}

func (c *Client) chat(ctx context.Context, msgs []Message, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				content = ""
				return nil
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			metrics.ProviderTokens.WithLabelValues(c.model).Add(float64(resp.Usage.TotalTokens))

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return "", err
	}

	return content, nil
}

func (c *Client) effectiveTemperature(temperature float32) float32 {
	if temperature > 0 {
		return temperature
	}
	return c.temperature
}

func (c *Client) escalate(temp float32) float32 {
	temp += c.tempStep
	if temp > c.tempCeiling {
		temp = c.tempCeiling
	}
	return temp
}

func correctiveMessage() Message {
	return Message{
		Role: RoleUser,
		Content: "이전 응답이 올바른 JSON이 아니었습니다. JSON 객체만으로 다시 응답하세요. " +
			"설명 문장, 마크다운 코드 펜스, 닫는 괄호 앞의 후행 쉼표를 모두 금지합니다.",
	}
}
