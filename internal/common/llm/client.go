// internal/common/llm/client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apphttp "astro-backend-llm/internal/common/http"
)

const chatCompletionsPath = "/chat/completions"

var (
	ErrNoChoices     = errors.New("completion returned no choices")
	ErrRequestFailed = errors.New("completion request failed")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type JSONSchemaFormat struct {
	Name   string      `json:"name"`
	Schema interface{} `json:"schema"`
	Strict bool        `json:"strict,omitempty"`
}

type ResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// APIError is the provider's error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint. Safe for concurrent use.
type Client struct {
	http *apphttp.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		http: apphttp.NewClient(apphttp.ClientOptions{
			BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
			AuthToken: cfg.APIKey,
			Timeout:   cfg.Timeout,
			UserAgent: "astro-backend-llm",
		}),
	}
}

func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var (
		out      ChatResponse
		envelope errorEnvelope
	)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&envelope).
		Post(chatCompletionsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if resp.IsError() {
		apiErr := envelope.Error
		if apiErr == nil {
			apiErr = &APIError{Message: strings.TrimSpace(resp.String())}
		}
		apiErr.StatusCode = resp.StatusCode()
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, apiErr)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode())
	}
	return &out, nil
}

type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
}

// Complete sends prompt as a single user message and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	temperature := req.Temperature
	resp, err := c.CreateChatCompletion(ctx, ChatRequest{
		Model:       req.Model,
		Messages:    []Message{{Role: RoleUser, Content: req.Prompt}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
