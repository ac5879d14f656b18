// internal/common/llm/structured.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"astro-backend-llm/internal/common/validation"
)

const (
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"

	DefaultMaxAttempts = 3
)

var ErrSchemaValidation = errors.New("no schema-conforming answer")

// Validator is implemented by extraction targets that carry their own invariants.
type Validator interface {
	Validate() error
}

type ExtractionRequest struct {
	Model          string
	Instructions   string
	Content        string
	Temperature    float64
	Schema         *validation.Schema
	ResponseFormat string
}

// AttemptError describes why one extraction attempt was rejected.
type AttemptError struct {
	Attempt int
	Reason  string
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d: %s", e.Attempt, e.Reason)
}

// StructuredClient extracts schema-conforming JSON records from a chat model, feeding
// validation failures back to the model until an answer passes or attempts run out.
type StructuredClient struct {
	client      *Client
	maxAttempts int
}

func NewStructuredClient(client *Client, maxAttempts int) *StructuredClient {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &StructuredClient{client: client, maxAttempts: maxAttempts}
}

func (s *StructuredClient) MaxAttempts() int { return s.maxAttempts }

// Extract fills out (a non-nil pointer) and returns the number of attempts used.
// Provider or transport failures end extraction immediately with ErrRequestFailed; exhausting
// every attempt yields ErrSchemaValidation wrapping the last rejection.
func (s *StructuredClient) Extract(ctx context.Context, req ExtractionRequest, out Validator) (int, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, fmt.Errorf("extract: out must be a non-nil pointer, got %T", out)
	}
	if req.Schema == nil {
		return 0, errors.New("extract: schema is required")
	}

	messages := []Message{
		{Role: RoleSystem, Content: systemPrompt(req)},
		{Role: RoleUser, Content: req.Content},
	}
	format := responseFormat(req)
	temperature := req.Temperature

	var lastErr *AttemptError
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, ChatRequest{
			Model:          req.Model,
			Messages:       messages,
			Temperature:    &temperature,
			ResponseFormat: format,
		})
		if err != nil {
			return attempt, err
		}
		if len(resp.Choices) == 0 {
			return attempt, fmt.Errorf("%w: %w", ErrRequestFailed, ErrNoChoices)
		}

		answer := resp.Choices[0].Message.Content
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))

		reason := check(req.Schema, answer, out)
		if reason == "" {
			return attempt, nil
		}

		lastErr = &AttemptError{Attempt: attempt, Reason: reason}
		messages = append(messages,
			Message{Role: RoleAssistant, Content: answer},
			Message{Role: RoleUser, Content: correctionPrompt(reason)},
		)
	}

	rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
	return s.maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrSchemaValidation, s.maxAttempts, lastErr)
}

// check returns an empty string when answer conforms to schema and out's own invariants.
func check(schema *validation.Schema, answer string, out Validator) string {
	doc := []byte(stripCodeFence(answer))

	if result := schema.ValidateJSON(doc); !result.Valid {
		return strings.Join(result.GetErrorMessages(), "; ")
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Sprintf("decode: %v", err)
	}
	if err := out.Validate(); err != nil {
		return err.Error()
	}
	return ""
}

func responseFormat(req ExtractionRequest) *ResponseFormat {
	if req.ResponseFormat == FormatJSONSchema {
		return &ResponseFormat{
			Type: FormatJSONSchema,
			JSONSchema: &JSONSchemaFormat{
				Name:   req.Schema.Name(),
				Schema: req.Schema.Raw(),
			},
		}
	}
	return &ResponseFormat{Type: FormatJSONObject}
}

func systemPrompt(req ExtractionRequest) string {
	var b strings.Builder
	if req.Instructions != "" {
		b.WriteString(req.Instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object and nothing else.")
	if req.ResponseFormat != FormatJSONSchema {
		b.WriteString(" The object must conform to this JSON schema:\n")
		b.Write(req.Schema.Raw())
	}
	return b.String()
}

func correctionPrompt(reason string) string {
	return "Your previous answer was rejected: " + reason +
		"\nReturn a corrected JSON object that satisfies every constraint."
}

// stripCodeFence removes a surrounding markdown code fence some models add despite JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
