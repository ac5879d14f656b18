package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-backend-llm/internal/common/validation"
)

// fakeProvider serves scripted chat completion answers and records every request.
type fakeProvider struct {
	mu       sync.Mutex
	requests []ChatRequest
	answers  []func(w http.ResponseWriter)
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	f.answers[idx](w)
}

func (f *fakeProvider) calls() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.requests...)
}

func answer(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResponse{
			ID:      "chatcmpl-1",
			Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: content}, FinishReason: "stop"}},
		})
	}
}

func noChoices() func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}
}

func providerError(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, answers ...func(w http.ResponseWriter)) (*Client, *fakeProvider) {
	provider := &fakeProvider{answers: answers}
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Timeout: 5 * time.Second}), provider
}

func TestClient_Complete(t *testing.T) {
	client, provider := newTestClient(t, answer("A marketplace for designers."))

	text, err := client.Complete(context.Background(), CompletionRequest{
		Model:       "llama-3.3-70b-versatile",
		Prompt:      "Plan: a marketplace",
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "A marketplace for designers.", text)

	calls := provider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "llama-3.3-70b-versatile", calls[0].Model)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, RoleUser, calls[0].Messages[0].Role)
	assert.Equal(t, "Plan: a marketplace", calls[0].Messages[0].Content)
	require.NotNil(t, calls[0].Temperature)
	assert.InDelta(t, 0.7, *calls[0].Temperature, 1e-9)
	assert.Nil(t, calls[0].ResponseFormat)
}

func TestClient_CompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		answer  func(w http.ResponseWriter)
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "no choices",
			answer:  noChoices(),
			wantErr: ErrNoChoices,
		},
		{
			name:    "provider error envelope",
			answer:  providerError(http.StatusTooManyRequests, `{"error":{"message":"rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`),
			wantErr: ErrRequestFailed,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
				assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
			},
		},
		{
			name: "unstructured server error",
			answer: func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			},
			wantErr: ErrRequestFailed,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Equal(t, "upstream down", apiErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.answer)
			_, err := client.Complete(context.Background(), CompletionRequest{Model: "m", Prompt: "p"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestClient_CompleteHonoursContext(t *testing.T) {
	slow := func(w http.ResponseWriter) {
		time.Sleep(500 * time.Millisecond)
		answer("late")(w)
	}
	client, _ := newTestClient(t, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, CompletionRequest{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrRequestFailed)
}

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (r *record) Validate() error {
	c := validation.NewChecker()
	c.Length("name", r.Name, 3, 20)
	return c.Err()
}

var recordSchema = validation.MustCompile("record", []byte(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "count"],
  "properties": {
    "name": {"type": "string"},
    "count": {"type": "integer", "minimum": 1}
  }
}`))

func extractionRequest(format string) ExtractionRequest {
	return ExtractionRequest{
		Model:          "parser-model",
		Instructions:   "Extract the record.",
		Content:        "widget, seven of them",
		Schema:         recordSchema,
		ResponseFormat: format,
	}
}

func TestStructuredClient_Extract(t *testing.T) {
	client, provider := newTestClient(t, answer(`{"name":"widget","count":7}`))
	sc := NewStructuredClient(client, 3)

	var out record
	attempts, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, record{Name: "widget", Count: 7}, out)

	calls := provider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "parser-model", calls[0].Model)
	require.NotNil(t, calls[0].ResponseFormat)
	assert.Equal(t, FormatJSONObject, calls[0].ResponseFormat.Type)
	assert.Contains(t, calls[0].Messages[0].Content, `"additionalProperties"`)
	assert.Equal(t, "widget, seven of them", calls[0].Messages[1].Content)
}

func TestStructuredClient_ExtractJSONSchemaMode(t *testing.T) {
	client, provider := newTestClient(t, answer("```json\n{\"name\":\"widget\",\"count\":7}\n```"))
	sc := NewStructuredClient(client, 3)

	var out record
	_, err := sc.Extract(context.Background(), extractionRequest(FormatJSONSchema), &out)
	require.NoError(t, err)
	assert.Equal(t, "widget", out.Name)

	calls := provider.calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].ResponseFormat.JSONSchema)
	assert.Equal(t, FormatJSONSchema, calls[0].ResponseFormat.Type)
	assert.Equal(t, "record", calls[0].ResponseFormat.JSONSchema.Name)
	assert.NotContains(t, calls[0].Messages[0].Content, `"additionalProperties"`)
}

func TestStructuredClient_ExtractRetriesWithFeedback(t *testing.T) {
	client, provider := newTestClient(t,
		answer(`{"name":"widget"}`),
		answer(`{"name":"ab","count":7}`),
		answer(`{"name":"widget","count":7}`),
	)
	sc := NewStructuredClient(client, 3)

	var out record
	attempts, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, record{Name: "widget", Count: 7}, out)

	calls := provider.calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[1].Messages, 4)
	assert.Equal(t, RoleAssistant, calls[1].Messages[2].Role)
	assert.Contains(t, calls[1].Messages[3].Content, "count")
	assert.Contains(t, calls[2].Messages[5].Content, "name")
}

func TestStructuredClient_ExtractExhaustsAttempts(t *testing.T) {
	client, provider := newTestClient(t, answer(`{"name":"widget","count":0}`))
	sc := NewStructuredClient(client, 2)

	out := record{Name: "stale", Count: 99}
	attempts, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)
	assert.Equal(t, 2, attempts)
	assert.Len(t, provider.calls(), 2)
	assert.Equal(t, record{}, out, "a rejected answer must not leak into out")

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, 2, attemptErr.Attempt)
}

func TestStructuredClient_DefaultAttempts(t *testing.T) {
	client, provider := newTestClient(t, answer(`{"name":"widget","count":0}`))
	sc := NewStructuredClient(client, 0)
	require.Equal(t, DefaultMaxAttempts, sc.MaxAttempts())

	var out record
	attempts, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	assert.ErrorIs(t, err, ErrSchemaValidation)
	assert.Equal(t, sc.MaxAttempts(), attempts)
	assert.Len(t, provider.calls(), DefaultMaxAttempts)
}

func TestStructuredClient_ExtractRejectsMalformedJSON(t *testing.T) {
	client, _ := newTestClient(t, answer(`not json at all`))
	sc := NewStructuredClient(client, 1)

	var out record
	_, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestStructuredClient_ExtractStopsOnTransportError(t *testing.T) {
	client, provider := newTestClient(t, providerError(http.StatusInternalServerError, `{"error":{"message":"boom"}}`))
	sc := NewStructuredClient(client, 3)

	var out record
	attempts, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), &out)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.NotErrorIs(t, err, ErrSchemaValidation)
	assert.Equal(t, 1, attempts)
	assert.Len(t, provider.calls(), 1)
}

func TestStructuredClient_ExtractRequiresPointer(t *testing.T) {
	client, provider := newTestClient(t, answer(`{}`))
	sc := NewStructuredClient(client, 3)

	var out *record
	_, err := sc.Extract(context.Background(), extractionRequest(FormatJSONObject), out)
	assert.Error(t, err)
	assert.Empty(t, provider.calls())
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}\n":           `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCodeFence(in))
	}
}
