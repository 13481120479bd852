package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeOpenAI serves canned completion bodies in order and records every
// request it sees.
type fakeOpenAI struct {
	mu        sync.Mutex
	responses []string
	requests  []chatRequest
}

func (f *fakeOpenAI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.requests = append(f.requests, req)
		idx := len(f.requests) - 1
		content := ""
		if idx < len(f.responses) {
			content = f.responses[idx]
		}
		f.mu.Unlock()

		resp := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": content,
					},
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     10,
				"completion_tokens": 10,
				"total_tokens":      20,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func newTestClient(t *testing.T, fake *fakeOpenAI) *Client {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:             "test-key",
		BaseURL:            srv.URL + "/v1",
		Model:              "gpt-4o",
		Temperature:        0.1,
		MaxTokens:          512,
		Timeout:            5 * time.Second,
		StructuredAttempts: 2,
		TempStep:           0.3,
		TempCeiling:        0.7,
	})
}

func TestCompleteStructuredParsesFencedOutputWithoutRetry(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{
		"```json\n{\"queryType\": \"analytical\", \"reason\": \"데이터 분석 요청\"}\n```",
	}}
	client := newTestClient(t, fake)

	var out struct {
		QueryType string `json:"queryType"`
		Reason    string `json:"reason"`
	}

	msgs := []Message{{Role: RoleSystem, Content: "classify"}, {Role: RoleUser, Content: "질문"}}
	require.NoError(t, client.CompleteStructured(context.Background(), msgs, 0.1, &out))

	assert.Equal(t, "analytical", out.QueryType)
	assert.Len(t, fake.requests, 1, "fenced but valid JSON must not consume a retry")
}

func TestCompleteStructuredRetriesWithCorrectiveInstruction(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{
		"물론이죠! 결과는 다음과 같습니다: {\"queryType\": \"analytical\"}",
		"{\"queryType\": \"analytical\", \"reason\": \"ok\"}",
	}}
	client := newTestClient(t, fake)

	var out struct {
		QueryType string `json:"queryType"`
	}

	msgs := []Message{{Role: RoleSystem, Content: "classify"}, {Role: RoleUser, Content: "질문"}}
	require.NoError(t, client.CompleteStructured(context.Background(), msgs, 0.1, &out))

	require.Len(t, fake.requests, 2)
	first := fake.requests[0]
	second := fake.requests[1]
	require.Len(t, second.Messages, len(first.Messages)+1, "retry must append exactly one corrective message")
	assert.Contains(t, second.Messages[len(second.Messages)-1].Content, "JSON")
}

func TestCompleteStructuredExhaustionReturnsProviderError(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{
		"이건 JSON이 아닙니다",
		"여전히 JSON이 아닙니다",
	}}
	client := newTestClient(t, fake)

	var out map[string]interface{}
	err := client.CompleteStructured(context.Background(), []Message{{Role: RoleUser, Content: "질문"}}, 0.1, &out)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Raw, "여전히", "last raw response must be preserved for diagnostics")
	assert.Len(t, fake.requests, 2)
}

func TestCompleteEscalatesTemperatureOnEmptyBody(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{"", "UST불량은 초음파탐상검사 결함입니다."}}
	client := newTestClient(t, fake)

	got, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "UST불량이 뭐야?"}}, 0.1)
	require.NoError(t, err)
	assert.Contains(t, got, "UST불량")

	require.Len(t, fake.requests, 2)
	assert.InDelta(t, 0.1, fake.requests[0].Temperature, 0.001)
	assert.InDelta(t, 0.4, fake.requests[1].Temperature, 0.001)
}

func TestCompleteTemperatureEscalationIsCapped(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{"", ""}}
	client := newTestClient(t, fake)

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "질문"}}, 0.6)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	require.Len(t, fake.requests, 2)
	assert.InDelta(t, 0.6, fake.requests[0].Temperature, 0.001)
	assert.InDelta(t, 0.7, fake.requests[1].Temperature, 0.001, "escalation must cap at the ceiling")
}
