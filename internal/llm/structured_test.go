package llm

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain object untouched",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "json-tagged fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "fence with surrounding whitespace",
			in:   "  ```json\n{\"a\": 1}\n```  ",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestParseStructuredRejectsProse(t *testing.T) {
	_, err := parseStructured(`Sure! Here is the JSON you asked for: {"a": 1}`)
	require.Error(t, err)
}

func TestParseStructuredRejectsInvalidJSON(t *testing.T) {
	_, err := parseStructured(`{"a": 1,}`)
	require.Error(t, err)
}

func TestParseStructuredAcceptsFencedObject(t *testing.T) {
	payload, err := parseStructured("```json\n{\"queryType\": \"analytical\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "analytical", payload["queryType"])
}

func TestParseStructuredIsIdempotent(t *testing.T) {
	body := `{"needsConfirmation": "yes", "confirmationQuestion": "어느 공장 기준인가요?", "candidateIntents": ["a", "b"]}`

	first, err := parseStructured(body)
	require.NoError(t, err)
	second, err := parseStructured(body)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))
	assert.Equal(t, true, first["needsConfirmation"])
}

func TestNormalizeConfirmFlag(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{name: "bool true kept", in: true, want: true},
		{name: "bool false kept", in: false, want: false},
		{name: "string true", in: "true", want: true},
		{name: "string one", in: "1", want: true},
		{name: "string yes upper", in: "YES", want: true},
		{name: "string false", in: "false", want: false},
		{name: "unrelated string", in: "maybe", want: false},
		{name: "number coerced to false", in: float64(1), want: false},
		{name: "null coerced to false", in: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]interface{}{"needsConfirmation": tt.in}
			normalizeConfirmFlag(payload)
			assert.Equal(t, tt.want, payload["needsConfirmation"])
		})
	}
}

func TestNormalizeConfirmFlagLeavesOtherFieldsAlone(t *testing.T) {
	payload := map[string]interface{}{"reason": "1"}
	normalizeConfirmFlag(payload)
	assert.Equal(t, "1", payload["reason"])
}

func TestDecodePayload(t *testing.T) {
	payload := map[string]interface{}{
		"queryType": "concept_lookup",
		"reason":    "용어 정의 질문",
	}

	var out struct {
		QueryType string `json:"queryType"`
		Reason    string `json:"reason"`
	}

	require.NoError(t, decodePayload(payload, &out))
	assert.Equal(t, "concept_lookup", out.QueryType)
	assert.Equal(t, "용어 정의 질문", out.Reason)
}
