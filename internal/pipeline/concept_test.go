package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quality-agent/backend/internal/session"
)

type fakeConceptCache struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
	sets    int
	err     error
}

func newFakeConceptCache() *fakeConceptCache {
	return &fakeConceptCache{entries: map[string]string{}}
}

func (f *fakeConceptCache) GetConcept(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return "", false, f.err
	}
	answer, ok := f.entries[key]
	return answer, ok, nil
}

func (f *fakeConceptCache) SetConcept(_ context.Context, key, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.err != nil {
		return f.err
	}
	f.entries[key] = answer
	return nil
}

func TestAnswerConceptCachesByUtterance(t *testing.T) {
	provider := &fakeProvider{
		free: []freeReply{{text: "UST불량은 초음파탐상검사에서 검출된 내부 결함입니다."}},
	}
	cache := newFakeConceptCache()
	engine := NewEngine(provider, &fakeExecutor{}, session.NewStore(), Options{}).WithCache(cache)

	first, err := engine.answerConcept(context.Background(), "UST불량이 뭐야?", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.freeCalls)
	assert.Equal(t, 1, cache.sets)

	second, err := engine.answerConcept(context.Background(), "UST불량이 뭐야?", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.freeCalls, "second identical lookup must be served from cache")
}

func TestAnswerConceptSurvivesCacheFailure(t *testing.T) {
	provider := &fakeProvider{
		free: []freeReply{{text: "클레임률은 판매량 대비 클레임 수량의 비율입니다."}},
	}
	cache := newFakeConceptCache()
	cache.err = context.DeadlineExceeded
	engine := NewEngine(provider, &fakeExecutor{}, session.NewStore(), Options{}).WithCache(cache)

	answer, err := engine.answerConcept(context.Background(), "클레임률 정의 알려줘", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, 1, provider.freeCalls)
}

func TestRenderHistoryWindow(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleUser, Content: "첫 질문"},
		{Role: session.RoleAssistant, Content: "첫 답변"},
		{Role: session.RoleUser, Content: "둘째 질문"},
		{Role: session.RoleAssistant, Content: "둘째 답변"},
	}

	rendered := renderHistory(history, 2)
	assert.NotContains(t, rendered, "첫 질문")
	assert.Contains(t, rendered, "user: 둘째 질문")
	assert.Contains(t, rendered, "assistant: 둘째 답변")

	assert.Empty(t, renderHistory(nil, 4))
	assert.Empty(t, renderHistory(history, 0))
	assert.Contains(t, renderHistory(history, 10), "첫 질문")
}
