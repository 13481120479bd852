package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/metrics"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
	"github.com/quality-agent/backend/pkg/utils"
)

const conceptSystemPrompt = `당신은 제철소 품질 용어 전문가입니다. 아래 도메인 지식에
근거하여 사용자가 묻는 용어나 개념을 정확하고 간결하게 설명하세요.
도메인 지식에 없는 용어라면 정의를 찾을 수 없다고 답하세요.

` + knowledge.DomainKnowledge

// answerConcept produces a free-text explanation for a concept-lookup query.
// Answers are cached by utterance hash when a cache is wired.
func (e *Engine) answerConcept(ctx context.Context, utterance string, history []session.Message) (string, error) {
	cacheKey := utils.HashString(utterance)

	if e.cache != nil {
		answer, ok, err := e.cache.GetConcept(ctx, cacheKey)
		if err != nil {
			logger.Warn("Concept cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("concept").Inc()
			return answer, nil
		}
		metrics.CacheMisses.WithLabelValues("concept").Inc()
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: conceptSystemPrompt},
	}
	if recent := renderHistory(history, e.opts.HistoryWindow); recent != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "이전 대화 맥락:\n" + recent})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "질문: " + utterance})

	answer, err := e.provider.Complete(ctx, msgs, 0.2)
	if err != nil {
		return "", fmt.Errorf("failed to answer concept lookup: %w", err)
	}

	if e.cache != nil {
		if err := e.cache.SetConcept(ctx, cacheKey, answer); err != nil {
			logger.Warn("Concept cache store failed", zap.Error(err))
		}
	}

	return answer, nil
}
