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
)

const classifierSystemPrompt = `당신은 제철소 품질 분석 시스템의 쿼리 분류 전문가입니다.

사용자의 질문을 다음 두 가지 유형으로 분류하세요:
1. concept_lookup: 용어나 개념의 정의를 묻는 질문
2. analytical: 데이터 분석이나 시각화를 요구하는 질문

` + knowledge.DomainKnowledge + `

JSON 형식으로만 응답하세요:
{"queryType": "concept_lookup" 또는 "analytical", "reason": "분류 이유"}`

// classify labels the utterance as concept lookup vs analytical. A provider
// failure is returned to the caller as an error outcome; there is no silent
// default, since defaulting to analytical previously triggered unwanted
// query generation.
func (e *Engine) classify(ctx context.Context, utterance string, history []session.Message) (*Classification, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: classifierSystemPrompt},
	}

	if recent := renderHistory(history, e.opts.HistoryWindow); recent != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "이전 대화 맥락:\n" + recent})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "질문: " + utterance})

	var result Classification
	if err := e.provider.CompleteStructured(ctx, msgs, 0.1, &result); err != nil {
		return nil, fmt.Errorf("failed to classify query: %w", err)
	}

	if result.QueryType != QueryTypeConcept && result.QueryType != QueryTypeAnalytical {
		return nil, fmt.Errorf("classifier returned unknown query type %q", result.QueryType)
	}

	metrics.ClassificationsTotal.WithLabelValues(string(result.QueryType)).Inc()
	logger.Debug("Query classified",
		zap.String("query_type", string(result.QueryType)),
		zap.String("reason", result.Reason),
	)

	return &result, nil
}
