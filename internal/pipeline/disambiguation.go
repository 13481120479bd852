package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
)

const disambiguationSystemPrompt = `당신은 제철소 품질 분석 시스템의 확인 질문 판단 전문가입니다.

사용자가 지정한 그룹핑/필터 기준이 서로 다른 2개 이상의 구체적인 스키마 컬럼에
대응될 때만 반문이 필요합니다. 단일하고 명확한 기준이면 반문하지 않습니다.

반문할 경우 질문에는 (a) 언급된 지표/항목의 정확한 정의, (b) 각 후보 컬럼의
이름과 정의, (c) 후보들이 충돌하는 이유를 반드시 포함하세요.
candidateIntents의 각 항목은 "라벨: 정의" 형태여야 합니다.

` + knowledge.DomainKnowledge + `

JSON 형식으로만 응답하세요:
{"needsConfirmation": true/false, "confirmationQuestion": "확인 질문",
 "candidateIntents": ["라벨: 정의", "라벨: 정의"], "reason": "판단 이유"}`

// checkDisambiguation decides whether the analytical request needs a
// clarifying question. A selection the user already made in reply to an
// earlier confirmation is recognized locally and short-circuits the provider
// call, so the same criterion is never re-asked within a conversation.
func (e *Engine) checkDisambiguation(ctx context.Context, utterance string, history []session.Message) (*DisambiguationVerdict, error) {
	if label, ok := priorSelection(history); ok {
		logger.Debug("Prior disambiguation selection found", zap.String("label", label))
		return &DisambiguationVerdict{
			NeedsConfirmation: false,
			Reason:            "사용자가 이전 확인 질문에서 기준을 선택함",
			ResolvedIntent:    label,
		}, nil
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: disambiguationSystemPrompt},
	}
	if recent := renderHistory(history, e.opts.HistoryWindow); recent != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "이전 대화 맥락:\n" + recent})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "현재 질문: " + utterance})

	var verdict DisambiguationVerdict
	if err := e.provider.CompleteStructured(ctx, msgs, 0.2, &verdict); err != nil {
		return nil, fmt.Errorf("failed to check disambiguation: %w", err)
	}

	enforceVerdictInvariant(&verdict)

	return &verdict, nil
}

// enforceVerdictInvariant downgrades a confirmation verdict that cannot be
// acted on: a question is only meaningful between two or more concrete
// candidates.
func enforceVerdictInvariant(v *DisambiguationVerdict) {
	if !v.NeedsConfirmation {
		return
	}
	if strings.TrimSpace(v.ConfirmationQuestion) == "" || len(v.CandidateIntents) < 2 {
		logger.Warn("Downgrading unusable confirmation verdict",
			zap.Int("candidates", len(v.CandidateIntents)),
		)
		v.NeedsConfirmation = false
	}
}

// priorSelection scans the history for the most recent confirmation prompt
// and checks whether a later user message names one of its candidates. The
// match is a substring test on the candidate's label (the part before ':').
func priorSelection(history []session.Message) (string, bool) {
	offerIdx := -1
	var candidates []string

	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != session.RoleAssistant {
			continue
		}
		if got := candidateIntents(msg.Metadata); len(got) > 0 {
			offerIdx = i
			candidates = got
			break
		}
	}

	if offerIdx < 0 {
		return "", false
	}

	for i := len(history) - 1; i > offerIdx; i-- {
		msg := history[i]
		if msg.Role != session.RoleUser {
			continue
		}
		for _, candidate := range candidates {
			label := candidateLabel(candidate)
			if label != "" && strings.Contains(msg.Content, label) {
				return candidate, true
			}
		}
	}

	return "", false
}

func candidateIntents(metadata map[string]interface{}) []string {
	if metadata == nil {
		return nil
	}

	switch v := metadata["candidateIntents"].(type) {
	case []string:
		return v
	case []interface{}:
		intents := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				intents = append(intents, s)
			}
		}
		return intents
	default:
		return nil
	}
}

func candidateLabel(candidate string) string {
	if idx := strings.Index(candidate, ":"); idx >= 0 {
		return strings.TrimSpace(candidate[:idx])
	}
	return strings.TrimSpace(candidate)
}
