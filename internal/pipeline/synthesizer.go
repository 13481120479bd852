package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
)

const synthesizerSystemPrompt = `당신은 제철소 품질 분석을 위한 SQL 생성 전문가입니다.

` + knowledge.DomainKnowledge + `

출력 형식: 정확히 하나의 JSON 객체만 출력하세요. 설명 문장, 마크다운 코드
펜스, 닫는 괄호 앞의 후행 쉼표를 금지합니다.
{"confirmedIntent": "확정된 분석 의도",
 "sqlQueries": [{"description": "쿼리 설명", "query": "실행 가능한 SQL"}]}`

var tableRefPattern = regexp.MustCompile(`(?i)\bTB_[A-Z0-9_]+`)

// ratioDivisionPattern flags a division whose operands are bare column
// aggregates with no float promotion in sight.
var ratioDivisionPattern = regexp.MustCompile(`(?i)(SUM|AVG|COUNT)\s*\([^)]*\)\s*/`)

// synthesize turns the utterance plus recent conversation context into an
// executable SQL plan. resolvedIntent carries the candidate the user picked
// in an earlier confirmation round, when there was one.
func (e *Engine) synthesize(ctx context.Context, utterance string, history []session.Message, resolvedIntent string) (*SQLPlan, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: synthesizerSystemPrompt},
	}
	if recent := renderHistory(history, e.opts.SQLHistoryWindow); recent != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "이전 대화 맥락:\n" + recent})
	}
	if resolvedIntent != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "사용자가 선택한 기준: " + resolvedIntent})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "분석 요청: " + utterance})

	var plan SQLPlan
	if err := e.provider.CompleteStructured(ctx, msgs, 0.1, &plan); err != nil {
		return nil, fmt.Errorf("failed to synthesize SQL plan: %w", err)
	}

	if err := validatePlan(&plan); err != nil {
		return nil, err
	}

	for _, q := range plan.SQLQueries {
		if divisionLooksInteger(q.Query) {
			logger.Warn("Generated query divides aggregates without float promotion",
				zap.String("query", q.Query),
			)
		}
	}

	logger.Info("SQL plan synthesized",
		zap.String("intent", plan.ConfirmedIntent),
		zap.Int("queries", len(plan.SQLQueries)),
	)

	return &plan, nil
}

// validatePlan rejects plans with no queries and plans referencing tables
// outside the three known relations.
func validatePlan(plan *SQLPlan) error {
	if len(plan.SQLQueries) == 0 {
		return fmt.Errorf("SQL plan contains no queries")
	}

	known := make(map[string]bool)
	for _, table := range knowledge.TableNames() {
		known[table] = true
	}

	for _, q := range plan.SQLQueries {
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("SQL plan contains an empty query")
		}

		refs := tableRefPattern.FindAllString(q.Query, -1)
		if len(refs) == 0 {
			return fmt.Errorf("query references no known table: %s", q.Query)
		}
		for _, ref := range refs {
			if !known[strings.ToUpper(ref)] {
				return fmt.Errorf("query references unknown table %s", ref)
			}
		}
	}

	return nil
}

// divisionLooksInteger reports whether a query divides aggregate results
// without a visible float promotion. Heuristic, used for logging only; the
// dialect rules make the provider responsible for the promotion itself.
func divisionLooksInteger(query string) bool {
	if !ratioDivisionPattern.MatchString(query) {
		return false
	}

	upper := strings.ToUpper(query)
	if strings.Contains(upper, "CAST(") || strings.Contains(upper, " AS REAL") {
		return false
	}
	// A float literal anywhere in the expression promotes the division.
	return !strings.Contains(query, ".0")
}
