package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/metrics"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
)

type Options struct {
	// History turns rendered into classification/disambiguation prompts.
	HistoryWindow int
	// History turns rendered into synthesis prompts.
	SQLHistoryWindow int
	// Confirmation prompts allowed before synthesis proceeds regardless.
	MaxConfirmationRetries int
}

func defaultOptions() Options {
	return Options{
		HistoryWindow:          4,
		SQLHistoryWindow:       6,
		MaxConfirmationRetries: 3,
	}
}

// Engine sequences the pipeline stages for one chat turn and maps stage
// failures to user-facing outcomes. All cross-turn state lives in the
// session store; the engine itself is stateless and safe for concurrent use
// across sessions.
type Engine struct {
	provider Provider
	executor Executor
	sessions *session.Store
	cache    ConceptCache
	recorder TurnRecorder
	opts     Options
}

func NewEngine(provider Provider, executor Executor, sessions *session.Store, opts Options) *Engine {
	def := defaultOptions()
	if opts.HistoryWindow == 0 {
		opts.HistoryWindow = def.HistoryWindow
	}
	if opts.SQLHistoryWindow == 0 {
		opts.SQLHistoryWindow = def.SQLHistoryWindow
	}
	if opts.MaxConfirmationRetries == 0 {
		opts.MaxConfirmationRetries = def.MaxConfirmationRetries
	}

	return &Engine{
		provider: provider,
		executor: executor,
		sessions: sessions,
		opts:     opts,
	}
}

// WithCache wires an optional concept-answer cache.
func (e *Engine) WithCache(cache ConceptCache) *Engine {
	e.cache = cache
	return e
}

// WithRecorder wires an optional per-turn audit recorder.
func (e *Engine) WithRecorder(recorder TurnRecorder) *Engine {
	e.recorder = recorder
	return e
}

// ProcessTurn runs one full pipeline turn for the session. It returns an
// error only when the session itself is unknown; every pipeline failure is
// folded into a Response of type error.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, message string) (*Response, error) {
	unlock, err := e.sessions.LockTurn(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()

	if err := e.sessions.Append(sessionID, session.Message{
		Role:    session.RoleUser,
		Content: message,
	}); err != nil {
		return nil, err
	}

	history, err := e.sessions.History(sessionID)
	if err != nil {
		return nil, err
	}

	resp := e.processMessage(ctx, sessionID, message, history)

	if err := e.sessions.Append(sessionID, session.Message{
		Role:     session.RoleAssistant,
		Content:  resp.Message,
		Metadata: resp.Metadata,
	}); err != nil {
		return nil, err
	}

	switch resp.Type {
	case ResponseConfirmation:
		e.sessions.SetState(sessionID, session.StateAwaitingConfirmation)
	case ResponseAnalysis, ResponseConcept:
		e.sessions.SetState(sessionID, session.StateConfirmed)
	}

	latency := time.Since(start)
	metrics.TurnsTotal.WithLabelValues(string(resp.Type)).Inc()
	metrics.TurnDuration.WithLabelValues(string(resp.Type)).Observe(latency.Seconds())

	if e.recorder != nil {
		if err := e.recorder.RecordTurn(sessionID, message, string(resp.Type), int(latency.Milliseconds())); err != nil {
			logger.Warn("Failed to record turn", zap.Error(err))
		}
	}

	logger.Info("Turn processed",
		zap.String("session_id", sessionID),
		zap.String("response_type", string(resp.Type)),
		zap.Duration("latency", latency),
	)

	return resp, nil
}

func (e *Engine) processMessage(ctx context.Context, sessionID, message string, history []session.Message) *Response {
	classification, err := e.classify(ctx, message, history)
	if err != nil {
		return errorResponse("질문 분류 중 오류가 발생했습니다. 다시 시도해주세요.", err, nil)
	}

	if classification.QueryType == QueryTypeConcept {
		return e.handleConcept(ctx, message, history)
	}

	return e.handleAnalytical(ctx, sessionID, message, history)
}

func (e *Engine) handleConcept(ctx context.Context, message string, history []session.Message) *Response {
	answer, err := e.answerConcept(ctx, message, history)
	if err != nil {
		return errorResponse("용어 설명 생성 중 오류가 발생했습니다.", err, nil)
	}

	return &Response{
		Message:  answer,
		Type:     ResponseConcept,
		Metadata: map[string]interface{}{},
	}
}

func (e *Engine) handleAnalytical(ctx context.Context, sessionID, message string, history []session.Message) *Response {
	verdict, err := e.checkDisambiguation(ctx, message, history)
	if err != nil {
		return errorResponse("질문 해석 중 오류가 발생했습니다.", err, nil)
	}

	if verdict.NeedsConfirmation {
		retries, err := e.sessions.IncConfirmationRetries(sessionID)
		if err != nil {
			return errorResponse("세션 상태 갱신에 실패했습니다.", err, nil)
		}

		if retries <= e.opts.MaxConfirmationRetries {
			metrics.ConfirmationPrompts.Inc()
			return &Response{
				Message: verdict.ConfirmationQuestion,
				Type:    ResponseConfirmation,
				Metadata: map[string]interface{}{
					"candidateIntents": verdict.CandidateIntents,
					"reason":           verdict.Reason,
				},
			}
		}

		// Re-ask budget spent: proceed with the raw utterance rather than
		// looping forever on malformed matches.
		logger.Warn("Confirmation retry budget exhausted, proceeding to synthesis",
			zap.String("session_id", sessionID),
			zap.Int("retries", retries),
		)
	}

	e.sessions.ResetConfirmationRetries(sessionID)

	plan, err := e.synthesize(ctx, message, history, verdict.ResolvedIntent)
	if err != nil {
		return errorResponse("SQL 생성 중 오류가 발생했습니다.", err, nil)
	}

	results, errResp := e.executePlan(ctx, plan)
	if errResp != nil {
		return errResp
	}

	spec := e.recommendVisualization(ctx, results, message, history)

	return &Response{
		Message: spec.Summary,
		Type:    ResponseAnalysis,
		Metadata: map[string]interface{}{
			"confirmedIntent": plan.ConfirmedIntent,
			"results":         results,
			"visualization":   spec,
		},
	}
}

// executePlan runs the plan's queries strictly in order. The first execution
// failure or no-data result aborts the remainder of the plan.
func (e *Engine) executePlan(ctx context.Context, plan *SQLPlan) ([]ExecutionResult, *Response) {
	results := make([]ExecutionResult, 0, len(plan.SQLQueries))

	for _, q := range plan.SQLQueries {
		columns, rows, err := e.executor.Execute(ctx, q.Query)
		if err != nil {
			metrics.SQLExecutions.WithLabelValues("error").Inc()
			return nil, errorResponse("쿼리 실행 중 오류가 발생했습니다.", err, map[string]interface{}{
				"query": q.Query,
			})
		}
		metrics.SQLExecutions.WithLabelValues("ok").Inc()

		if !hasData(rows) {
			metrics.NoDataOutcomes.Inc()
			return nil, &Response{
				Message: "조회 결과가 없거나 수치가 모두 0입니다. 조회 기간이나 조건을 바꿔 다시 질문해주세요.",
				Type:    ResponseError,
				Metadata: map[string]interface{}{
					"noData": true,
					"query":  q.Query,
				},
			}
		}

		results = append(results, ExecutionResult{
			Description: q.Description,
			Query:       q.Query,
			Columns:     columns,
			Rows:        rows,
		})
	}

	return results, nil
}

// hasData reports whether a result set carries a signal worth charting. An
// empty set, or one whose numeric content sums to zero across all rows, is
// treated as a probably-wrong query. Rows with no numeric columns at all
// count as data.
func hasData(rows []map[string]interface{}) bool {
	if len(rows) == 0 {
		return false
	}

	numericSeen := false
	var total float64

	for _, row := range rows {
		for _, value := range row {
			switch v := value.(type) {
			case int:
				numericSeen = true
				total += float64(v)
			case int64:
				numericSeen = true
				total += float64(v)
			case float64:
				numericSeen = true
				total += v
			case float32:
				numericSeen = true
				total += float64(v)
			}
		}
	}

	if numericSeen && total == 0 {
		return false
	}
	return true
}

func errorResponse(message string, err error, metadata map[string]interface{}) *Response {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if err != nil {
		metadata["error"] = err.Error()

		var perr *llm.ProviderError
		if errors.As(err, &perr) && perr.Raw != "" {
			metadata["rawResponse"] = perr.Raw
		}
	}

	logger.Error("Pipeline stage failed", zap.Error(err))

	return &Response{
		Message:  message,
		Type:     ResponseError,
		Metadata: metadata,
	}
}
