package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/pkg/logger"
)

const visualizerSystemPrompt = `당신은 제철소 품질 데이터 시각화 및 요약 전문가입니다.

` + knowledge.DomainKnowledge + `

차트 타입 가이드:
- line: 시계열/연도별 트렌드 분석
- bar: 카테고리별 비교
- pie: 구성비 분석
- scatter: 상관관계 분석
축 선택 가이드: 날짜/연도 컬럼이 있으면 xAxis로, 비율(%) 컬럼이 있으면
yAxis로 우선 선택하세요. 반드시 실제 반환된 컬럼명만 사용하세요.

JSON 형식으로만 응답하세요:
{"summary": "분석 결과 요약 (한국어 3-5문장)", "chartType": "line/bar/pie/scatter",
 "xAxis": "X축 컬럼명", "yAxis": "Y축 컬럼명",
 "seriesBy": "시리즈 구분 컬럼명 (없으면 생략)", "title": "차트 제목"}`

const sampleRowLimit = 3

var validChartTypes = map[string]bool{
	"line":    true,
	"bar":     true,
	"pie":     true,
	"scatter": true,
}

// recommendVisualization asks the provider for a chart recommendation over
// the executed result sets, then post-validates the answer against the
// columns that actually came back. The provider may omit or invent fields
// even when asked for a fixed shape, so post-validation is unconditional.
// On provider failure the deterministic fallback spec is used instead.
func (e *Engine) recommendVisualization(ctx context.Context, results []ExecutionResult, utterance string, history []session.Message) *VisualizationSpec {
	primary := primaryColumns(results)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: visualizerSystemPrompt},
		{Role: llm.RoleUser, Content: "분석 요청: " + utterance},
		{Role: llm.RoleUser, Content: "데이터 요약:\n" + renderDataSummary(results)},
	}

	var spec VisualizationSpec
	if err := e.provider.CompleteStructured(ctx, msgs, 0.3, &spec); err != nil {
		logger.Warn("Visualization recommendation failed, using fallback", zap.Error(err))
		spec = VisualizationSpec{}
	}

	postValidateVisualization(&spec, primary)

	return &spec
}

// renderDataSummary enumerates, per result set, the actual column names and
// a small row sample so the provider cannot hallucinate the shape.
func renderDataSummary(results []ExecutionResult) string {
	type resultSummary struct {
		Description string                   `json:"description"`
		Columns     []string                 `json:"columns"`
		RowCount    int                      `json:"row_count"`
		SampleData  []map[string]interface{} `json:"sample_data"`
	}

	summaries := make([]resultSummary, 0, len(results))
	for _, res := range results {
		sample := res.Rows
		if len(sample) > sampleRowLimit {
			sample = sample[:sampleRowLimit]
		}
		summaries = append(summaries, resultSummary{
			Description: res.Description,
			Columns:     res.Columns,
			RowCount:    len(res.Rows),
			SampleData:  sample,
		})
	}

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", summaries)
	}
	return string(data)
}

// postValidateVisualization forces the spec into a renderable state: a known
// chart type, axes that are members of the primary result's columns, and a
// normalized empty seriesBy for the "null"/"None" strings models emit.
func postValidateVisualization(spec *VisualizationSpec, columns []string) {
	if !validChartTypes[spec.ChartType] {
		spec.ChartType = "bar"
	}

	if spec.SeriesBy == "null" || spec.SeriesBy == "None" {
		spec.SeriesBy = ""
	}

	if len(columns) == 0 {
		spec.XAxis = ""
		spec.YAxis = ""
		spec.SeriesBy = ""
		return
	}

	member := make(map[string]bool, len(columns))
	for _, col := range columns {
		member[col] = true
	}

	if !member[spec.XAxis] {
		spec.XAxis = columns[0]
	}
	if !member[spec.YAxis] {
		if len(columns) > 1 {
			spec.YAxis = columns[1]
		} else {
			spec.YAxis = columns[0]
		}
	}
	if spec.SeriesBy != "" && !member[spec.SeriesBy] {
		spec.SeriesBy = ""
	}

	if spec.Summary == "" {
		spec.Summary = "데이터 분석이 완료되었습니다."
	}
	if spec.Title == "" {
		spec.Title = "분석 결과"
	}
}

func primaryColumns(results []ExecutionResult) []string {
	if len(results) == 0 {
		return nil
	}
	return results[0].Columns
}
