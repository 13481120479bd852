// Package pipeline implements the multi-stage query-resolution state machine:
// classification, optional disambiguation, SQL synthesis, execution, and
// visualization recommendation, driven per chat turn by the Engine.
package pipeline

import (
	"context"

	"github.com/quality-agent/backend/internal/llm"
)

// Provider is the completion capability the stages delegate judgment to.
// Satisfied by *llm.Client; faked in tests.
type Provider interface {
	Complete(ctx context.Context, msgs []llm.Message, temperature float32) (string, error)
	CompleteStructured(ctx context.Context, msgs []llm.Message, temperature float32, out interface{}) error
}

// Executor runs one generated query and returns ordered columns and rows.
type Executor interface {
	Execute(ctx context.Context, query string) ([]string, []map[string]interface{}, error)
}

// ConceptCache stores concept-lookup answers keyed by utterance hash.
type ConceptCache interface {
	GetConcept(ctx context.Context, key string) (string, bool, error)
	SetConcept(ctx context.Context, key, answer string) error
}

// TurnRecorder persists a per-turn audit row.
type TurnRecorder interface {
	RecordTurn(sessionID, utterance, responseType string, latencyMS int) error
}

type QueryType string

const (
	QueryTypeConcept    QueryType = "concept_lookup"
	QueryTypeAnalytical QueryType = "analytical"
)

// Classification labels one utterance.
type Classification struct {
	QueryType QueryType `json:"queryType"`
	Reason    string    `json:"reason"`
}

// DisambiguationVerdict reports whether the utterance's named criterion maps
// to more than one schema field. When NeedsConfirmation is true the question
// and at least two candidate intents are guaranteed by the checker.
type DisambiguationVerdict struct {
	NeedsConfirmation    bool     `json:"needsConfirmation"`
	ConfirmationQuestion string   `json:"confirmationQuestion"`
	CandidateIntents     []string `json:"candidateIntents"`
	Reason               string   `json:"reason"`

	// Set when a prior candidate selection was found in the history.
	ResolvedIntent string `json:"-"`
}

type SQLQuery struct {
	Description string `json:"description"`
	Query       string `json:"query"`
}

// SQLPlan is the synthesizer's output: the confirmed analytical intent and
// the ordered queries that realize it.
type SQLPlan struct {
	ConfirmedIntent string     `json:"confirmedIntent"`
	SQLQueries      []SQLQuery `json:"sqlQueries"`
}

// ExecutionResult carries one executed query's rows in executor order.
type ExecutionResult struct {
	Description string                   `json:"description"`
	Query       string                   `json:"query"`
	Columns     []string                 `json:"columns"`
	Rows        []map[string]interface{} `json:"rows"`
}

// VisualizationSpec binds a chart type to columns of the primary result set.
type VisualizationSpec struct {
	Summary   string `json:"summary"`
	ChartType string `json:"chartType"`
	XAxis     string `json:"xAxis"`
	YAxis     string `json:"yAxis"`
	SeriesBy  string `json:"seriesBy,omitempty"`
	Title     string `json:"title"`
}

type ResponseType string

const (
	ResponseConcept      ResponseType = "concept"
	ResponseConfirmation ResponseType = "confirmation"
	ResponseAnalysis     ResponseType = "analysis"
	ResponseError        ResponseType = "error"
	ResponseInfo         ResponseType = "info"
)

// Response is the per-turn contract surfaced to the transport layer.
type Response struct {
	Message  string                 `json:"message"`
	Type     ResponseType           `json:"type"`
	Metadata map[string]interface{} `json:"metadata"`
}
