package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quality_agent_turn_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"response_type"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_turns_total",
			Help: "Total chat turns processed, by terminal response type",
		},
		[]string{"response_type"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_classifications_total",
			Help: "Query classification outcomes",
		},
		[]string{"query_type"},
	)

	ConfirmationPrompts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quality_agent_confirmation_prompts_total",
			Help: "Disambiguation questions returned to users",
		},
	)

	ProviderRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_provider_retries_total",
			Help: "Completion provider retries, by cause",
		},
		[]string{"cause"},
	)

	ProviderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_provider_tokens_total",
			Help: "Total completion provider tokens used",
		},
		[]string{"model"},
	)

	SQLExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_sql_executions_total",
			Help: "Generated SQL executions, by status",
		},
		[]string{"status"},
	)

	NoDataOutcomes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quality_agent_no_data_outcomes_total",
			Help: "Turns that ended in a no-data outcome",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_agent_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(ConfirmationPrompts)
	prometheus.MustRegister(ProviderRetries)
	prometheus.MustRegister(ProviderTokens)
	prometheus.MustRegister(SQLExecutions)
	prometheus.MustRegister(NoDataOutcomes)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
