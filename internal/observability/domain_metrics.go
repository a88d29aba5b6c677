package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_chat_attempts_total",
			Help: "Total number of HTTP attempts made against the chat completion endpoint, retries included.",
		},
	)
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_chat_requests_total",
			Help: "Total number of chat completion requests by outcome.",
		},
		[]string{"outcome"},
	)
	chatLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_chat_latency_seconds",
			Help:    "Chat completion latency in seconds, retries included.",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 40, 80, 120},
		},
	)
	functionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_function_calls_total",
			Help: "Total number of function calls requested by the model, by outcome.",
		},
		[]string{"outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_query_executions_total",
			Help: "Total number of SQL executions by outcome.",
		},
		[]string{"outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "SQL execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_answers_total",
			Help: "Total number of answered questions by reply kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		chatAttemptsTotal,
		chatRequestsTotal,
		chatLatencySeconds,
		functionCallsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		answersTotal,
	)
}

func IncrementChatAttempt() {
	chatAttemptsTotal.Inc()
}

func ObserveChatRequest(failed bool, elapsed time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	chatRequestsTotal.WithLabelValues(outcome).Inc()
	chatLatencySeconds.Observe(elapsed.Seconds())
}

// ObserveFunctionCall records "executed", "unknown_function" or "bad_arguments".
func ObserveFunctionCall(outcome string) {
	functionCallsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryExecution(failed bool, elapsed time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveAnswer records "function_call", "direct_reply" or "failed".
func ObserveAnswer(kind string) {
	answersTotal.WithLabelValues(kind).Inc()
}
