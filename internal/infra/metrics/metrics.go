// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		llmTokensIn,
		llmTokensOut,
		llmCallsLatencyMs,
		llmContextTrimmed,
	)
}

var (
	llmTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_in",
			Help: "Sum of prompt tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	llmTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_out",
			Help: "Sum of completion tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	llmCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_calls_latency_ms",
			Help:    "LLM call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "success"},
	)

	llmContextTrimmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_context_trimmed_total",
			Help: "Chat turns whose history was cut down to fit the context budget.",
		},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	llmTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	llmTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	llmCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncContextTrimmed() { llmContextTrimmed.Inc() }
