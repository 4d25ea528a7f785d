// Package metrics holds the prometheus collectors for chat turns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeText       = "text"
	OutcomeTool       = "tool"
	OutcomeFallback   = "fallback"
	OutcomeUnknown    = "unknown_tool"
	OutcomeCancelled  = "cancelled"
	OutcomeError      = "error"
	OutcomeInquiry    = "inquiry"
	OutcomeEmptyInput = "empty_input"
)

// Tool call results, and the tool label used for names outside the registry.
const (
	ToolResultOK      = "ok"
	ToolResultInvalid = "invalid"
	ToolResultUnknown = "unknown"
	UnknownTool       = "unknown"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_turns_total",
		Help: "Chat turns by outcome.",
	}, []string{"outcome"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "horizon_turn_duration_seconds",
		Help:    "Time from user submission to the final append of a turn.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"outcome"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_tool_calls_total",
		Help: "Tool invocations by tool name and result (ok, invalid, unknown).",
	}, []string{"tool", "result"})

	StreamChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "horizon_stream_chunks_total",
		Help: "Text deltas received from the model provider.",
	})

	ChatsInMemory = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "horizon_chats_in_memory",
		Help: "Chats held by the conversation store, with or without a writer.",
	})

	CommitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "horizon_commit_failures_total",
		Help: "Conversation snapshots that failed to persist.",
	})
)

// ObserveTurn records one finished turn.
func ObserveTurn(outcome string, seconds float64) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.WithLabelValues(outcome).Observe(seconds)
}
