package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// label values
const (
	SourceSeed     = "seed"
	SourceChannel  = "channel"
	SourcePoll     = "poll"
	SourceOlder    = "older_page"
	SourceSend     = "optimistic_send"
	SourceResolved = "send_confirmed"

	ResultOK      = "ok"
	ResultEmpty   = "empty"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	// MessagesMerged messages upserted into a conversation view, by source
	MessagesMerged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "sync",
		Name:      "messages_merged_total",
		Help:      "Messages merged into the conversation view by source.",
	}, []string{"source"})

	// DuplicatesCollapsed incoming messages whose id was already present
	DuplicatesCollapsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "sync",
		Name:      "duplicates_collapsed_total",
		Help:      "Incoming messages collapsed onto an existing id.",
	}, []string{"source"})

	// PollTicks polling fallback ticks by result
	PollTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "poll",
		Name:      "ticks_total",
		Help:      "Polling fallback ticks by result.",
	}, []string{"result"})

	// Sends send outcomes
	Sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "send",
		Name:      "outcomes_total",
		Help:      "Message sends by outcome.",
	}, []string{"outcome"})

	// ChannelStates live channel state transitions
	ChannelStates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "channel",
		Name:      "state_transitions_total",
		Help:      "Live update channel state transitions.",
	}, []string{"state"})

	// SessionSwitches conversation opens
	SessionSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_client",
		Subsystem: "session",
		Name:      "switches_total",
		Help:      "Conversation switches performed by the session controller.",
	})

	// ViewSize messages in the open conversation view
	ViewSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_client",
		Subsystem: "sync",
		Name:      "view_messages",
		Help:      "Messages currently held by the open conversation.",
	})
)

// Registry registry holding the client collectors
var Registry = NewRegistry()

// NewRegistry create a registry with all client collectors registered
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		MessagesMerged,
		DuplicatesCollapsed,
		PollTicks,
		Sends,
		ChannelStates,
		SessionSwitches,
		ViewSize,
	)
	return r
}
