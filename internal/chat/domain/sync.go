package domain

// Source tag of where an upsert came from
type Source string

const (
	// FromSeed first page
	FromSeed Source = "seed"
	// FromChannel live update channel
	FromChannel Source = "channel"
	// FromPoll polling fallback
	FromPoll Source = "poll"
	// FromOlderPage explicit older page load
	FromOlderPage Source = "older_page"
	// FromOptimisticSend local placeholder
	FromOptimisticSend Source = "optimistic_send"
	// FromSendConfirm backend confirmed a send
	FromSendConfirm Source = "send_confirmed"
)

// ChannelState live update channel state
type ChannelState string

const (
	// ChannelConnecting waiting for the first ack
	ChannelConnecting ChannelState = "connecting"
	// ChannelActive ack or first event received
	ChannelActive ChannelState = "active"
	// ChannelError subscription failed
	ChannelError ChannelState = "error"
	// ChannelCompleted stream ended
	ChannelCompleted ChannelState = "completed"
)

// Terminal report whether no further events can arrive
func (s ChannelState) Terminal() bool {
	return s == ChannelError || s == ChannelCompleted
}

// SessionState conversation session controller state
type SessionState string

const (
	// SessionIdle no conversation
	SessionIdle SessionState = "idle"
	// SessionLoading first page in flight
	SessionLoading SessionState = "loading"
	// SessionActive conversation open
	SessionActive SessionState = "active"
)

// View merged conversation view published to subscribers
type View struct {
	Version        uint64       `json:"version"`
	ConversationID string       `json:"conversation_id"`
	State          SessionState `json:"state"`
	Messages       []Message    `json:"messages"`
	HasMore        bool         `json:"has_more"`
	IsLoading      bool         `json:"is_loading"`
	IsLoadingMore  bool         `json:"is_loading_more"`
	ChannelState   ChannelState `json:"channel_state,omitempty"`
	PollingActive  bool         `json:"polling_active"`
}

// Chronological messages oldest first
func (v View) Chronological() []Message {
	out := make([]Message, len(v.Messages))
	for i, m := range v.Messages {
		out[len(v.Messages)-1-i] = m
	}
	return out
}
