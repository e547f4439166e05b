package app

import (
	"context"
	"sync"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"
	"group_chat_client/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineOptions tuning and hooks of a reconciliation engine
type EngineOptions struct {
	PageSize        int
	GracePeriod     time.Duration
	PollWhenHealthy bool

	// OnChange receive every published snapshot, in version order
	OnChange func(EngineSnapshot)
	// OnArmPolling called once when the engine decides the polling fallback must run
	OnArmPolling func()

	Now   func() time.Time
	NewID func() string
}

// EngineSnapshot immutable copy of the engine state
type EngineSnapshot struct {
	Version           uint64
	ConversationID    string
	Messages          []domain.Message
	HasMore           bool
	Seeded            bool
	LoadingOlder      bool
	Watermark         time.Time
	ChannelState      domain.ChannelState
	ChannelUnreliable bool
	PollingArmed      bool
}

// Engine merges the first page, live channel events, poll batches, older
// pages and optimistic sends of one conversation into one ordered,
// de-duplicated sequence. It owns the watermark and the older-page cursor.
type Engine struct {
	conversationID string
	fetcher        repository.MessageFetcher
	opts           EngineOptions
	log            *logger.LogInfo

	mu               sync.Mutex
	messages         []domain.Message
	pending          []domain.Message
	watermark        time.Time
	cursor           string
	hasMore          bool
	seeded           bool
	seededAt         time.Time
	loadingOlder     bool
	closed           bool
	channelState     domain.ChannelState
	channelDelivered int
	unreliable       bool
	pollingArmed     bool
	version          uint64

	notifyMu  sync.Mutex
	published uint64
}

// NewEngine create a reconciliation engine for conversationID
func NewEngine(conversationID string, fetcher repository.MessageFetcher, opts EngineOptions) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return domain.TempIDPrefix + uuid.New().String() }
	}
	return &Engine{
		conversationID: conversationID,
		fetcher:        fetcher,
		opts:           opts,
		log:            logger.Log.With(zap.String("conversation_id", conversationID)),
		channelState:   domain.ChannelConnecting,
	}
}

// ConversationID conversation served by the engine
func (e *Engine) ConversationID() string {
	return e.conversationID
}

// Seed install the first page. Channel events buffered before the seed are
// merged in. Only the first call has an effect.
func (e *Engine) Seed(page domain.Page) {
	e.mu.Lock()
	if e.closed || e.seeded {
		e.mu.Unlock()
		return
	}

	msgs := OfConversation(e.conversationID, page.Messages)
	// sends made while loading stay; the page and buffered events merge over them
	merged, _ := Upsert(e.messages, msgs...)
	merged, dups := Upsert(merged, e.pending...)

	now := e.opts.Now()
	e.watermark = now
	if latest, ok := Latest(append(append([]domain.Message(nil), msgs...), e.pending...)); ok {
		e.watermark = latest
	}
	e.messages = merged
	e.pending = nil
	e.cursor = page.NextCursor
	e.hasMore = page.HasMore && page.NextCursor != ""
	e.seeded = true
	e.seededAt = now

	metrics.MessagesMerged.WithLabelValues(metrics.SourceSeed).Add(float64(len(msgs)))
	metrics.DuplicatesCollapsed.WithLabelValues(metrics.SourceChannel).Add(float64(dups))
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Debug("seeded", zap.Int("count", len(merged)), zap.Bool("has_more", snap.HasMore))
	e.publish(snap)
}

// IngestFromChannel upsert one live channel event
func (e *Engine) IngestFromChannel(m domain.Message) {
	if m.ConversationID != "" && m.ConversationID != e.conversationID {
		e.log.Warn("drop channel message of another conversation", zap.String("message_conversation_id", m.ConversationID))
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.channelDelivered++
	if e.channelState == domain.ChannelConnecting {
		e.channelState = domain.ChannelActive
	}
	if !e.seeded {
		e.pending = append(e.pending, m)
		e.mu.Unlock()
		return
	}
	snap := e.mergeLocked(domain.FromChannel, true, m)
	e.mu.Unlock()

	e.publish(snap)
}

// IngestFromPoll upsert a batch delivered by the polling fallback
func (e *Engine) IngestFromPoll(msgs []domain.Message) {
	msgs = OfConversation(e.conversationID, msgs)
	if len(msgs) == 0 {
		return
	}

	e.mu.Lock()
	if e.closed || !e.seeded {
		e.mu.Unlock()
		return
	}
	snap := e.mergeLocked(domain.FromPoll, true, msgs...)
	e.mu.Unlock()

	e.publish(snap)
}

// ChannelStateChanged record a live channel transition and arm polling when the
// channel cannot be trusted
func (e *Engine) ChannelStateChanged(state domain.ChannelState, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.channelState = state
	switch {
	case state == domain.ChannelError:
		e.unreliable = true
	case state == domain.ChannelCompleted && e.channelDelivered == 0:
		e.unreliable = true
	}
	arm := e.unreliable && e.armLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	metrics.ChannelStates.WithLabelValues(string(state)).Inc()
	if err != nil {
		e.log.Warn("live channel state", zap.String("state", string(state)), zap.Error(err))
	} else {
		e.log.Info("live channel state", zap.String("state", string(state)))
	}
	if arm {
		e.armPolling()
	}
	e.publish(snap)
}

// HealthCheck report whether the live channel is unreliable at now, arming
// the polling fallback when it is, or when polling runs regardless of health
func (e *Engine) HealthCheck(now time.Time) bool {
	e.mu.Lock()
	if e.closed || !e.seeded {
		e.mu.Unlock()
		return false
	}
	graceOver := now.Sub(e.seededAt) >= e.opts.GracePeriod

	switch {
	case e.channelState == domain.ChannelError:
		e.unreliable = true
	case e.channelState == domain.ChannelCompleted && e.channelDelivered == 0:
		e.unreliable = true
	case graceOver && e.channelDelivered == 0 && e.channelState != domain.ChannelActive:
		e.unreliable = true
	}
	unreliable := e.unreliable
	arm := (unreliable || (graceOver && e.opts.PollWhenHealthy)) && e.armLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if unreliable {
		e.log.Warn("live channel unreliable", zap.String("state", string(snap.ChannelState)))
	}
	if arm {
		e.armPolling()
		e.publish(snap)
	}
	return unreliable
}

// LoadOlderPage fetch the page before the current cursor. It is a no-op when
// nothing older exists or a load is already in flight.
func (e *Engine) LoadOlderPage(ctx context.Context) error {
	e.mu.Lock()
	if e.closed || !e.seeded || !e.hasMore || e.loadingOlder {
		e.mu.Unlock()
		return nil
	}
	e.loadingOlder = true
	cursor := e.cursor
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.publish(snap)

	page, err := e.fetcher.FetchPage(ctx, e.conversationID, e.opts.PageSize, cursor)

	e.mu.Lock()
	e.loadingOlder = false
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		snap = e.snapshotLocked()
		e.mu.Unlock()
		e.log.Warn("load older page", zap.Error(err))
		e.publish(snap)
		return err
	}
	e.cursor = page.NextCursor
	e.hasMore = page.HasMore && page.NextCursor != ""
	snap = e.mergeLocked(domain.FromOlderPage, true, OfConversation(e.conversationID, page.Messages)...)
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

// SendOptimistic insert a sending placeholder at the head and return its id
func (e *Engine) SendOptimistic(draft domain.Draft, sender domain.Identity) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", errprocess.ErrNoConversation
	}
	placeholder := domain.Message{
		ID:             e.opts.NewID(),
		ConversationID: e.conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Text:           draft.Text,
		Attachments:    draft.Attachments,
		CreatedAt:      e.opts.Now(),
		Status:         domain.StatusSending,
	}
	snap := e.mergeLocked(domain.FromOptimisticSend, false, placeholder)
	e.mu.Unlock()

	e.publish(snap)
	return placeholder.ID, nil
}

// ResolveSend replace the placeholder with the confirmed message, or remove
// it and return the send error
func (e *Engine) ResolveSend(placeholderID string, outcome domain.SendOutcome) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return outcome.Err
	}
	e.messages, _ = Remove(e.messages, placeholderID)

	var snap EngineSnapshot
	if outcome.Err != nil {
		snap = e.snapshotLocked()
	} else {
		confirmed := outcome.Message
		if confirmed.Status == "" || confirmed.Status == domain.StatusSending {
			confirmed.Status = domain.StatusSent
		}
		if confirmed.ConversationID == "" {
			confirmed.ConversationID = e.conversationID
		}
		snap = e.mergeLocked(domain.FromSendConfirm, false, confirmed)
	}
	e.mu.Unlock()

	e.publish(snap)
	return outcome.Err
}

// Watermark latest confirmed timestamp seen
func (e *Engine) Watermark() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark
}

// Snapshot current state
func (e *Engine) Snapshot() EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close discard all state; later calls become no-ops
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.messages = nil
	e.pending = nil
	e.cursor = ""
	e.hasMore = false
}

// Closed report whether Close was called
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) mergeLocked(source domain.Source, advance bool, msgs ...domain.Message) EngineSnapshot {
	var dups int
	e.messages, dups = Upsert(e.messages, msgs...)
	if advance {
		if latest, ok := Latest(msgs); ok && latest.After(e.watermark) {
			e.watermark = latest
		}
	}
	metrics.MessagesMerged.WithLabelValues(string(source)).Add(float64(len(msgs) - dups))
	if dups > 0 {
		metrics.DuplicatesCollapsed.WithLabelValues(string(source)).Add(float64(dups))
	}
	return e.snapshotLocked()
}

func (e *Engine) armLocked() bool {
	if e.pollingArmed {
		return false
	}
	e.pollingArmed = true
	return true
}

func (e *Engine) armPolling() {
	e.log.Info("arming polling fallback")
	if e.opts.OnArmPolling != nil {
		e.opts.OnArmPolling()
	}
}

func (e *Engine) snapshotLocked() EngineSnapshot {
	e.version++
	msgs := make([]domain.Message, len(e.messages))
	copy(msgs, e.messages)
	return EngineSnapshot{
		Version:           e.version,
		ConversationID:    e.conversationID,
		Messages:          msgs,
		HasMore:           e.hasMore,
		Seeded:            e.seeded,
		LoadingOlder:      e.loadingOlder,
		Watermark:         e.watermark,
		ChannelState:      e.channelState,
		ChannelUnreliable: e.unreliable,
		PollingArmed:      e.pollingArmed,
	}
}

// publish deliver snap unless a newer one already went out
func (e *Engine) publish(snap EngineSnapshot) {
	if e.opts.OnChange == nil {
		return
	}
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if snap.Version <= e.published {
		return
	}
	e.published = snap.Version
	e.opts.OnChange(snap)
}
