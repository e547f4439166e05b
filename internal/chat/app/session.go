package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	"group_chat_client/pkg/config"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"
	"group_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// conversation everything owned by one open conversation
type conversation struct {
	id         string
	generation uint64
	engine     *Engine
	poller     *Poller
	sub        repository.Subscription
	grace      *time.Timer
	loading    bool
}

// SessionController opens and tears down exactly one engine per conversation
// and publishes the merged view
type SessionController struct {
	messages repository.MessageRepository
	channel  repository.LiveChannel
	identity repository.IdentityProvider
	groups   *GroupUseCase
	cfg      config.SyncConfig

	// Now / NewID are passed to every engine; tests replace them
	Now   func() time.Time
	NewID func() string

	switchMu sync.Mutex

	mu         sync.Mutex
	state      domain.SessionState
	generation uint64
	current    *conversation
	version    uint64
	view       domain.View
	subs       map[uint64]func(domain.View)
	nextSub    uint64

	deliverMu sync.Mutex
	delivered uint64
}

// NewSessionController create SessionController
func NewSessionController(
	messages repository.MessageRepository,
	channel repository.LiveChannel,
	identity repository.IdentityProvider,
	groups *GroupUseCase,
	cfg config.SyncConfig,
) *SessionController {
	return &SessionController{
		messages: messages,
		channel:  channel,
		identity: identity,
		groups:   groups,
		cfg:      cfg.WithDefaults(),
		Now:      time.Now,
		state:    domain.SessionIdle,
		view:     domain.View{State: domain.SessionIdle},
		subs:     make(map[uint64]func(domain.View)),
	}
}

// Open switch to conversationID. The previous conversation is torn down
// completely before the new one starts loading.
func (c *SessionController) Open(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errprocess.ErrInvalidArgument
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.teardown()

	if c.identity.CurrentIdentity() == nil {
		return errprocess.ErrUnauthenticated
	}

	conv := &conversation{id: conversationID, loading: true}
	conv.poller = NewPoller(c.messages, c.identity, c.cfg.PollInterval, c.cfg.PollLimit)

	c.mu.Lock()
	c.generation++
	conv.generation = c.generation
	gen := conv.generation
	c.mu.Unlock()

	var engine *Engine
	engine = NewEngine(conversationID, c.messages, EngineOptions{
		PageSize:        c.cfg.PageSize,
		GracePeriod:     c.cfg.GracePeriod,
		PollWhenHealthy: c.cfg.PollWhenHealthy,
		OnChange:        func(s EngineSnapshot) { c.onEngineChange(gen, s) },
		OnArmPolling: func() {
			conv.poller.Start(conversationID, engine.Watermark, engine.IngestFromPoll)
		},
		Now:   c.Now,
		NewID: c.NewID,
	})
	conv.engine = engine

	c.mu.Lock()
	c.current = conv
	c.state = domain.SessionLoading
	view := c.publishLocked()
	c.mu.Unlock()
	c.deliver(view)

	metrics.SessionSwitches.Inc()
	logger.Log.Info("open conversation", zap.String("conversation_id", conversationID))

	sub := c.channel.Open(conversationID, repository.ChannelListener{
		OnMessage: engine.IngestFromChannel,
		OnState:   engine.ChannelStateChanged,
	})
	c.mu.Lock()
	conv.sub = sub
	c.mu.Unlock()

	page, err := c.messages.FetchPage(ctx, conversationID, c.cfg.PageSize, "")
	if err != nil {
		logger.Log.Error("load first page", zap.String("conversation_id", conversationID), zap.Error(err))
		c.teardown()
		return err
	}

	engine.Seed(page)
	conv.poller.MarkInitialized()

	c.mu.Lock()
	if c.current != conv {
		c.mu.Unlock()
		return nil
	}
	conv.loading = false
	c.state = domain.SessionActive
	conv.grace = time.AfterFunc(c.cfg.GracePeriod, func() {
		engine.HealthCheck(c.Now())
	})
	view = c.publishLocked()
	c.mu.Unlock()
	c.deliver(view)
	return nil
}

// Close tear down the open conversation and return to idle
func (c *SessionController) Close() {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	c.teardown()
}

// Send validate the draft, show it optimistically and reconcile it with the
// backend result. A failed send is removed and its error returned.
func (c *SessionController) Send(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	conv := c.currentConversation()
	if conv == nil {
		return domain.Message{}, errprocess.ErrNoConversation
	}
	ident := c.identity.CurrentIdentity()
	if ident == nil {
		return domain.Message{}, errprocess.ErrUnauthenticated
	}
	draft.Text = strings.TrimSpace(draft.Text)
	if draft.Empty() {
		return domain.Message{}, errprocess.ErrEmptyDraft
	}

	placeholderID, err := conv.engine.SendOptimistic(draft, *ident)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := c.messages.Send(ctx, conv.id, *ident, draft)
	if err = conv.engine.ResolveSend(placeholderID, domain.SendOutcome{Message: msg, Err: err}); err != nil {
		metrics.Sends.WithLabelValues(sendOutcome(err)).Inc()
		logger.Log.Warn("send failed", zap.String("conversation_id", conv.id), zap.Error(err))
		return domain.Message{}, err
	}
	metrics.Sends.WithLabelValues(metrics.ResultOK).Inc()
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	return msg, nil
}

// LoadOlder load the page before the oldest loaded message
func (c *SessionController) LoadOlder(ctx context.Context) error {
	conv := c.currentConversation()
	if conv == nil {
		return errprocess.ErrNoConversation
	}
	if c.identity.CurrentIdentity() == nil {
		return errprocess.ErrUnauthenticated
	}
	return conv.engine.LoadOlderPage(ctx)
}

// LoadGroups list the member's groups and open the first one when nothing is open
func (c *SessionController) LoadGroups(ctx context.Context) ([]domain.GroupView, error) {
	groups, err := c.groups.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 && c.currentConversation() == nil {
		if err := c.Open(ctx, groups[0].ID); err != nil {
			return groups, err
		}
	}
	return groups, nil
}

// OpenGroup check membership then open the group
func (c *SessionController) OpenGroup(ctx context.Context, groupID string) error {
	if _, err := c.groups.GetGroup(ctx, groupID); err != nil {
		return err
	}
	return c.Open(ctx, groupID)
}

// State session state
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View last published view
func (c *SessionController) View() domain.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// ConversationID open conversation, empty when idle
func (c *SessionController) ConversationID() string {
	if conv := c.currentConversation(); conv != nil {
		return conv.id
	}
	return ""
}

// ViewSubscription handle returned by Subscribe
type ViewSubscription struct {
	once    sync.Once
	dispose func()
}

// Dispose stop receiving views; safe to call more than once
func (s *ViewSubscription) Dispose() {
	s.once.Do(s.dispose)
}

// Subscribe receive every published view, starting with the current one
func (c *SessionController) Subscribe(fn func(domain.View)) *ViewSubscription {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	view := c.view
	c.mu.Unlock()

	fn(view)
	return &ViewSubscription{dispose: func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}}
}

func (c *SessionController) currentConversation() *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// teardown caller holds switchMu
func (c *SessionController) teardown() {
	c.mu.Lock()
	conv := c.current
	c.current = nil
	c.generation++
	c.state = domain.SessionIdle
	var view domain.View
	if conv != nil {
		view = c.publishLocked()
	}
	c.mu.Unlock()

	if conv == nil {
		return
	}
	if conv.grace != nil {
		conv.grace.Stop()
	}
	if conv.sub != nil {
		conv.sub.Close()
	}
	conv.poller.Stop()
	conv.engine.Close()
	metrics.ViewSize.Set(0)

	logger.Log.Info("close conversation", zap.String("conversation_id", conv.id))
	c.deliver(view)
}

func (c *SessionController) onEngineChange(gen uint64, s EngineSnapshot) {
	c.mu.Lock()
	if c.current == nil || c.current.generation != gen {
		c.mu.Unlock()
		return
	}
	c.view.Messages = s.Messages
	c.view.HasMore = s.HasMore
	c.view.IsLoadingMore = s.LoadingOlder
	c.view.ChannelState = s.ChannelState
	c.view.PollingActive = s.PollingArmed
	view := c.publishLocked()
	c.mu.Unlock()

	metrics.ViewSize.Set(float64(len(s.Messages)))
	c.deliver(view)
}

func (c *SessionController) publishLocked() domain.View {
	c.version++
	v := domain.View{Version: c.version, State: c.state}
	if conv := c.current; conv != nil {
		v.ConversationID = conv.id
		v.IsLoading = conv.loading
		if c.view.ConversationID == conv.id {
			v.Messages = c.view.Messages
			v.HasMore = c.view.HasMore
			v.IsLoadingMore = c.view.IsLoadingMore
			v.ChannelState = c.view.ChannelState
			v.PollingActive = c.view.PollingActive
		}
	}
	c.view = v
	return v
}

func (c *SessionController) deliver(v domain.View) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if v.Version <= c.delivered {
		return
	}
	c.delivered = v.Version

	c.mu.Lock()
	fns := make([]func(domain.View), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func sendOutcome(err error) string {
	switch {
	case errprocess.IsNetwork(err):
		return "no_connectivity"
	case errprocess.IsAuth(err):
		return "unauthenticated"
	default:
		return "rejected"
	}
}
