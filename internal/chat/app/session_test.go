package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	"group_chat_client/pkg/config"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentChannel live channel that never connects
type silentChannel struct {
	mu     sync.Mutex
	opened []string
	closed int
}

func (c *silentChannel) Open(conversationID string, _ repository.ChannelListener) repository.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, conversationID)
	return &silentSub{c: c}
}

type silentSub struct {
	c    *silentChannel
	once sync.Once
}

func (s *silentSub) Close() {
	s.once.Do(func() {
		s.c.mu.Lock()
		s.c.closed++
		s.c.mu.Unlock()
	})
}

type sessionFixture struct {
	store    *repository.MemoryStore
	identity *staticIdentity
	session  *SessionController
}

func newSessionFixture(t *testing.T, channel repository.LiveChannel, cfg config.SyncConfig) *sessionFixture {
	t.Helper()
	logger.SetNewNop()

	store := repository.NewMemoryStore()
	identity := signedIn()
	if channel == nil {
		channel = store
	}
	groups := NewGroupUseCase(store, identity)
	s := NewSessionController(store, channel, identity, groups, cfg)
	t.Cleanup(s.Close)
	return &sessionFixture{store: store, identity: identity, session: s}
}

func TestSession_OpenSeedsView(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100), msg("m2", 200))

	require.NoError(t, f.session.Open(context.Background(), room))

	view := f.session.View()
	assert.Equal(t, domain.SessionActive, f.session.State())
	assert.Equal(t, room, view.ConversationID)
	assert.False(t, view.IsLoading)
	assert.Equal(t, []string{"m2", "m1"}, ids(view.Messages))
	assert.Equal(t, []string{"m1", "m2"}, ids(view.Chronological()))
	assert.Equal(t, domain.ChannelActive, view.ChannelState)
}

func TestSession_OpenRequiresIdentity(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.identity.ident = nil

	err := f.session.Open(context.Background(), room)
	assert.ErrorIs(t, err, errprocess.ErrUnauthenticated)
	assert.Equal(t, domain.SessionIdle, f.session.State())
	assert.Equal(t, 0, f.store.Subscribers(room))
}

func TestSession_OpenFirstPageFailure(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.FetchErr = errprocess.Wrap(errprocess.ErrNoConnectivity, errors.New("offline"))

	err := f.session.Open(context.Background(), room)
	assert.True(t, errprocess.IsNetwork(err))
	assert.Equal(t, domain.SessionIdle, f.session.State())
	assert.Equal(t, 0, f.store.Subscribers(room))
}

func TestSession_SwitchTearsDownPrevious(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100))
	other := msg("o1", 150)
	other.ConversationID = "room-2"
	f.store.Put(other)

	require.NoError(t, f.session.Open(context.Background(), room))
	require.NoError(t, f.session.Open(context.Background(), "room-2"))

	assert.Equal(t, 0, f.store.Subscribers(room))
	assert.Equal(t, 1, f.store.Subscribers("room-2"))

	// late event for the old conversation
	late := msg("m9", 900)
	f.store.Deliver(late)

	view := f.session.View()
	assert.Equal(t, "room-2", view.ConversationID)
	assert.Equal(t, []string{"o1"}, ids(view.Messages))
}

func TestSession_SendValidation(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})

	_, err := f.session.Send(context.Background(), domain.Draft{Text: "hi"})
	assert.ErrorIs(t, err, errprocess.ErrNoConversation)

	require.NoError(t, f.session.Open(context.Background(), room))

	_, err = f.session.Send(context.Background(), domain.Draft{Text: "   "})
	assert.ErrorIs(t, err, errprocess.ErrEmptyDraft)

	f.identity.ident = nil
	_, err = f.session.Send(context.Background(), domain.Draft{Text: "hi"})
	assert.ErrorIs(t, err, errprocess.ErrUnauthenticated)

	assert.Empty(t, f.session.View().Messages)
}

func TestSession_SendSuccess(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	sent, err := f.session.Send(context.Background(), domain.Draft{Text: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, domain.StatusSent, sent.Status)

	view := f.session.View()
	// the store also echoed it on the live channel
	assert.Equal(t, 1, countID(view.Messages, sent.ID))
	assert.Len(t, view.Messages, 2)
	for _, m := range view.Messages {
		assert.NotEqual(t, domain.StatusSending, m.Status)
	}
}

func TestSession_SendFailureRemovesPlaceholder(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	var (
		mu      sync.Mutex
		sending bool
	)
	sub := f.session.Subscribe(func(v domain.View) {
		for _, m := range v.Messages {
			if m.Status == domain.StatusSending {
				mu.Lock()
				sending = true
				mu.Unlock()
			}
		}
	})
	defer sub.Dispose()

	f.store.SendErr = errprocess.Wrap(errprocess.ErrNoConnectivity, errors.New("offline"))
	_, err := f.session.Send(context.Background(), domain.Draft{Text: "hello"})
	assert.True(t, errprocess.IsNetwork(err))

	mu.Lock()
	assert.True(t, sending, "placeholder was never shown")
	mu.Unlock()
	assert.Equal(t, []string{"m1"}, ids(f.session.View().Messages))
}

func TestSession_SendRejected(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	require.NoError(t, f.session.Open(context.Background(), room))

	f.store.SendErr = errprocess.Wrap(errprocess.ErrRejected, errors.New("too long"))
	_, err := f.session.Send(context.Background(), domain.Draft{Text: "hello"})
	assert.ErrorIs(t, err, errprocess.ErrRejected)
	assert.Contains(t, err.Error(), "too long")
	assert.Empty(t, f.session.View().Messages)
}

func TestSession_LoadOlder(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{PageSize: 30})
	for i := 0; i < 35; i++ {
		f.store.Put(msg(fmt.Sprintf("m%02d", i), int64(100+i)))
	}
	require.NoError(t, f.session.Open(context.Background(), room))

	view := f.session.View()
	assert.Len(t, view.Messages, 30)
	assert.True(t, view.HasMore)

	require.NoError(t, f.session.LoadOlder(context.Background()))
	view = f.session.View()
	assert.Len(t, view.Messages, 35)
	assert.False(t, view.HasMore)
	assert.False(t, view.IsLoadingMore)
	assert.True(t, sortedNewestFirst(view.Messages))
	assert.Equal(t, "m00", view.Messages[34].ID)
}

func TestSession_LoadOlderWithoutConversation(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	assert.ErrorIs(t, f.session.LoadOlder(context.Background()), errprocess.ErrNoConversation)
}

func TestSession_LoadGroupsOpensFirst(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.SeedDemo(time.Now(), "member-1")

	groups, err := f.session.LoadGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, repository.DemoGroupID, groups[0].ID)
	assert.Contains(t, groups[0].MemberIDs, "member-1")

	assert.Equal(t, repository.DemoGroupID, f.session.ConversationID())
	assert.Equal(t, []string{"msg-2", "msg-1"}, ids(f.session.View().Messages))
}

func TestSession_OpenGroupChecksMembership(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.SeedDemo(time.Now())

	err := f.session.OpenGroup(context.Background(), repository.DemoGroupID)
	assert.ErrorIs(t, err, errprocess.ErrRejected)
	assert.Equal(t, domain.SessionIdle, f.session.State())
}

func TestSession_CloseReturnsToIdle(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	f.session.Close()
	f.session.Close()

	view := f.session.View()
	assert.Equal(t, domain.SessionIdle, view.State)
	assert.Empty(t, view.ConversationID)
	assert.Empty(t, view.Messages)
	assert.Equal(t, 0, f.store.Subscribers(room))

	_, err := f.session.Send(context.Background(), domain.Draft{Text: "hi"})
	assert.ErrorIs(t, err, errprocess.ErrNoConversation)
}

func TestSession_SubscribeAndDispose(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{})
	f.store.Put(msg("m1", 100))

	var (
		mu    sync.Mutex
		views []domain.View
	)
	sub := f.session.Subscribe(func(v domain.View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	require.NoError(t, f.session.Open(context.Background(), room))
	f.store.Deliver(msg("m2", 200))

	mu.Lock()
	require.NotEmpty(t, views)
	assert.Equal(t, domain.SessionIdle, views[0].State)
	sawLoading := false
	for i, v := range views {
		if v.IsLoading {
			sawLoading = true
		}
		if i > 0 {
			assert.Greater(t, v.Version, views[i-1].Version)
		}
	}
	last := views[len(views)-1]
	n := len(views)
	mu.Unlock()

	assert.True(t, sawLoading)
	assert.Equal(t, []string{"m2", "m1"}, ids(last.Messages))

	sub.Dispose()
	sub.Dispose()
	f.store.Deliver(msg("m3", 300))

	mu.Lock()
	assert.Len(t, views, n)
	mu.Unlock()
}

// 情境 E: channel never connects, polling takes over after the grace period
func TestSession_PollingTakesOverWhenChannelSilent(t *testing.T) {
	channel := &silentChannel{}
	f := newSessionFixture(t, channel, config.SyncConfig{
		GracePeriod:  20 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	assert.False(t, f.session.View().PollingActive)

	f.store.Put(msg("m2", 200))
	assert.Eventually(t, func() bool {
		return countID(f.session.View().Messages, "m2") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.session.View().PollingActive)

	f.session.Close()
	channel.mu.Lock()
	assert.Equal(t, 1, channel.closed)
	channel.mu.Unlock()
}

func TestSession_ChannelErrorArmsPolling(t *testing.T) {
	f := newSessionFixture(t, nil, config.SyncConfig{
		GracePeriod:  time.Hour,
		PollInterval: 5 * time.Millisecond,
	})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	f.store.SetChannelState(room, domain.ChannelError, errors.New("socket reset"))
	// missed while the channel was down
	f.store.Put(msg("m2", 200))

	assert.Eventually(t, func() bool {
		return countID(f.session.View().Messages, "m2") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ChannelError, f.session.View().ChannelState)
}

// arming decided just before a teardown must not leave a poller running
func TestSession_ArmAfterTeardownDoesNotStartPoller(t *testing.T) {
	f := newSessionFixture(t, &silentChannel{}, config.SyncConfig{
		GracePeriod:  time.Hour,
		PollInterval: time.Millisecond,
	})
	f.store.Put(msg("m1", 100))
	require.NoError(t, f.session.Open(context.Background(), room))

	f.session.mu.Lock()
	conv := f.session.current
	f.session.mu.Unlock()
	require.NotNil(t, conv)

	f.session.Close()
	conv.engine.opts.OnArmPolling()

	assert.False(t, conv.poller.Running())
	assert.Equal(t, domain.SessionIdle, f.session.State())
}
