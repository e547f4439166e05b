package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"group_chat_client/internal/chat/domain"
	errprocess "group_chat_client/pkg/err"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DemoGroupID group seeded in local mode
const DemoGroupID = "demo-group"

// MemoryStore in-process backend for local mode. It serves as fetch gateway,
// send endpoint, live channel, group directory and attachment presigner.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]domain.Message
	groups   map[string]domain.Group
	subs     map[string]map[uint64]ChannelListener
	nextSub  uint64
	bucket   string

	// Now clock used for sent messages
	Now func() time.Time
	// SendErr when set, Send fails with it
	SendErr error
	// FetchErr when set, FetchPage fails with it
	FetchErr error
}

// NewMemoryStore create an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]domain.Message),
		groups:   make(map[string]domain.Group),
		subs:     make(map[string]map[uint64]ChannelListener),
		bucket:   "local-attachments",
		Now:      time.Now,
	}
}

// SeedDemo 建立 demo 群組與兩則訊息
func (s *MemoryStore) SeedDemo(now time.Time, memberIDs ...string) {
	members := []domain.GroupMember{{GroupID: DemoGroupID, MemberID: "person1"}, {GroupID: DemoGroupID, MemberID: "person2"}}
	for _, id := range memberIDs {
		members = append(members, domain.GroupMember{GroupID: DemoGroupID, MemberID: id})
	}
	_ = s.CreateGroup(context.Background(), &domain.Group{
		ID:        DemoGroupID,
		Name:      "Demo Group",
		Members:   members,
		CreatedAt: now,
	})
	s.Put(
		domain.Message{
			ID: "msg-1", ConversationID: DemoGroupID, SenderID: "person1", SenderName: "Person One",
			Text: "Hello! Welcome to the demo group chat.", CreatedAt: now.Add(-time.Hour), Status: domain.StatusSent,
		},
		domain.Message{
			ID: "msg-2", ConversationID: DemoGroupID, SenderID: "person2", SenderName: "Person Two",
			Text: "Hi there! This is great.", CreatedAt: now.Add(-30 * time.Minute), Status: domain.StatusSent,
		},
	)
}

// Put store messages without notifying subscribers
func (s *MemoryStore) Put(msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.putLocked(m)
	}
}

// Deliver push msg to the conversation's subscribers without storing it
func (s *MemoryStore) Deliver(msg domain.Message) {
	for _, l := range s.listeners(msg.ConversationID) {
		l.message(msg)
	}
}

// SetChannelState push a state transition to the conversation's subscribers
func (s *MemoryStore) SetChannelState(conversationID string, state domain.ChannelState, err error) {
	for _, l := range s.listeners(conversationID) {
		l.state(state, err)
	}
}

// Subscribers number of open subscriptions on conversationID
func (s *MemoryStore) Subscribers(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[conversationID])
}

// FetchPage newest first, same cursor format as the mongo gateway
func (s *MemoryStore) FetchPage(ctx context.Context, conversationID string, limit int, cursor string) (domain.Page, error) {
	if limit <= 0 || conversationID == "" {
		return domain.Page{}, errprocess.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return domain.Page{}, errprocess.Wrap(errprocess.ErrNoConnectivity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return domain.Page{}, s.FetchErr
	}

	all := s.messages[conversationID]
	start := 0
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return domain.Page{}, err
		}
		start = sort.Search(len(all), func(i int) bool {
			return c.before(all[i].CreatedAt, all[i].ID)
		})
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := domain.Page{Messages: append([]domain.Message(nil), all[start:end]...)}
	if end < len(all) && end > start {
		last := all[end-1]
		page.HasMore = true
		page.NextCursor = encodeCursor(pageCursor{CreatedAt: last.CreatedAt.Truncate(time.Millisecond), ID: last.ID})
	}
	return page, nil
}

// Send store the message and publish it to live subscribers
func (s *MemoryStore) Send(ctx context.Context, conversationID string, sender domain.Identity, draft domain.Draft) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, errprocess.Wrap(errprocess.ErrNoConnectivity, err)
	}
	text := strings.TrimSpace(draft.Text)
	if conversationID == "" || (text == "" && len(draft.Attachments) == 0) {
		return domain.Message{}, errprocess.Wrap(errprocess.ErrRejected, errors.New("empty message"))
	}

	s.mu.Lock()
	if s.SendErr != nil {
		err := s.SendErr
		s.mu.Unlock()
		return domain.Message{}, err
	}
	if _, ok := s.groups[conversationID]; !ok && len(s.groups) > 0 {
		s.mu.Unlock()
		return domain.Message{}, errprocess.Wrap(errprocess.ErrRejected, errors.Errorf("unknown group %s", conversationID))
	}
	msg := domain.Message{
		ID:             "msg-" + uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Text:           text,
		Attachments:    draft.Attachments,
		CreatedAt:      s.Now().UTC().Truncate(time.Millisecond),
		Status:         domain.StatusSent,
	}
	s.putLocked(msg)
	s.mu.Unlock()

	s.Deliver(msg)
	return msg, nil
}

// Open register l on conversationID; the in-process channel is active at once
func (s *MemoryStore) Open(conversationID string, l ChannelListener) Subscription {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[conversationID] == nil {
		s.subs[conversationID] = make(map[uint64]ChannelListener)
	}
	s.subs[conversationID][id] = l
	s.mu.Unlock()

	l.state(domain.ChannelActive, nil)
	return &memorySubscription{close: func() {
		s.mu.Lock()
		delete(s.subs[conversationID], id)
		s.mu.Unlock()
	}}
}

// CreateGroup add a group
func (s *MemoryStore) CreateGroup(_ context.Context, g *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return errprocess.Wrap(errprocess.ErrRejected, errors.Errorf("group %s exists", g.ID))
	}
	s.groups[g.ID] = *g
	return nil
}

// ListForMember groups containing memberID
func (s *MemoryStore) ListForMember(_ context.Context, memberID string) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Group
	for _, g := range s.groups {
		for _, m := range g.Members {
			if m.MemberID == memberID {
				out = append(out, g)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindByID nil when missing
func (s *MemoryStore) FindByID(_ context.Context, groupID string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// Bucket local attachment bucket
func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// PresignPut local placeholder url
func (s *MemoryStore) PresignPut(_ context.Context, key string, expiry time.Duration) (string, error) {
	return s.presign("PUT", key, expiry), nil
}

// PresignGet local placeholder url
func (s *MemoryStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return s.presign("GET", key, expiry), nil
}

func (s *MemoryStore) presign(method, key string, expiry time.Duration) string {
	return fmt.Sprintf("memory://%s/%s?method=%s&expires=%d", s.bucket, key, method, s.Now().Add(expiry).Unix())
}

func (s *MemoryStore) putLocked(m domain.Message) {
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Millisecond)
	msgs := s.messages[m.ConversationID]
	for i := range msgs {
		if msgs[i].ID == m.ID {
			msgs = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	// newest first on (created_at, id)
	i := sort.Search(len(msgs), func(i int) bool { return m.Newer(msgs[i]) })
	msgs = append(msgs, domain.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.messages[m.ConversationID] = msgs
}

func (s *MemoryStore) listeners(conversationID string) []ChannelListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelListener, 0, len(s.subs[conversationID]))
	for _, l := range s.subs[conversationID] {
		out = append(out, l)
	}
	return out
}

type memorySubscription struct {
	once  sync.Once
	close func()
}

// Close 可重複呼叫
func (s *memorySubscription) Close() {
	s.once.Do(s.close)
}
