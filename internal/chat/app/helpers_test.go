package app

import (
	"context"
	"time"

	"group_chat_client/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

const room = "room-1"

// MockFetcher Mock MessageFetcher
type MockFetcher struct {
	mock.Mock
}

// FetchPage moke fetch page
func (m *MockFetcher) FetchPage(ctx context.Context, conversationID string, limit int, cursor string) (domain.Page, error) {
	args := m.Called(ctx, conversationID, limit, cursor)
	return args.Get(0).(domain.Page), args.Error(1)
}

// staticIdentity identity provider returning a fixed member
type staticIdentity struct {
	ident *domain.Identity
}

func (s *staticIdentity) CurrentIdentity() *domain.Identity {
	return s.ident
}

func signedIn() *staticIdentity {
	return &staticIdentity{ident: &domain.Identity{ID: "member-1", DisplayName: "Member One"}}
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func msg(id string, sec int64) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: room,
		SenderID:       "member-2",
		SenderName:     "Member Two",
		Text:           "text " + id,
		CreatedAt:      at(sec),
		Status:         domain.StatusSent,
	}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func countID(msgs []domain.Message, id string) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

// sortedNewestFirst order invariant of a view
func sortedNewestFirst(msgs []domain.Message) bool {
	for i := 1; i < len(msgs); i++ {
		if !msgs[i-1].Newer(msgs[i]) {
			return false
		}
	}
	return true
}
