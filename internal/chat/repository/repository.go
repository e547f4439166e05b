package repository

import (
	"context"
	"time"

	"group_chat_client/internal/chat/domain"
)

// MessageFetcher paginated message source; pages are newest first
type MessageFetcher interface {
	FetchPage(ctx context.Context, conversationID string, limit int, cursor string) (domain.Page, error)
}

// MessageSender send endpoint
type MessageSender interface {
	Send(ctx context.Context, conversationID string, sender domain.Identity, draft domain.Draft) (domain.Message, error)
}

// MessageRepository fetch gateway plus send endpoint
type MessageRepository interface {
	MessageFetcher
	MessageSender
}

// ChannelListener callbacks of a live update subscription
type ChannelListener struct {
	OnMessage func(domain.Message)
	OnState   func(state domain.ChannelState, err error)
}

func (l ChannelListener) message(m domain.Message) {
	if l.OnMessage != nil {
		l.OnMessage(m)
	}
}

func (l ChannelListener) state(s domain.ChannelState, err error) {
	if l.OnState != nil {
		l.OnState(s, err)
	}
}

// Subscription handle of an open live channel; Close is idempotent
type Subscription interface {
	Close()
}

// LiveChannel real-time event source; Open never blocks
type LiveChannel interface {
	Open(conversationID string, l ChannelListener) Subscription
}

// IdentityProvider auth/session provider; nil means signed out
type IdentityProvider interface {
	CurrentIdentity() *domain.Identity
}

// GroupRepository group directory
type GroupRepository interface {
	ListForMember(ctx context.Context, memberID string) ([]domain.Group, error)
	FindByID(ctx context.Context, groupID string) (*domain.Group, error)
	CreateGroup(ctx context.Context, g *domain.Group) error
}

// AttachmentStore presigned url issuer
type AttachmentStore interface {
	Bucket() string
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// TokenStore credential storage of the signed in member
type TokenStore interface {
	IdentityProvider
	SetToken(token string) error
	Clear()
}
