package repository

import (
	"sync"

	"group_chat_client/internal/chat/domain"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"
	"group_chat_client/pkg/token"

	"go.uber.org/zap"
)

// JWTTokenStore keep the bearer token of the signed in member in memory
type JWTTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewJWTTokenStore create JWTTokenStore
func NewJWTTokenStore() *JWTTokenStore {
	return &JWTTokenStore{}
}

// SetToken validate then store the token
func (s *JWTTokenStore) SetToken(t string) error {
	if _, err := token.ParseJWT(t); err != nil {
		return errprocess.Wrap(errprocess.ErrUnauthenticated, err)
	}
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
	return nil
}

// Clear forget the token
func (s *JWTTokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Token raw bearer token
func (s *JWTTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// CurrentIdentity identity of the stored token; nil when missing or expired
func (s *JWTTokenStore) CurrentIdentity() *domain.Identity {
	t := s.Token()
	if t == "" {
		return nil
	}
	claims, err := token.ParseJWT(t)
	if err != nil {
		logger.Log.Debug("stored token unusable", zap.Error(err))
		return nil
	}
	return &domain.Identity{ID: claims.MemberID, DisplayName: claims.DisplayName}
}
