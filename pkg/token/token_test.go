package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	signed, err := GenerateJWT("user-1", "Person One", "chat_client")
	require.NoError(t, err)

	claims, err := ParseJWT(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.MemberID)
	assert.Equal(t, "Person One", claims.DisplayName)
	assert.Equal(t, "chat_client", claims.Issuer)
}

func TestParseJWT_Expired(t *testing.T) {
	signed, err := GenerateJWTWithExpiry("user-1", "Person One", "chat_client", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = ParseJWT(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseJWT_Garbage(t *testing.T) {
	_, err := ParseJWT("not-a-token")
	assert.Error(t, err)
}
