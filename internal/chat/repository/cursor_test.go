package repository

import (
	"errors"
	"testing"
	"time"

	errprocess "group_chat_client/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTripKeepsMillis(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	got, err := decodeCursor(encodeCursor(pageCursor{CreatedAt: ts, ID: "m|1"}))
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(ts.Truncate(time.Millisecond)))
	assert.Equal(t, "m|1", got.ID)
}

func TestCursor_DecodeRejectsGarbage(t *testing.T) {
	for _, c := range []string{"%%%", "bm8tc2VwYXJhdG9y", "YWJjfA", "eHh4fG0x"} {
		_, err := decodeCursor(c)
		assert.True(t, errors.Is(err, errprocess.ErrInvalidArgument), c)
	}
}

func TestCursor_Before(t *testing.T) {
	base := time.Unix(100, 0).UTC()
	c := pageCursor{CreatedAt: base, ID: "m5"}

	assert.True(t, c.before(base.Add(-time.Millisecond), "m9"))
	assert.True(t, c.before(base, "m4"))
	assert.False(t, c.before(base, "m5"))
	assert.False(t, c.before(base, "m6"))
	assert.False(t, c.before(base.Add(time.Millisecond), "m0"))
	// sub-millisecond precision is ignored
	assert.True(t, c.before(base.Add(500*time.Microsecond), "m4"))
}
