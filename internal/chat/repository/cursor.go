package repository

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	errprocess "group_chat_client/pkg/err"

	"github.com/pkg/errors"
)

// pageCursor position of the oldest message of a page; the next page starts
// strictly before it
type pageCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodeCursor(c pageCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMilli(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, errprocess.Wrap(errprocess.ErrInvalidArgument, errors.Wrap(err, "decode cursor"))
	}
	ms, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return pageCursor{}, errprocess.Wrap(errprocess.ErrInvalidArgument, errors.Errorf("malformed cursor %q", s))
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return pageCursor{}, errprocess.Wrap(errprocess.ErrInvalidArgument, errors.Wrap(err, "cursor timestamp"))
	}
	return pageCursor{CreatedAt: time.UnixMilli(millis).UTC(), ID: id}, nil
}

// before report whether a message at (t, id) sorts after the cursor in a newest-first listing
func (c pageCursor) before(t time.Time, id string) bool {
	t = t.Truncate(time.Millisecond)
	if !t.Equal(c.CreatedAt) {
		return t.Before(c.CreatedAt)
	}
	return id < c.ID
}
