package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageAuthority(t *testing.T) {
	temp := Message{ID: TempIDPrefix + "1", Status: StatusSending}
	srv := Message{ID: "srv-1", Status: StatusSent}

	assert.True(t, temp.IsOptimistic())
	assert.False(t, srv.IsOptimistic())
	assert.Greater(t, srv.Authority(), temp.Authority())
}

func TestMessageNewerTieBreak(t *testing.T) {
	at := time.Unix(100, 0)
	a := Message{ID: "b", CreatedAt: at}
	b := Message{ID: "a", CreatedAt: at}
	c := Message{ID: "z", CreatedAt: at.Add(-time.Second)}

	assert.True(t, a.Newer(b))
	assert.False(t, b.Newer(a))
	assert.True(t, b.Newer(c))
}

func TestDraftEmpty(t *testing.T) {
	assert.True(t, Draft{Text: "   "}.Empty())
	assert.False(t, Draft{Text: "hi"}.Empty())
	assert.False(t, Draft{Attachments: []Attachment{{Key: "k"}}}.Empty())
}

func TestViewChronological(t *testing.T) {
	v := View{Messages: []Message{{ID: "3"}, {ID: "2"}, {ID: "1"}}}
	got := v.Chronological()
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "3", v.Messages[0].ID)
}
