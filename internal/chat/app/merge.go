package app

import (
	"sort"
	"time"

	"group_chat_client/internal/chat/domain"
)

// Upsert merge incoming into seq by id and return a newest-first sequence.
// A copy with lower authority never replaces a higher one; equal authority is
// last write wins. dups counts incoming messages whose id was already known.
func Upsert(seq []domain.Message, incoming ...domain.Message) (out []domain.Message, dups int) {
	out = make([]domain.Message, 0, len(seq)+len(incoming))
	index := make(map[string]int, len(seq)+len(incoming))

	put := func(m domain.Message) bool {
		if i, ok := index[m.ID]; ok {
			if m.Authority() >= out[i].Authority() {
				out[i] = m
			}
			return true
		}
		index[m.ID] = len(out)
		out = append(out, m)
		return false
	}

	for _, m := range seq {
		put(m)
	}
	for _, m := range incoming {
		if put(m) {
			dups++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Newer(out[j])
	})
	return out, dups
}

// Remove drop id from seq
func Remove(seq []domain.Message, id string) ([]domain.Message, bool) {
	for i, m := range seq {
		if m.ID == id {
			out := make([]domain.Message, 0, len(seq)-1)
			out = append(out, seq[:i]...)
			return append(out, seq[i+1:]...), true
		}
	}
	return seq, false
}

// Latest max created_at of msgs
func Latest(msgs []domain.Message) (time.Time, bool) {
	var (
		max time.Time
		ok  bool
	)
	for _, m := range msgs {
		if !ok || m.CreatedAt.After(max) {
			max, ok = m.CreatedAt, true
		}
	}
	return max, ok
}

// OfConversation keep messages that belong to conversationID
func OfConversation(conversationID string, msgs []domain.Message) []domain.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.ConversationID == "" || m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}
