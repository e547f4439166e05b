package domain

import (
	"strings"
	"time"
)

// MessageStatus definition message delivery status
type MessageStatus string

const (
	// StatusSending optimistic placeholder waiting for the backend
	StatusSending MessageStatus = "sending"
	// StatusSent confirmed by the backend
	StatusSent MessageStatus = "sent"
	// StatusFailed send failed
	StatusFailed MessageStatus = "failed"
)

// TempIDPrefix prefix of locally assigned provisional ids
const TempIDPrefix = "temp-"

// Attachment stored object recorded on a message
type Attachment struct {
	Bucket           string    `bson:"bucket" json:"bucket" mapstructure:"bucket"`
	Key              string    `bson:"key" json:"key" mapstructure:"key"`
	ContentType      string    `bson:"content_type" json:"content_type" mapstructure:"content_type"`
	OriginalFileName string    `bson:"original_file_name,omitempty" json:"original_file_name,omitempty" mapstructure:"original_file_name"`
	Size             int64     `bson:"size,omitempty" json:"size,omitempty" mapstructure:"size"`
	UploadedAt       time.Time `bson:"uploaded_at" json:"uploaded_at" mapstructure:"uploaded_at"`
}

// Message 表示一則聊天訊息
type Message struct {
	ID             string        `bson:"message_id" json:"id" mapstructure:"id"`
	ConversationID string        `bson:"room_id" json:"conversation_id" mapstructure:"conversation_id"`
	SenderID       string        `bson:"sender_id" json:"sender_id" mapstructure:"sender_id"`
	SenderName     string        `bson:"sender_name" json:"sender_name" mapstructure:"sender_name"`
	Text           string        `bson:"text,omitempty" json:"text,omitempty" mapstructure:"text"`
	Attachments    []Attachment  `bson:"attachments,omitempty" json:"attachments,omitempty" mapstructure:"attachments"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at" mapstructure:"created_at"`
	Status         MessageStatus `bson:"status" json:"status" mapstructure:"status"`
}

// IsOptimistic report whether the message is a local placeholder
func (m Message) IsOptimistic() bool {
	return m.Status == StatusSending || strings.HasPrefix(m.ID, TempIDPrefix)
}

// Authority rank of the copy; a higher rank replaces a lower one
func (m Message) Authority() int {
	if m.IsOptimistic() {
		return 0
	}
	return 1
}

// Newer report whether m sorts ahead of o in a newest-first sequence
func (m Message) Newer(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.After(o.CreatedAt)
	}
	return m.ID > o.ID
}

// Page one page of a conversation, newest first
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Draft outgoing message before it is sent
type Draft struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Empty report whether the draft carries nothing to send
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0
}

// Identity current signed in member
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SendOutcome result of a send; Err nil means Message is authoritative
type SendOutcome struct {
	Message Message
	Err     error
}

// UploadTicket presigned upload plus the attachment to record once uploaded
type UploadTicket struct {
	URL        string     `json:"url"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Attachment Attachment `json:"attachment"`
}
