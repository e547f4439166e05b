package repository

import (
	"context"
	"strings"
	"time"

	"group_chat_client/internal/chat/domain"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Publisher fan out a confirmed message to live subscribers
type Publisher interface {
	PublishMessage(ctx context.Context, msg domain.Message) error
}

type mongoMessageRepository struct {
	coll *mongo.Collection
	pub  Publisher
	now  func() time.Time
}

// NewMongoMessageRepository create the fetch gateway / send endpoint backed by mongo.
// pub may be nil.
func NewMongoMessageRepository(db *mongo.Database, pub Publisher) MessageRepository {
	return &mongoMessageRepository{
		coll: db.Collection("chat_messages"),
		pub:  pub,
		now:  time.Now,
	}
}

// EnsureMessageIndexes create the indexes FetchPage relies on
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("chat_messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "message_id", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return errors.Wrap(err, "create chat_messages indexes")
}

// FetchPage newest first, keyset paginated on (created_at, message_id)
func (r *mongoMessageRepository) FetchPage(ctx context.Context, conversationID string, limit int, cursor string) (domain.Page, error) {
	if limit <= 0 || conversationID == "" {
		return domain.Page{}, errprocess.ErrInvalidArgument
	}

	filter := bson.M{"room_id": conversationID}
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return domain.Page{}, err
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": c.CreatedAt}},
			bson.M{"created_at": c.CreatedAt, "message_id": bson.M{"$lt": c.ID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "message_id", Value: -1}}).
		SetLimit(int64(limit + 1))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page{}, classifyMongoErr(err, "find messages")
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return domain.Page{}, classifyMongoErr(err, "decode messages")
	}

	page := domain.Page{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		last := page.Messages[limit-1]
		page.HasMore = true
		page.NextCursor = encodeCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	for i := range page.Messages {
		page.Messages[i].CreatedAt = page.Messages[i].CreatedAt.UTC()
	}
	return page, nil
}

// Send 建立訊息, 寫入 mongo 後發布給訂閱者
func (r *mongoMessageRepository) Send(ctx context.Context, conversationID string, sender domain.Identity, draft domain.Draft) (domain.Message, error) {
	text := strings.TrimSpace(draft.Text)
	if conversationID == "" || (text == "" && len(draft.Attachments) == 0) {
		return domain.Message{}, errprocess.Wrap(errprocess.ErrRejected, errors.New("empty message"))
	}

	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Text:           text,
		Attachments:    draft.Attachments,
		CreatedAt:      r.now().UTC().Truncate(time.Millisecond),
		Status:         domain.StatusSent,
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return domain.Message{}, classifyMongoErr(err, "insert message")
	}

	if r.pub != nil {
		if err := r.pub.PublishMessage(ctx, msg); err != nil {
			// 已寫入, 訂閱者會靠 polling 補回
			logger.Log.Warn("publish message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

func classifyMongoErr(err error, op string) error {
	wrapped := errors.Wrap(err, op)
	switch {
	case errors.Is(err, context.Canceled):
		return wrapped
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected), errors.Is(err, context.DeadlineExceeded):
		return errprocess.Wrap(errprocess.ErrNoConnectivity, wrapped)
	case mongo.IsDuplicateKeyError(err):
		return errprocess.Wrap(errprocess.ErrRejected, wrapped)
	default:
		return wrapped
	}
}
