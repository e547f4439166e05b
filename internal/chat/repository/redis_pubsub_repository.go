package repository

import (
	"context"
	"encoding/json"
	"sync"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RoomChannel redis channel of a conversation
func RoomChannel(conversationID string) string {
	return "chat:room:" + conversationID
}

// RedisPubSub definition redis pub/sub, serves as publisher and live channel
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// PublishMessage 將 message 序列化後，發布到聊天室 channel
func (r *RedisPubSub) PublishMessage(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	return errors.Wrap(r.client.Publish(ctx, RoomChannel(msg.ConversationID), data).Err(), "publish message")
}

// Open 訂閱聊天室 channel，收到訊息後呼叫 listener
func (r *RedisPubSub) Open(conversationID string, l ChannelListener) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &redisSubscription{cancel: cancel}

	channel := RoomChannel(conversationID)
	sub := r.client.Subscribe(ctx, channel)
	s.pubsub = sub

	l.state(domain.ChannelConnecting, nil)
	go func() {
		defer sub.Close()

		// 第一個回覆是訂閱確認
		if _, err := sub.Receive(ctx); err != nil {
			if ctx.Err() == nil {
				l.state(domain.ChannelError, errors.Wrap(err, "subscribe "+channel))
			}
			return
		}
		l.state(domain.ChannelActive, nil)

		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					if ctx.Err() == nil {
						l.state(domain.ChannelCompleted, nil)
					}
					return
				}

				var msg domain.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					logger.Log.Warn("drop undecodable room event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				if msg.Status == "" {
					msg.Status = domain.StatusSent
				}
				l.message(msg)
			case <-ctx.Done():
				logger.Log.Info(channel + " , sub close")
				return
			}
		}
	}()
	return s
}

type redisSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	pubsub *redis.PubSub
}

// Close 取消訂閱; 可重複呼叫
func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
	})
}
