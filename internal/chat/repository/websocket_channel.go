package repository

import (
	"context"
	"net/url"
	"sync"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TokenSource bearer token used to authenticate the websocket
type TokenSource interface {
	Token() string
}

// WebsocketChannel live update channel over the chat service websocket
type WebsocketChannel struct {
	url         string
	tokens      TokenSource
	dialTimeout time.Duration
	dialer      *websocket.Dialer
}

// NewWebsocketChannel create WebsocketChannel
func NewWebsocketChannel(rawURL string, tokens TokenSource, dialTimeout time.Duration) *WebsocketChannel {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &WebsocketChannel{
		url:         rawURL,
		tokens:      tokens,
		dialTimeout: dialTimeout,
		dialer:      websocket.DefaultDialer,
	}
}

// Open 連線並進入聊天室; 不會阻塞
func (w *WebsocketChannel) Open(conversationID string, l ChannelListener) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSubscription{cancel: cancel}

	l.state(domain.ChannelConnecting, nil)
	go w.run(ctx, s, conversationID, l)
	return s
}

func (w *WebsocketChannel) run(ctx context.Context, s *wsSubscription, conversationID string, l ChannelListener) {
	log := logger.Log.With(zap.String("conversation_id", conversationID))

	target, err := url.Parse(w.url)
	if err != nil {
		l.state(domain.ChannelError, errors.Wrap(err, "parse websocket url"))
		return
	}
	q := target.Query()
	q.Set("auth", w.tokens.Token())
	target.RawQuery = q.Encode()

	dialCtx, cancelDial := context.WithTimeout(ctx, w.dialTimeout)
	conn, _, err := w.dialer.DialContext(dialCtx, target.String(), nil)
	cancelDial()
	if err != nil {
		if ctx.Err() == nil {
			l.state(domain.ChannelError, errors.Wrap(err, "dial websocket"))
		}
		return
	}
	if !s.attach(conn) {
		return
	}

	if err := conn.WriteJSON(domain.WSRequest{Action: string(domain.EnterRoom), RoomID: conversationID}); err != nil {
		if ctx.Err() == nil {
			l.state(domain.ChannelError, errors.Wrap(err, "enter room"))
		}
		return
	}

	active := false
	for {
		var resp domain.WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.state(domain.ChannelCompleted, nil)
			} else {
				l.state(domain.ChannelError, errors.Wrap(err, "read websocket"))
			}
			return
		}

		switch domain.Action(resp.Action) {
		case domain.EnterRoom:
			if !resp.Success {
				l.state(domain.ChannelError, errors.Errorf("enter room rejected: %s", resp.Error))
				return
			}
			if !active {
				active = true
				l.state(domain.ChannelActive, nil)
			}
		case domain.NotifyMessage:
			msg, err := decodeMessagePayload(resp.Payload)
			if err != nil {
				log.Warn("drop undecodable notify_message", zap.Error(err))
				continue
			}
			if !active {
				active = true
				l.state(domain.ChannelActive, nil)
			}
			l.message(msg)
		default:
			log.Debug("ignore websocket action", zap.String("action", resp.Action))
		}
	}
}

// decodeMessagePayload payload["message"] -> domain.Message
func decodeMessagePayload(payload map[string]interface{}) (domain.Message, error) {
	raw, ok := payload["message"]
	if !ok {
		return domain.Message{}, errors.New("payload has no message")
	}

	var msg domain.Message
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
		Result:  &msg,
		TagName: "mapstructure",
	})
	if err != nil {
		return domain.Message{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.Message{}, errors.Wrap(err, "decode message payload")
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		return domain.Message{}, errors.New("message payload missing id or created_at")
	}
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	return msg, nil
}

type wsSubscription struct {
	once   sync.Once
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// attach hand the dialed conn to the subscription; false when already closed
func (s *wsSubscription) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return false
	}
	s.conn = conn
	return true
}

// Close 離開聊天室並斷線; 可重複呼叫
func (s *wsSubscription) Close() {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
}
