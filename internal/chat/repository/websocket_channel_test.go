package repository

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recordingListener struct {
	mu     sync.Mutex
	states []domain.ChannelState
	msgs   []domain.Message
}

func (r *recordingListener) listener() ChannelListener {
	return ChannelListener{
		OnMessage: func(m domain.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.msgs = append(r.msgs, m)
		},
		OnState: func(s domain.ChannelState, _ error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
	}
}

func (r *recordingListener) snapshot() ([]domain.ChannelState, []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChannelState(nil), r.states...), append([]domain.Message(nil), r.msgs...)
}

func (r *recordingListener) lastState() domain.ChannelState {
	states, _ := r.snapshot()
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1]
}

// chatServer 模擬 chat service 的 websocket: ack enter_room 後交給 script
func chatServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("auth") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req domain.WSRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(domain.WSResponse{Action: req.Action, Success: req.Action == string(domain.EnterRoom) && req.RoomID == room})
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebsocketChannel_DeliversMessagesThenCompletes(t *testing.T) {
	logger.SetNewNop()
	srv := chatServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(domain.WSResponse{
			Action:  string(domain.NotifyMessage),
			Success: true,
			Payload: map[string]interface{}{"message": map[string]interface{}{
				"id":              "m3",
				"conversation_id": room,
				"sender_id":       "person1",
				"text":            "hello",
				"created_at":      "2024-05-01T12:00:00.123Z",
			}},
		})
		_ = conn.WriteJSON(domain.WSResponse{
			Action:  string(domain.NotifyMessage),
			Success: true,
			Payload: map[string]interface{}{"message": map[string]interface{}{"text": "no id"}},
		})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	})

	var rec recordingListener
	sub := NewWebsocketChannel(wsURL(srv), staticToken("secret"), time.Second).Open(room, rec.listener())
	defer sub.Close()

	assert.Eventually(t, func() bool { return rec.lastState() == domain.ChannelCompleted }, 2*time.Second, 5*time.Millisecond)

	states, msgs := rec.snapshot()
	assert.Equal(t, []domain.ChannelState{domain.ChannelConnecting, domain.ChannelActive, domain.ChannelCompleted}, states)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m3", msgs[0].ID)
	assert.Equal(t, domain.StatusSent, msgs[0].Status)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC), msgs[0].CreatedAt.UTC())
}

func TestWebsocketChannel_DialFailureIsError(t *testing.T) {
	logger.SetNewNop()
	srv := chatServer(t, func(*websocket.Conn) {})

	var rec recordingListener
	sub := NewWebsocketChannel(wsURL(srv), staticToken("wrong"), time.Second).Open(room, rec.listener())
	defer sub.Close()

	assert.Eventually(t, func() bool { return rec.lastState() == domain.ChannelError }, 2*time.Second, 5*time.Millisecond)
}

func TestWebsocketChannel_AbruptDisconnectIsError(t *testing.T) {
	logger.SetNewNop()
	srv := chatServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	var rec recordingListener
	sub := NewWebsocketChannel(wsURL(srv), staticToken("secret"), time.Second).Open(room, rec.listener())
	defer sub.Close()

	assert.Eventually(t, func() bool { return rec.lastState() == domain.ChannelError }, 2*time.Second, 5*time.Millisecond)
}

func TestWebsocketChannel_CloseStopsEvents(t *testing.T) {
	logger.SetNewNop()
	release := make(chan struct{})
	srv := chatServer(t, func(conn *websocket.Conn) {
		<-release
		_ = conn.WriteJSON(domain.WSResponse{
			Action:  string(domain.NotifyMessage),
			Success: true,
			Payload: map[string]interface{}{"message": map[string]interface{}{
				"id": "late", "conversation_id": room, "created_at": "2024-05-01T12:00:00Z",
			}},
		})
	})

	var rec recordingListener
	sub := NewWebsocketChannel(wsURL(srv), staticToken("secret"), time.Second).Open(room, rec.listener())
	assert.Eventually(t, func() bool { return rec.lastState() == domain.ChannelActive }, 2*time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()
	close(release)
	time.Sleep(50 * time.Millisecond)

	states, msgs := rec.snapshot()
	assert.Equal(t, domain.ChannelActive, states[len(states)-1])
	assert.Empty(t, msgs)
}

func TestDecodeMessagePayload_Attachments(t *testing.T) {
	msg, err := decodeMessagePayload(map[string]interface{}{"message": map[string]interface{}{
		"id":         "m1",
		"created_at": "2024-05-01T12:00:00Z",
		"status":     "sent",
		"attachments": []interface{}{map[string]interface{}{
			"bucket": "b", "key": "k", "content_type": "image/png", "size": 42, "uploaded_at": "2024-05-01T11:59:00Z",
		}},
	}})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, int64(42), msg.Attachments[0].Size)
	assert.Equal(t, "k", msg.Attachments[0].Key)

	_, err = decodeMessagePayload(map[string]interface{}{})
	assert.Error(t, err)
}
