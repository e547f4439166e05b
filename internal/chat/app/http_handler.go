package app

import (
	"encoding/json"
	"errors"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	errprocess "group_chat_client/pkg/err"
	"group_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatHandler 处理聊天相关的 HTTP / websocket 请求
type ChatHandler struct {
	session     *SessionController
	groups      *GroupUseCase
	attachments *AttachmentUseCase
	tokens      repository.TokenStore

	pingInterval time.Duration
}

// NewChatHandler create ChatHandler
func NewChatHandler(
	session *SessionController,
	groups *GroupUseCase,
	attachments *AttachmentUseCase,
	tokens repository.TokenStore,
) *ChatHandler {
	return &ChatHandler{
		session:      session,
		groups:       groups,
		attachments:  attachments,
		tokens:       tokens,
		pingInterval: time.Minute,
	}
}

// Login store the bearer token handed over by the auth provider
func (h *ChatHandler) Login(c *fiber.Ctx) error {
	type request struct {
		Token string `json:"token"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := h.tokens.SetToken(req.Token); err != nil {
		logger.Log.Warn("login rejected", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": errprocess.ErrUnauthenticated.Error()})
	}

	ident := h.tokens.CurrentIdentity()
	return c.JSON(fiber.Map{"message": "login success", "identity": ident})
}

// Logout tear down the open conversation and forget the token
func (h *ChatHandler) Logout(c *fiber.Ctx) error {
	h.session.Close()
	h.tokens.Clear()
	return c.JSON(fiber.Map{"message": "logout success"})
}

// ListGroups groups of the member; opens the first one when nothing is open
func (h *ChatHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.session.LoadGroups(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"groups": groups})
}

// OpenGroup switch conversation
func (h *ChatHandler) OpenGroup(c *fiber.Ctx) error {
	if err := h.session.OpenGroup(c.UserContext(), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(h.session.View())
}

// GetMessages current view; ?order=chronological gives oldest first
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	view := h.session.View()
	if c.Query("order") == "chronological" {
		view.Messages = view.Chronological()
	}
	return c.JSON(view)
}

// SendMessage send a draft to the open conversation
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var draft domain.Draft
	if err := c.BodyParser(&draft); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	msg, err := h.session.Send(c.UserContext(), draft)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// LoadOlder load the next older page
func (h *ChatHandler) LoadOlder(c *fiber.Ctx) error {
	if err := h.session.LoadOlder(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(h.session.View())
}

// UploadURL presign an attachment upload
func (h *ChatHandler) UploadURL(c *fiber.Ctx) error {
	type request struct {
		ContentType string `json:"content_type"`
		FileName    string `json:"file_name"`
		Size        int64  `json:"size"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	ticket, err := h.attachments.PresignUpload(c.UserContext(), req.ContentType, req.FileName, req.Size)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(ticket)
}

// DownloadURL presign an attachment download
func (h *ChatHandler) DownloadURL(c *fiber.Ctx) error {
	type request struct {
		Key string `json:"key"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	url, expiresAt, err := h.attachments.PresignDownload(c.UserContext(), req.Key)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"url": url, "expires_at": expiresAt})
}

// HandleConnection 是 WebSocket 連線的進入點, 每次 view 更新都推送給前端
func (h *ChatHandler) HandleConnection(conn *websocket.Conn) {
	views := make(chan domain.View, 16)
	done := make(chan struct{})

	sub := h.session.Subscribe(func(v domain.View) {
		select {
		case views <- v:
		default:
			// 前端太慢, 丟掉這次, 下一次 view 會蓋過去
			logger.Log.Debug("websocket view dropped", zap.Uint64("version", v.Version))
		}
	})

	defer func() {
		sub.Dispose()
		close(done)
		conn.Close()
		logger.Log.Info("websocket close")
	}()

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case v := <-views:
				h.sendResponse(conn, domain.WSResponse{
					Action:  string(domain.ViewUpdate),
					Success: true,
					Payload: map[string]interface{}{"view": v},
				})
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
					logger.Log.Warn("ping error", zap.Error(err))
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// sendResponse - 發送 JSON 給前端
func (h *ChatHandler) sendResponse(conn *websocket.Conn, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal websocket response", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.Error(err))
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal"
	switch {
	case errprocess.IsNetwork(err):
		status, code = fiber.StatusServiceUnavailable, "no_connectivity"
	case errprocess.IsAuth(err):
		status, code = fiber.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, errprocess.ErrEmptyDraft):
		status, code = fiber.StatusUnprocessableEntity, "empty_draft"
	case errors.Is(err, errprocess.ErrRejected):
		status, code = fiber.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, errprocess.ErrNoConversation):
		status, code = fiber.StatusConflict, "no_conversation"
	case errors.Is(err, errprocess.ErrInvalidArgument):
		status, code = fiber.StatusBadRequest, "invalid_argument"
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}
