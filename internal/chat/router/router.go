package router

import (
	"fmt"
	"strconv"

	"group_chat_client/internal/chat/app"
	"group_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// RegisterRoutes 注册聊天相关的路由
func RegisterRoutes(r *fiber.App, h *app.ChatHandler) {
	r.Get("/", ConnectCheck)
	r.Post("/debug", DebugLogFlag)

	r.Post("/session", h.Login)
	r.Delete("/session", h.Logout)

	r.Get("/groups", h.ListGroups)
	r.Post("/groups/:id/open", h.OpenGroup)

	r.Get("/messages", h.GetMessages)
	r.Post("/messages", h.SendMessage)
	r.Post("/messages/older", h.LoadOlder)

	r.Post("/attachments/upload-url", h.UploadURL)
	r.Post("/attachments/download-url", h.DownloadURL)

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(h.HandleConnection))
}

// ConnectCheck check client api start
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat client start!")
}

// DebugLogFlag toggle debug log flag
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}
