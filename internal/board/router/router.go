package router

import (
	"context"

	"collab_board_service/internal/board/app"
	"collab_board_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes registers the board websocket route. The room name comes
// from the query string and falls back to defaultRoom.
func RegisterRoutes(r *fiber.App, boardWebsocket *app.BoardWebsocketHandler, defaultRoom string) {
	r.Use(middlewares.JWTMiddleware())

	r.Use("/ws", func(c *fiber.Ctx) error {
		room := c.Query("room")
		if room == "" {
			room = defaultRoom
		}
		c.Locals("room", room)
		return c.Next()
	})

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		boardWebsocket.HandleConnection(context.Background(), c)
	}))
}
