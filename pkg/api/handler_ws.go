package api

import (
	"log/slog"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// websocketHandler handles GET /ws. Clients subscribe to
/// "execution:{id}" for one run's progress or "executions" for global
// status transitions; see events.ClientMessage for the protocol.
func (s *Server) websocketHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Same-origin dashboard plus CLI clients without an Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// Blocks until the client disconnects; the manager closes the
	// connection on exit.
	s.manager.HandleConnection(c.Request.Context(), conn)
}
