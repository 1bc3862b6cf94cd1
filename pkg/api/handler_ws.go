package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/specforge/specforge/pkg/channels"
)

// wsHandler handles GET /ws/:user_id/:client_type?token=... It upgrades the
// connection and hands it to the hub, blocking until the socket closes.
// Authentication and client-type failures are reported on the socket itself
// with close code 1008 so non-browser clients see the reason.
func (s *Server) wsHandler(c echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "live channels not available")
	}

	userID := c.PathParam("user_id")
	clientType := c.PathParam("client_type")
	token := c.QueryParam("token")

	acceptOpts := &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedWSOrigins}
	if len(s.cfg.AllowedWSOrigins) == 0 {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), acceptOpts)
	if err != nil {
		return err
	}

	if !s.authorized(token) {
		s.logger.Warn("Rejected WebSocket connection: bad token",
			"user_id", userID, "client_type", clientType)
		return conn.Close(websocket.StatusPolicyViolation, "invalid token")
	}
	if userID == "" || !channels.ValidClientType(clientType) {
		return conn.Close(websocket.StatusPolicyViolation, "unknown client type")
	}

	// HandleConnection blocks until the WebSocket closes.
	return s.hub.HandleConnection(c.Request().Context(), userID, clientType, channels.NewWSConn(conn))
}

func (s *Server) authorized(token string) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}
