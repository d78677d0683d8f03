package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleEvents upgrades the connection and streams the tenant's relay
// events until the client disconnects. Events are routing metadata only;
// the client answers each one with a pull.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	events, cancel := s.relay.Subscribe(claims.TenantID)
	defer cancel()

	s.logger.Info(r.Context(), "relay subscriber connected", "tenantId", claims.TenantID)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				s.logger.Warn(r.Context(), "relay subscriber write failed", "error", err)
				return
			}
		}
	}
}
