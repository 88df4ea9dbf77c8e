package server

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const sessionLocal = "hostedSession"

func isWebSocketUpgrade(c *fiber.Ctx) bool {
	return websocket.IsWebSocketUpgrade(c)
}

// authorizeStream checks the token passed as ?token= since browsers cannot
// set headers on websocket handshakes.
func (h *handlers) authorizeStream(c *fiber.Ctx) error {
	claims, err := h.deps.Auth.ParseToken(c.Query("token"))
	if err != nil {
		return err
	}
	session, err := h.deps.Hosted.Get(claims.Subject, c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals(sessionLocal, session)
	return c.Next()
}

// streamInterview pushes the current status and then every interview event
// until the client disconnects or the session is swept.
func streamInterview() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		session, ok := conn.Locals(sessionLocal).(*HostedSession)
		if !ok {
			_ = conn.Close()
			return
		}
		events, cancel := session.hub.Subscribe()
		defer cancel()

		status := session.Interview.Status()
		initial, err := json.Marshal(Event{Type: "state", Status: &status})
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, initial)
		}
		if err != nil {
			log.Printf("ws: initial write for %s failed: %v", session.ID, err)
			return
		}

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case payload, ok := <-events:
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.Printf("ws: write for %s failed: %v", session.ID, err)
					return
				}
			case <-gone:
				return
			}
		}
	})
}
