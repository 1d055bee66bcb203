package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/utils"
)

type WSHandler struct {
	sessions services.SessionService
	redis    *redis.Client
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions services.SessionService, rdb *redis.Client, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		redis:    rdb,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict to the candidate portal origin
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"` // ping | end_session
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

// SessionWS streams the session's status events (paused, resumed, ended) to
// the candidate client.
func (h *WSHandler) SessionWS(c *gin.Context) {
	const op = "WSHandler.SessionWS"

	sessionID := sessionParam(c)
	token, ok := requireAccessToken(c)
	if !ok {
		return
	}
	if h.redis == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "live status is not configured", nil))
		return
	}

	ss, err := h.sessions.Authorize(c.Request.Context(), sessionID, token)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.log.WithField("session_id", sessionID)
	pubsub := h.redis.Subscribe(ctx, events.StatusChannel(sessionID))
	defer pubsub.Close()

	_ = wc.writeJSON(events.Event{Type: "status", SessionID: sessionID, Status: string(ss.Status)})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(APIError{Code: utils.CodeInvalidArgument, Message: "invalid json"})
				continue
			}

			switch msg.Type {
			case "ping":
				_ = wc.writeText([]byte(`{"type":"pong"}`))
			case "end_session":
				if _, err := h.sessions.End(ctx, sessionID, token); err != nil {
					log.WithError(err).Warn("end over websocket failed")
					_, body := toAPIError(err)
					_ = wc.writeJSON(body)
				}
				// the ended event arrives through the subscription
			default:
				_ = wc.writeJSON(APIError{Code: utils.CodeInvalidArgument, Message: "unknown message type"})
			}
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
			var ev events.Event
			if json.Unmarshal([]byte(m.Payload), &ev) == nil && ev.Status == events.StatusEnded {
				_ = wc.c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}
