package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/query"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

type WebSocketHandler struct {
	query *query.Service
}

func NewWebSocketHandler(svc *query.Service) *WebSocketHandler {
	return &WebSocketHandler{query: svc}
}

type wsQuestion struct {
	Stem      string `json:"stem"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type wsAnswer struct {
	*query.Response
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Handle serves an interactive QA session over one websocket
// connection. An empty stem routes through the global selector. The
// session ID from the first answer can be echoed back to keep one
// transcript across questions.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	username, _ := c.Locals("username").(string)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	defer c.Close()

	logger.Info("WebSocket session opened", zap.String("username", username))

	for {
		var req wsQuestion
		if err := c.ReadJSON(&req); err != nil {
			logger.Debug("WebSocket session closed", zap.String("username", username))
			return
		}

		var resp *query.Response
		var err error
		if req.Stem == "" {
			resp, err = h.query.AskGlobal(context.Background(), username, req.SessionID, req.Question)
		} else {
			resp, err = h.query.Ask(context.Background(), username, req.SessionID, req.Stem, req.Question)
		}

		out := wsAnswer{Response: resp}
		if err != nil {
			out.Error = err.Error()
			if kind, ok := apperr.KindOf(err); ok {
				out.Kind = kind.String()
			} else {
				out.Kind = "internal"
			}
		}

		if err := c.WriteJSON(out); err != nil {
			logger.Warn("WebSocket write failed", zap.String("username", username), zap.Error(err))
			return
		}
	}
}
