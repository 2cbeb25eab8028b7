package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chathandler "github.com/portfolio-ai/backend/internal/handler/chat"
	"github.com/portfolio-ai/backend/internal/model/chat"
	"github.com/portfolio-ai/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content,omitempty"`
	Message        *chat.Message  `json:"message,omitempty"`
	Messages       []chat.Message `json:"messages,omitempty"`
	Source         string         `json:"source,omitempty"`
	Error          string         `json:"error,omitempty"`
	Timestamp      int64          `json:"timestamp"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu             sync.Mutex
	conn           *websocket.Conn
	conversationID string
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.ConversationID = c.conversationID
	msg.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if _, err := h.chatSvc.GetConversation(r.Context(), conversationID); err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("websocket connected", "conversation_id", conversationID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsConn{conn: conn, conversationID: conversationID}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, ws)
	}()

	if transcript, err := h.chatSvc.Transcript(ctx, conversationID); err == nil {
		_ = ws.send(outgoingMessage{Type: "transcript", Messages: transcript})
	}

	// Submissions run off the read loop so a clear or a new message can
	// supersede a reply that is still being revealed.
	var submissions sync.WaitGroup
	defer func() {
		cancel()
		submissions.Wait()
		wg.Wait()
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "conversation_id", conversationID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			submissions.Add(1)
			go func(text string) {
				defer submissions.Done()
				h.submit(ctx, ws, text)
			}(msg.Text)
		case "clear":
			transcript, err := h.chatSvc.Clear(ctx, conversationID)
			if err != nil {
				_ = ws.send(outgoingMessage{Type: "error", Error: err.Error()})
				continue
			}
			_ = ws.send(outgoingMessage{Type: "cleared", Messages: transcript})
		default:
			_ = ws.send(outgoingMessage{Type: "error", Error: "unsupported message type: " + msg.Type})
		}
	}
}

func (h *Handler) submit(ctx context.Context, ws *wsConn, text string) {
	reply, err := h.chatSvc.Submit(ctx, ws.conversationID, text, func(partial chat.Message) {
		_ = ws.send(outgoingMessage{Type: "delta", Content: partial.Text})
	})
	if err != nil {
		_ = ws.send(outgoingMessage{Type: "error", Error: err.Error()})
		return
	}

	_ = ws.send(outgoingMessage{
		Type:    "message",
		Content: reply.Message.Text,
		Message: &reply.Message,
		Source:  string(reply.Resolution.Source),
	})
}

func (h *Handler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
