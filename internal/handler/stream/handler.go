package stream

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/portfolio-ai/backend/internal/handler/chat"
	"github.com/portfolio-ai/backend/internal/model/chat"
	chatService "github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/pkg/utils"
)

// Handler streams replies to the widget as they are revealed.
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New creates a stream handler.
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes mounts the SSE and WebSocket endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{conversationID}", h.handleStream)
	r.Get("/ws/{conversationID}", h.handleWebSocket)
}

// Event is one streamed update.
type Event struct {
	Event          string        `json:"event"`
	ConversationID string        `json:"conversationId,omitempty"`
	Content        string        `json:"content,omitempty"`
	Message        *chat.Message `json:"message,omitempty"`
	Source         string        `json:"source,omitempty"`
	Strategy       string        `json:"strategy,omitempty"`
	Finished       bool          `json:"finished,omitempty"`
	Error          string        `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	userMessage := strings.TrimSpace(r.URL.Query().Get("message"))

	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	if _, err := h.chatSvc.GetConversation(r.Context(), conversationID); err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(e Event) {
		e.ConversationID = conversationID
		if err := utils.SendSSEEvent(w, flusher, e.Event, e); err != nil {
			h.logger.Debug("sse write failed", "conversation_id", conversationID, "error", err)
		}
	}

	send(Event{Event: "start"})

	reply, err := h.chatSvc.Submit(r.Context(), conversationID, userMessage, func(partial chat.Message) {
		send(Event{Event: "delta", Content: partial.Text})
	})
	if err != nil {
		send(Event{Event: "error", Error: err.Error()})
		h.logger.Warn("stream submission failed", "conversation_id", conversationID, "error", err)
		return
	}

	send(Event{
		Event:    "message",
		Content:  reply.Message.Text,
		Message:  &reply.Message,
		Source:   string(reply.Resolution.Source),
		Strategy: reply.Resolution.Strategy,
	})
	send(Event{Event: "end", Finished: true})
}
