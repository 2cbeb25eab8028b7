package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portfolio-ai/backend/internal/model/chat"
	chatService "github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/pkg/utils"
)

// Handler serves the conversation endpoints.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterLegacyRoutes mounts the stateless endpoint the original widget
// called directly.
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreateConversation)
	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Delete("/", h.handleDeleteConversation)
		r.Get("/messages", h.handleTranscript)
		r.Post("/messages", h.handleSubmit)
		r.Delete("/messages", h.handleClear)
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply  string          `json:"reply"`
	Source resolver.Source `json:"source"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.chatSvc.Resolve(r.Context(), payload.Message)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Reply: res.Text, Source: res.Source})
}

type conversationResponse struct {
	chat.Conversation
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, transcript := h.chatSvc.CreateConversation(r.Context())
	utils.RespondJSON(w, http.StatusCreated, conversationResponse{Conversation: conv, Messages: transcript})
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Delete(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := h.chatSvc.Transcript(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": transcript})
}

type submitRequest struct {
	Text string `json:"text"`
}

type submitResponse struct {
	Reply       string       `json:"reply"`
	Source      string       `json:"source"`
	Strategy    string       `json:"strategy,omitempty"`
	UserMessage chat.Message `json:"userMessage"`
	Message     chat.Message `json:"message"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "conversationID"), payload.Text, nil)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{
		Reply:       reply.Message.Text,
		Source:      string(reply.Resolution.Source),
		Strategy:    reply.Resolution.Strategy,
		UserMessage: reply.UserMessage,
		Message:     reply.Message,
	})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	transcript, err := h.chatSvc.Clear(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": transcript})
}

// StatusFor maps chat service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
