package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portfolio-ai/backend/internal/model/persona"
	chatService "github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/pkg/utils"
)

// Handler exposes the assistant profile shown in the widget header.
type Handler struct {
	personas persona.Store
	active   persona.Persona
	chatSvc  *chatService.Service
}

// New creates the handler for the active persona.
func New(personas persona.Store, active persona.Persona, chatSvc *chatService.Service) *Handler {
	return &Handler{
		personas: personas,
		active:   active,
		chatSvc:  chatSvc,
	}
}

// RegisterRoutes mounts the assistant routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/assistant", h.handleAssistant)
	r.Get("/assistant/status", h.handleStatus)
	r.Get("/personas", h.handleListPersonas)
}

type assistantResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	Greeting string          `json:"greeting"`
	Status   resolver.Status `json:"status"`
}

func (h *Handler) handleAssistant(w http.ResponseWriter, r *http.Request) {
	report := h.chatSvc.Status(r.Context())
	utils.RespondJSON(w, http.StatusOK, assistantResponse{
		ID:       h.active.ID,
		Name:     h.active.Name,
		Title:    h.active.Title,
		Greeting: h.chatSvc.Greeting(),
		Status:   report.Status,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Status(r.Context()))
}

func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}
