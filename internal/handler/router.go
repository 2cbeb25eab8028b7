package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/portfolio-ai/backend/internal/handler/chat"
	"github.com/portfolio-ai/backend/internal/handler/persona"
	"github.com/portfolio-ai/backend/internal/handler/stream"
	middlewarePkg "github.com/portfolio-ai/backend/internal/middleware"
	personaModel "github.com/portfolio-ai/backend/internal/model/persona"
	chatService "github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, active personaModel.Persona, chatSvc *chatService.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(personas, active, chatSvc)
	chatHandler := chat.New(chatSvc)
	streamHandler := stream.New(chatSvc, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler.RegisterLegacyRoutes(r)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
