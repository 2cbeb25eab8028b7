package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the portfolio front end, served from another origin, to call
// the API. Preflight requests are answered directly.
var CORS = cors.Handler(cors.Options{
	AllowedOrigins: []string{"https://*", "http://*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	ExposedHeaders: []string{"X-Request-Id"},
	MaxAge:         600,
})
