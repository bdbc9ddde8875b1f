// Package api exposes the service over HTTP and MCP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/EASONTAN03/zus-api-deployment/internal/chat"
)

// Chatbot handles a full chat turn.
type Chatbot interface {
	Chat(ctx context.Context, authHeader, prompt string) (chat.Response, error)
}

// UserStore manages credentials.
type UserStore interface {
	Register(username, password string) error
	Authenticate(username, password string) error
}

// TokenIssuer mints bearer tokens after login.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Health reports readiness of the backing stores.
type Health interface {
	ProductCount(ctx context.Context) (int, error)
	OutletCount(ctx context.Context) (int, error)
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Chatbot     Chatbot
	Products    chat.ProductSearcher
	Outlets     chat.OutletQuerier
	Users       UserStore
	Tokens      TokenIssuer
	Health      Health
	CORSOrigins []string
}

// NewHandler builds the top-level router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", handleRoot)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handleHealth(deps))
		r.Get("/products", handleProducts(deps))
		r.Get("/outlets", handleOutlets(deps))
		r.Post("/chat", handleChat(deps))
		r.Post("/register", handleRegister(deps))
		r.Post("/login", handleLogin(deps))
	})

	return r
}
