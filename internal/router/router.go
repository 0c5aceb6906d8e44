package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"flashcards-backend/internal/handlers"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/metrics"
	"flashcards-backend/internal/middleware"
	"flashcards-backend/internal/websocket"
)

type Deps struct {
	Flashcards *handlers.FlashcardHandler
	System     *handlers.SystemHandler
	// Sessions and SessionAuth are nil when no bot token is configured.
	Sessions    *handlers.SessionHandler
	SessionAuth *middleware.SessionAuth
	Hub         *websocket.Hub
	Metrics     *metrics.Metrics
	Limiter     middleware.Limiter

	AllowedOrigins []string
	EnableDebug    bool
	Log            *logger.Logger
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.AllowedOrigins)))

	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", d.System.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.Limiter, d.Log, d.Metrics.RateLimitedTotal.Inc))
			if d.SessionAuth != nil {
				r.Use(d.SessionAuth.Middleware)
			}

			// All methods reach the handler so it can answer OPTIONS and 405.
			r.HandleFunc("/generate-flashcards", d.Flashcards.Generate)

			if d.Sessions != nil {
				r.Post("/auth/session", d.Sessions.Create)
			}
		})

		if d.Hub != nil {
			r.Get("/ws", d.Hub.HandleWebSocket)
		}

		if d.EnableDebug {
			r.HandleFunc("/debug", d.System.Debug)
		}
	})

	return r
}
