package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/l3v3l/courier/internal/api/middleware"
	"github.com/l3v3l/courier/internal/handlers"
	"github.com/l3v3l/courier/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, rlCfg middleware.RateLimiterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Identity)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, rlCfg)
	r.Use(limiter.Middleware)

	// CORS - the gateway fronts this service, but browser-based tools
	// hit it directly in development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Service info
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Directory
	r.Post("/users", h.RegisterUser)
	r.Get("/users", h.LookupUser)
	r.Get("/users/{userId}", h.GetUser)

	// Delivery
	r.Post("/messages", h.SendMessage)
	r.Get("/messages/poll/{userId}", h.PollMessages)
	r.Get("/messages/history/{userId}/{partnerId}", h.ConversationHistory)
	r.Get("/messages/unread/{userId}", h.UnreadCounts)
	r.Post("/messages/read", h.MarkRead)
	r.Get("/conversations/{userId}", h.ListConversations)

	// Presence
	r.Get("/presence/online", h.OnlineUsers)
	r.Post("/presence/online", h.GoOnline)
	r.Post("/presence/offline", h.GoOffline)
	r.Get("/presence/{userId}", h.GetPresence)

	// Typing indicators
	r.Post("/typing", h.SetTyping)
	r.Get("/typing/{userId}/{partnerId}", h.GetTyping)

	return r
}
