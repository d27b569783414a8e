package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/api/middleware"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/broadcast"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/handlers"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/media"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/transport"
)

const (
	maxJSONBody  = 64 * 1024        // generous for text messages
	maxMediaBody = 32 * 1024 * 1024 // multipart media upload
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	logger zerolog.Logger,
	st store.DataStore,
	bridge *transport.Bridge,
	ingestor *media.Ingestor,
	hub *broadcast.Hub,
	normalizer *phone.Normalizer,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateContentType)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (the web client may be served from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Bridge-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, bridge, ingestor, hub, normalizer, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/ws", h.Subscribe)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxJSONBody))

		r.Get("/messages", h.ListMessages)
		r.Post("/messages/text", h.SendText)

		// Delivery webhook from the bridge sidecar.
		r.Method("POST", "/bridge/events", bridge.WebhookHandler())
	})

	// Media uploads carry file payloads and get a larger body cap.
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxMediaBody))

		r.Post("/messages/media", h.SendMedia)
	})

	return r
}
