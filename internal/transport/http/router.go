// Package http wires the gateway's caller-facing surface: instance
// lifecycle, campaign and message pass-through, uploads, and the provider
// webhook.
package http

import (
	"net/http"
	"time"

	obsmw "github.com/luiznunees/backend-canaldireto/internal/observability/middleware"
	"github.com/luiznunees/backend-canaldireto/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type handlers struct {
	instances *service.InstanceService
	campaigns *service.CampaignService
	uploads   *service.UploadService
	env       string
}

type RouterConfig struct {
	Instances   *service.InstanceService
	Campaigns   *service.CampaignService
	Uploads     *service.UploadService
	Auth        *Authenticator
	Environment string
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	h := &handlers{
		instances: cfg.Instances,
		campaigns: cfg.Campaigns,
		uploads:   cfg.Uploads,
		env:       cfg.Environment,
	}

	r := chi.NewRouter()

	r.Use(obsmw.WithRequestAndTrace)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(100, 1*time.Minute))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "apikey"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(obsmw.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Provider-pushed events and public file serving sit outside the key.
	r.Post("/webhook", h.providerWebhook)
	r.Get("/files/{id}", h.serveFile)

	r.Group(func(pr chi.Router) {
		pr.Use(cfg.Auth.Middleware)

		pr.Route("/instance", func(ir chi.Router) {
			ir.Post("/setup", h.setupInstance)
			ir.Get("/sync-status/{userID}", h.syncStatus)
			ir.Get("/qr/{userID}", h.pairingQR)
			ir.Delete("/disconnect/{userID}", h.disconnectInstance)
			ir.Delete("/delete/{userID}", h.deleteInstance)
		})

		pr.Post("/campaign", h.createCampaign)
		pr.Post("/message/send", h.sendMessage)
		pr.Post("/upload", h.uploadFile)
	})

	return r
}
