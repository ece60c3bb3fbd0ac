package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/config"
	"github.com/luiznunees/backend-canaldireto/internal/evolution"
	"github.com/luiznunees/backend-canaldireto/internal/observability/logging"
	"github.com/luiznunees/backend-canaldireto/internal/observability/metrics"
	"github.com/luiznunees/backend-canaldireto/internal/service"
	"github.com/luiznunees/backend-canaldireto/internal/store"
	httptransport "github.com/luiznunees/backend-canaldireto/internal/transport/http"
	"github.com/luiznunees/backend-canaldireto/internal/workflow"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "canaldireto",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	metrics.MustRegister("canaldireto")

	db, err := store.Open(store.OpenConfig{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	provider := evolution.New(cfg.EvolutionBaseURL, cfg.EvolutionAPIKey, cfg.EvolutionTimeout)
	flow := workflow.New(cfg.WorkflowWebhookURL, cfg.EvolutionTimeout)

	instances := service.NewInstanceService(st, provider, service.PollConfig{
		Attempts: cfg.SyncPollAttempts,
		Delay:    cfg.SyncPollDelay,
	})
	campaigns := service.NewCampaignService(instances, flow)
	uploads := service.NewUploadService(st, cfg.UploadDir, cfg.UploadTTL)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 10m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := uploads.PurgeExpired(ctx); err != nil {
			slog.Warn("upload sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("schedule upload sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Instances:   instances,
		Campaigns:   campaigns,
		Uploads:     uploads,
		Auth:        httptransport.NewAuthenticator(cfg.APIKey, cfg.JWTSecret),
		Environment: cfg.Environment,
		CORSOrigins: splitOrigins(cfg.CORSOrigins),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("canaldireto gateway listening", "addr", cfg.Addr, "env", cfg.Environment)
	log.Fatal(srv.ListenAndServe())
}

func splitOrigins(raw string) []string {
	out := []string{}
	for _, o := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	return out
}
