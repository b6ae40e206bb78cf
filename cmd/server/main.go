// Command server runs the WhatsApp group-listings service: it manages
// tenant WhatsApp sessions, captures relevant group messages, runs the
// scheduled listing extraction job, and serves the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/realestate9x/whatsapp-listings/internal/config"
	"github.com/realestate9x/whatsapp-listings/internal/extract"
	httpapi "github.com/realestate9x/whatsapp-listings/internal/http"
	"github.com/realestate9x/whatsapp-listings/internal/observability"
	"github.com/realestate9x/whatsapp-listings/internal/repo"
	"github.com/realestate9x/whatsapp-listings/internal/sysutil"
	"github.com/realestate9x/whatsapp-listings/internal/wa"
)

const version = "1.0.0"

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(cfg.LogPretty).With().Str("service", "whatsapp-listings").Logger()

	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	dialer, err := wa.NewWhatsmeowDialer(cfg.Session.StoreDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("setup whatsapp dialer")
	}

	registry := wa.NewRegistry(db, dialer, wa.Config{
		ReconnectDelay:       cfg.Session.ReconnectDelay,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		SweepInterval:        cfg.Session.SweepInterval,
		IdleTimeout:          cfg.Session.IdleTimeout,
		HardIdleTimeout:      cfg.Session.HardIdleTimeout,
	}, log)
	if err := registry.StartSweeper(); err != nil {
		log.Fatal().Err(err).Msg("start session sweeper")
	}

	inference := extract.NewOpenAIClient(cfg.Extraction.OpenAIAPIKey, cfg.Extraction.Model)
	job := extract.NewJob(db, inference, extract.JobConfig{
		BatchSize:     cfg.Extraction.BatchSize,
		MinConfidence: cfg.Extraction.MinConfidence,
		Interval:      cfg.Extraction.Interval,
	}, log)
	if cfg.Extraction.AutoStart {
		if cfg.Extraction.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, extraction job not started")
		} else if err := job.Start(cfg.Extraction.Interval); err != nil {
			log.Fatal().Err(err).Msg("start extraction job")
		}
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, registry, job, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := job.Stop(); err != nil && err != extract.ErrNotRunning {
		log.Error().Err(err).Msg("stop extraction job")
	}
	if err := registry.ShutdownAll(ctx); err != nil {
		log.Error().Err(err).Msg("session shutdown")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("bye")
}
