package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sendrec/clipintake/internal/generate"
	"github.com/sendrec/clipintake/internal/geoip"
	"github.com/sendrec/clipintake/internal/intake"
	"github.com/sendrec/clipintake/internal/jsonp"
	"github.com/sendrec/clipintake/internal/notify"
	"github.com/sendrec/clipintake/internal/offers"
	"github.com/sendrec/clipintake/internal/server"
	"github.com/sendrec/clipintake/internal/validate"
	"github.com/sendrec/clipintake/internal/webhook"
)

type config struct {
	Port               string
	BaseURL            string
	UploadDir          string
	WebDir             string
	GeoIPDB            string
	MaxUploadBytes     int64
	MaxDurationSeconds int64
	GenerateDelay      time.Duration
	WebhookURL         string
	WebhookSecret      string
	Offers             offers.Config
}

func loadConfig() config {
	return config{
		Port:               getEnv("PORT", "8080"),
		BaseURL:            os.Getenv("BASE_URL"),
		UploadDir:          getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "clipintake")),
		WebDir:             os.Getenv("WEB_DIR"),
		GeoIPDB:            os.Getenv("GEOIP_DB"),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", validate.DefaultUploadBytes),
		MaxDurationSeconds: getEnvInt64("MAX_CLIP_DURATION_SECONDS", int64(intake.DefaultMaxDuration/time.Second)),
		GenerateDelay:      time.Duration(getEnvInt64("GENERATE_DELAY_SECONDS", int64(generate.DefaultDelay/time.Second))) * time.Second,
		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		Offers: offers.Config{
			Endpoint: os.Getenv("OFFERS_ENDPOINT"),
			UserID:   os.Getenv("OFFERS_USER_ID"),
			APIKey:   os.Getenv("OFFERS_API_KEY"),
			S1:       os.Getenv("OFFERS_S1"),
			S2:       os.Getenv("OFFERS_S2"),
			Timeout:  time.Duration(getEnvInt64("OFFERS_TIMEOUT_SECONDS", 0)) * time.Second,
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using environment")
	}
	cfg := loadConfig()

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		log.Fatalf("upload directory: %v", err)
	}

	geo := geoip.New(cfg.GeoIPDB)
	defer func() { _ = geo.Close() }()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	intakeHandler := intake.NewHandler(cfg.UploadDir, cfg.MaxUploadBytes)
	intakeHandler.SetBaseContext(baseCtx)

	var observer intake.Observer = intakeHandler
	var onGenerate func(generate.State)
	var events *notify.Events
	if hook := webhook.New(cfg.WebhookURL, cfg.WebhookSecret); hook.Enabled() {
		events = notify.NewEvents(baseCtx, hook)
		observer = notify.NewMultiObserver(intakeHandler, events)
		onGenerate = events.GenerateChanged
		log.Println("webhook events enabled")
	}

	pipeline := intake.New(intake.Config{
		Prober:      intake.FFProbe{},
		Observer:    observer,
		MaxDuration: time.Duration(cfg.MaxDurationSeconds) * time.Second,
	})
	intakeHandler.SetPipeline(pipeline)

	board := offers.NewBoard()
	feed := offers.NewClient(jsonp.NewFetcher(jsonp.NewHTTPLoader(cfg.Offers.Timeout)), cfg.Offers)
	go board.Refresh(baseCtx, feed)

	trigger := generate.New(generate.Config{Clips: pipeline, Delay: cfg.GenerateDelay, OnChange: onGenerate})

	var webFS fs.FS
	if cfg.WebDir != "" {
		webFS = os.DirFS(cfg.WebDir)
		log.Printf("serving intake page from %s", cfg.WebDir)
	}

	srv := server.New(server.Config{
		Intake:   intakeHandler,
		Offers:   offers.NewHandler(board),
		Generate: generate.NewHandler(trigger),
		GeoIP:    geo,
		WebFS:    webFS,
		BaseURL:  cfg.BaseURL,
		Limits:   validate.Limits(cfg.MaxUploadBytes, int(cfg.MaxDurationSeconds)),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("clipintake listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	srv.Close()
	trigger.Close()
	cancelBase()
	pipeline.Close()
	if events != nil {
		events.Close()
	}
	log.Println("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
