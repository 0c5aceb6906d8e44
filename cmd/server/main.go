package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"flashcards-backend/internal/config"
	"flashcards-backend/internal/database"
	"flashcards-backend/internal/handlers"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/metrics"
	"flashcards-backend/internal/middleware"
	"flashcards-backend/internal/router"
	"flashcards-backend/internal/services"
	"flashcards-backend/internal/websocket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 1: Load Configuration ────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Configuration invalid: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Logger initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("🚀 Starting flashcards backend", "env", cfg.Env, "enforce_auth", cfg.EnforceAuth)

	// ──── Step 2: Connect Redis (optional) ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("✗ Redis connection failed", "error", err)
		}
		defer redisClient.Close()
		log.Info("✓ Redis connected")
	}

	// ──── Step 3: Initialize Synthesizer ────
	m := metrics.New()

	var synth services.Synthesizer
	if cfg.UseCannedReplies() {
		synth = services.NewCannedSynthesizer()
		log.Warn("✓ No GEMINI_API_KEY set, serving canned flashcards")
	} else {
		gemini, err := services.NewGeminiSynthesizer(ctx, services.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			MaxOutputTokens: cfg.GeminiMaxOutputTokens,
			ConcurrentReqs:  cfg.GeminiConcurrentReqs,
		}, log)
		if err != nil {
			log.Fatal("✗ Gemini client initialization failed", "error", err)
		}
		defer gemini.Close()
		synth = gemini
		log.Info("✓ Gemini client initialized", "model", cfg.GeminiModel)
	}
	synth = m.InstrumentSynthesizer(synth)

	// ──── Step 4: Build Pipeline ────
	uploads, err := services.NewUploadStore(cfg.UploadDir)
	if err != nil {
		log.Fatal("✗ Upload directory unavailable", "error", err)
	}

	var sessionAuth *middleware.SessionAuth
	var tokens websocket.TokenParser
	if cfg.SessionSecret != "" {
		sessionAuth = middleware.NewSessionAuth(cfg.SessionSecret, cfg.SessionTTL)
		if cfg.EnforceAuth {
			tokens = sessionAuth
		}
	}

	hub := websocket.NewHub(redisClient, tokens, cfg.AllowedOrigins, log)

	verifier := services.NewInitDataVerifier(cfg.TelegramBotToken, cfg.InitDataMaxAge)
	pipeline := services.NewPipeline(
		services.PipelineConfig{
			EnforceAuth:      cfg.EnforceAuth,
			RequireInitData:  cfg.RequireInitData,
			MaxUploadBytes:   cfg.MaxUploadBytes,
			MaxContentChars:  cfg.MaxContentChars,
			MaxCards:         cfg.MaxCards,
			SynthesisTimeout: cfg.ProviderTimeout,
		},
		verifier,
		services.NewFileExtractService(),
		services.NewPromptBuilder(cfg.ReplyLanguage),
		synth,
		uploads,
		log,
		m,
		hub,
	)
	log.Info("✓ Pipeline ready", "upload_dir", uploads.Dir(), "max_upload_bytes", cfg.MaxUploadBytes)

	// ──── Step 5: Rate Limiter ────
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
	} else {
		memLimiter := middleware.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		go memLimiter.Cleanup(ctx)
		limiter = memLimiter
	}

	// ──── Step 6: Start HTTP Server ────
	deps := router.Deps{
		Flashcards:     handlers.NewFlashcardHandler(pipeline, cfg.MaxUploadBytes, cfg.MaxContentChars, log),
		System:         handlers.NewSystemHandler(cfg.Env, synth.Name()),
		Hub:            hub,
		Metrics:        m,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		EnableDebug:    !cfg.IsProduction(),
		Log:            log,
	}
	if sessionAuth != nil && cfg.TelegramBotToken != "" {
		deps.SessionAuth = sessionAuth
		deps.Sessions = handlers.NewSessionHandler(verifier, sessionAuth, log)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router.New(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("✓ Flashcards backend ready", "addr", "http://localhost:"+cfg.Port, "provider", synth.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}
