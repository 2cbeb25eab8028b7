package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/portfolio-ai/backend/internal/config"
	"github.com/portfolio-ai/backend/internal/handler"
	"github.com/portfolio-ai/backend/internal/model/persona"
	"github.com/portfolio-ai/backend/internal/service/ai"
	"github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/internal/service/reveal"
	"github.com/portfolio-ai/backend/internal/service/rules"
	"github.com/portfolio-ai/backend/internal/store"
	"github.com/portfolio-ai/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logCloser, err := telemetry.InitLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logCloser.Close()

	tracer, meter, shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Log)
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry()

	personaStore := persona.NewMemoryStore(persona.Seed())
	active, ok := persona.Lookup(personaStore, cfg.Chat.Persona)
	if !ok {
		logger.Error("no assistant persona available")
		os.Exit(1)
	}

	fallback := rules.Default()
	if cfg.Chat.RulesPath != "" {
		fallback, err = rules.Load(cfg.Chat.RulesPath)
		if err != nil {
			logger.Error("failed to load fallback rules", "path", cfg.Chat.RulesPath, "error", err)
			os.Exit(1)
		}
	}

	strategies, err := ai.NewStrategies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build remote strategies", "error", err)
		os.Exit(1)
	}

	res, err := resolver.New(resolver.Config{
		Strategies:       strategies,
		Timeout:          cfg.Chat.Timeout,
		SystemContext:    ai.BuildSystemContext(active),
		Rules:            fallback,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		FailureThreshold: cfg.Chat.FailureThreshold,
		Cooldown:         cfg.Chat.Cooldown,
		FallbackDelay:    cfg.Chat.FallbackDelay,
	},
		resolver.WithLogger(logger),
		resolver.WithTracer(tracer),
		resolver.WithMeter(meter),
	)
	if err != nil {
		logger.Error("failed to create resolver", "error", err)
		os.Exit(1)
	}

	chatOpts := []chat.Option{
		chat.WithLogger(logger),
		chat.WithTypewriter(reveal.Typewriter{Step: cfg.Chat.RevealStep, Interval: cfg.Chat.RevealInterval}),
	}
	if cfg.Chat.AuditDBPath != "" {
		journal, err := store.Open(cfg.Chat.AuditDBPath)
		if err != nil {
			logger.Error("failed to open audit journal", "path", cfg.Chat.AuditDBPath, "error", err)
			os.Exit(1)
		}
		defer journal.Close()
		chatOpts = append(chatOpts, chat.WithJournal(journal))
	}
	chatService := chat.NewService(res, active.OpeningLine, chatOpts...)

	// Probe once up front so the header status is accurate from the start.
	res.Probe(ctx)
	scheduler := resolver.NewScheduler(res, cfg.Chat.ProbeInterval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Warn("failed to start probe scheduler", "error", err)
	}
	defer scheduler.Stop()

	if cfg.Chat.RulesPath != "" {
		watcher, err := rules.NewWatcher(cfg.Chat.RulesPath, res.SetRules, logger)
		if err != nil {
			logger.Warn("fallback rule watcher disabled", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	router := handler.NewRouter(personaStore, active, chatService, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("portfolio chat backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
