package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/config"
	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/eventbus"
	"github.com/matthewbaird/onboarding/internal/persist"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/server"
	"github.com/matthewbaird/onboarding/internal/session"
	"github.com/matthewbaird/onboarding/internal/validate"
	"github.com/matthewbaird/onboarding/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	store, err := persist.OpenSQLite(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer store.Close()
	log.Println("snapshot store ready")

	registry, err := sections.Load()
	if err != nil {
		log.Fatalf("loading section registry: %v", err)
	}
	validator, err := validate.New(registry)
	if err != nil {
		log.Fatalf("compiling validation rules: %v", err)
	}
	renderer, err := render.New()
	if err != nil {
		log.Fatalf("parsing templates: %v", err)
	}

	bus := eventbus.New(cfg.EventBuffer)
	progress := worker.NewProgressWorker()
	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Subscribe("progress", progress)
	bus.Start(ctx)
	defer bus.Stop()

	acts := activity.NewMemoryStore(cfg.ActivityCap)
	recorder := event.NewActivityRecorder(acts)
	recorder.SetPublisher(bus)

	deps := server.Deps{
		Catalog:      catalog.Demo(),
		Registry:     registry,
		Renderer:     renderer,
		Validator:    validator,
		Store:        store,
		Activity:     acts,
		Recorder:     recorder,
		Progress:     progress,
		SaveDebounce: cfg.SaveDebounce,
		ToastTTL:     cfg.ToastTTL,
	}
	sessions := session.NewManager(cfg.SessionMaxAge, cfg.SessionIdleTimeout, server.NewFactory(deps))
	sweeper := make(chan struct{})
	go func() {
		sessions.Run(ctx, cfg.SessionSweep)
		close(sweeper)
	}()

	if err := server.Run(ctx, cfg.Addr(), server.NewRouter(deps, sessions)); err != nil {
		log.Fatalf("server error: %v", err)
	}
	// Pending edits are written before the store closes.
	<-sweeper
}
