// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/handler"
	"github.com/matthewbaird/onboarding/internal/notify"
	"github.com/matthewbaird/onboarding/internal/onboarding"
	"github.com/matthewbaird/onboarding/internal/persist"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/session"
	"github.com/matthewbaird/onboarding/internal/signals"
	"github.com/matthewbaird/onboarding/internal/validate"
	"github.com/matthewbaird/onboarding/internal/wire"
	"github.com/matthewbaird/onboarding/internal/worker"
)

// Deps are the shared, session-independent components.
type Deps struct {
	Catalog   *catalog.Catalog
	Registry  *sections.Registry
	Renderer  render.Renderer
	Validator *validate.Validator
	Store     persist.Store
	Activity  activity.Store
	Recorder  event.Recorder
	Progress  *worker.ProgressWorker

	SaveDebounce time.Duration
	ToastTTL     time.Duration
}

// NewFactory returns a session factory building one controller per
// connection. The storage key is derived from the client key so a returning
// browser gets its snapshot back.
func NewFactory(d Deps) session.Factory {
	return func(id, client string, sender notify.Sender) (*onboarding.Controller, error) {
		return onboarding.New(onboarding.Config{
			Session:      id,
			Catalog:      d.Catalog,
			Registry:     d.Registry,
			Renderer:     d.Renderer,
			Validator:    d.Validator,
			Store:        d.Store,
			StorageKey:   persist.KeyFor(client),
			SaveDebounce: d.SaveDebounce,
			Recorder:     d.Recorder,
			Notifier:     notify.New(sender, d.ToastTTL),
		})
	}
}

// NewRouter registers every route.
func NewRouter(d Deps, sessions *session.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	oh := handler.NewOnboardingHandler(d.Catalog, d.Registry, sessions)
	ah := handler.NewActivityHandler(d.Activity, signals.MustNew(signals.DefaultRules))
	ph := handler.NewProgressHandler(d.Progress)
	ws := wire.NewHandler(sessions)

	r.Route("/api/onboarding", func(r chi.Router) {
		r.Get("/ws", ws.ServeHTTP)
		r.Get("/sections", oh.HandleListSections)
		r.Get("/entities", oh.HandleListEntities)
		r.Get("/entities/{kind}/{id}", oh.HandleGetEntity)
		r.Get("/entities/{kind}/{id}/activity", ah.HandleGetEntityActivity)
		r.Get("/entities/{kind}/{id}/summary", ah.HandleGetEntitySummary)
		r.Get("/entities/{kind}/{id}/progress", ph.HandleGetProgress)
		r.Get("/progress", ph.HandleListProgress)
		r.Get("/sessions/{id}/status", oh.HandleGetSessionStatus)
	})
	return r
}

// logging writes one line per request.
func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Printf("http: %s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

// Run serves h on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	log.Printf("starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
