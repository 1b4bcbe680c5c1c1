// Package api serves the local debug surface of the chat client: probes,
// Prometheus metrics, expvar and a view of the conversation store.
package api

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/quizchat/internal/infrastructure/configs"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/hilthontt/quizchat/internal/infrastructure/ratelimiter"
	conversationsHandler "github.com/hilthontt/quizchat/internal/presentation/handler/conversations"
	healthHandler "github.com/hilthontt/quizchat/internal/presentation/handler/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Application struct {
	config               configs.DebugConfig
	healthHandler        *healthHandler.Handler
	conversationsHandler *conversationsHandler.Handler
	gatherer             prometheus.Gatherer
	logger               logging.Logger
	ratelimiter          ratelimiter.Limiter
}

func NewApplication(
	config configs.DebugConfig,
	healthHandler *healthHandler.Handler,
	conversationsHandler *conversationsHandler.Handler,
	gatherer prometheus.Gatherer,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	if logger == nil {
		logger = logging.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Application{
		config:               config,
		healthHandler:        healthHandler,
		conversationsHandler: conversationsHandler,
		gatherer:             gatherer,
		logger:               logger,
		ratelimiter:          ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if app.ratelimiter != nil {
		r.Use(app.rateLimiterMiddleware)
	}
	r.Use(app.enableCors)

	r.Get("/healthz", app.healthHandler.GetHealth)
	r.Get("/live", app.healthHandler.GetHealth)
	r.Get("/ready", app.healthHandler.GetReady)
	r.Handle("/metrics", promhttp.HandlerFor(app.gatherer, promhttp.HandlerOpts{}))

	r.Route("/debug", func(r chi.Router) {
		r.Handle("/vars", expvar.Handler())

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", app.conversationsHandler.ListConversationsHandler)
			r.Get("/{peerId}", app.conversationsHandler.GetConversationHandler)
			r.Post("/{peerId}/messages", app.conversationsHandler.SendMessageHandler)
			r.Post("/{peerId}/read", app.conversationsHandler.MarkReadHandler)
		})
	})

	return r
}

// Run serves mux until ctx is cancelled, then shuts down gracefully.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.Addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Info(logging.Http, logging.Shutdown, "debug server stopping", map[logging.ExtraKey]any{
			logging.Endpoint: srv.Addr,
		})

		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(logging.Http, logging.Startup, "debug server has started", map[logging.ExtraKey]any{
		logging.Endpoint: srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdown; err != nil {
		return err
	}

	app.logger.Info(logging.Http, logging.Shutdown, "debug server has stopped", map[logging.ExtraKey]any{
		logging.Endpoint: srv.Addr,
	})

	return nil
}
