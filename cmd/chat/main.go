package main

import (
	"context"
	"errors"
	"expvar"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	apisdk "github.com/hilthontt/quizchat/api-sdk"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/application/chat"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/auth"
	"github.com/hilthontt/quizchat/internal/infrastructure/configs"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/hilthontt/quizchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quizchat/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/quizchat/internal/infrastructure/tracing"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
	"github.com/hilthontt/quizchat/internal/presentation/api"
	conversationsHandler "github.com/hilthontt/quizchat/internal/presentation/handler/conversations"
	healthHandler "github.com/hilthontt/quizchat/internal/presentation/handler/health"
)

const serviceName = "quizchat"

func main() {
	_ = godotenv.Load() // load .env if present

	cfg, err := configs.Load(configs.DetermineConfigPath())
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(&cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(tracing.Config{
			ServiceName: serviceName,
			Environment: cfg.Tracing.Environment,
			Endpoint:    cfg.Tracing.Endpoint,
		})
		if err != nil {
			logger.Fatal(logging.General, logging.Startup, "failed to initialize tracing", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Tracing.Environment,
			Release:     serviceName,
		}); err != nil {
			logger.Warn(logging.General, logging.ExternalService, "failed to initialize sentry", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer sentry.Flush(2 * time.Second)
	}

	userID := cfg.Chat.UserID
	if userID == 0 {
		userID, err = auth.UserIDFromToken(cfg.Chat.Token)
		if err != nil {
			logger.Fatal(logging.General, logging.Startup, "chat.user_id is not set and the token does not carry one", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	self := domain.UserDisplay{ID: userID, Username: cfg.Chat.Username, FullName: cfg.Chat.FullName}
	if cfg.Chat.Avatar != "" {
		self.Avatar = &cfg.Chat.Avatar
	}
	self = auth.Display(cfg.Chat.Token, self)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	restOpts := []option.RequestOption{
		option.WithBaseURL(cfg.Chat.BaseURL),
		option.WithBearerToken(cfg.Chat.Token),
		option.WithRequestTimeout(cfg.Chat.RequestTimeout),
		option.WithDebugLog(logger),
		option.WithCircuitBreaker(option.NewCircuitBreaker(serviceName+"-api", cfg.Chat.BreakerFailures, cfg.Chat.BreakerCooldown)),
	}
	if cfg.Chat.RequestsPerSecond > 0 {
		restOpts = append(restOpts, option.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.Chat.RequestsPerSecond), max(cfg.Chat.RequestBurst, 1))))
	}
	backend := apisdk.NewClient(restOpts...)

	socketURL, err := ws.SocketURL(cfg.Chat.BaseURL, cfg.Socket.Path, cfg.Chat.Token)
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "invalid socket url", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	manager := ws.NewManager(ws.Config{
		URL:                  socketURL,
		HeartbeatInterval:    cfg.Socket.HeartbeatInterval,
		ReconnectBaseDelay:   cfg.Socket.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Socket.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Socket.HandshakeTimeout,
		WriteTimeout:         cfg.Socket.WriteTimeout,
	}, ws.NewRegistry(), logger, m)

	client := chat.NewClient(chat.Config{
		LocalUserID:     userID,
		Self:            self,
		DedupWindow:     cfg.Store.DedupWindow,
		TypingExpiry:    cfg.Store.TypingExpiry,
		TypingIdle:      cfg.Store.TypingIdle,
		HistoryPageSize: cfg.Store.HistoryPageSize,
		SeenCapacity:    cfg.Store.SeenCapacity,

		MaxImageDimension: cfg.Chat.MaxImageDimension,
	}, manager, backend, logger, m)
	client.Attach(manager)
	manager.SetTerminalHandler(func(err error) {
		client.HandleTerminal(err)
		sentry.CaptureException(err)
	})
	defer client.Close()

	// A failed first dial keeps retrying in the background.
	if err := manager.Connect(ctx); err != nil {
		logger.Warn(logging.Socket, logging.Connect, "initial connect failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer func() { _ = manager.Disconnect() }()

	if err := client.Start(ctx); err != nil {
		logger.Warn(logging.General, logging.Startup, "failed to start chat client", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	if cfg.Debug.Addr != "" {
		expvar.Publish("goroutines", expvar.Func(func() any {
			return runtime.NumGoroutine()
		}))
		expvar.Publish("socket_state", expvar.Func(func() any {
			return manager.State().String()
		}))

		app := api.NewApplication(
			cfg.Debug,
			healthHandler.NewHandler(manager, client),
			conversationsHandler.NewHandler(client, logger),
			reg,
			logger,
			ratelimiter.NewFixedWindow(cfg.Debug.RateLimit.RequestsPerTimeFrame, cfg.Debug.RateLimit.TimeFrame),
		)
		go func() {
			if err := app.Run(ctx, app.Mount()); err != nil {
				logger.Error(logging.Http, logging.Startup, "debug server failed", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}()
	}

	r := newREPL(client, os.Stdout, userID)
	go r.watch(ctx)

	if err := r.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		sentry.CaptureException(err)
		logger.Error(logging.IO, logging.Command, "command loop failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}
