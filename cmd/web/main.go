package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/calculator"
	"calculator-console/internal/config"
	"calculator-console/internal/observability"
	"calculator-console/internal/server"

	"go.uber.org/zap"
)

func main() {

	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}

	// CALCULATOR_CONFIG may point at a config file outside the search path.
	cfg, err := config.Load(os.Getenv("CALCULATOR_CONFIG"), nil)
	if err != nil {
		panic(err)
	}

	// Logger
	if err := observability.InitLogger(cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer observability.SyncLogger()

	// Tracing, metrics, logs
	telemetryShutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer telemetryShutdown(ctx)

	loc, err := cfg.Location()
	if err != nil {
		panic(err)
	}

	// Calculator
	client := calcclient.New(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	session := calculator.NewSession(client)

	// The page shows the fetch error itself, so a down service is not fatal.
	if err := session.Init(ctx); err != nil {
		observability.Logger.Warn("initial history fetch failed",
			zap.String("remote", client.BaseURL()),
			zap.Error(err),
		)
	}

	handler, err := calculator.NewHandler(session, loc)
	if err != nil {
		panic(err)
	}

	// Router
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		observability.Logger.Info("server started",
			zap.String("addr", cfg.Server.Addr),
			zap.String("remote", client.BaseURL()),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	waitForShutdown(srv, cfg.Server.ShutdownTimeout)
}

func waitForShutdown(srv *http.Server, timeout time.Duration) {

	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		observability.Logger.Error("server shutdown failed", zap.Error(err))
	}
}
