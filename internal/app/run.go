package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Run starts the application and blocks until a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.loop.Start()
	a.tracker.Start()

	if err := a.apiServer.Start(ctx); err != nil {
		return err
	}
	if err := a.metricsServer.Start(ctx); err != nil {
		return err
	}

	logrus.Info("application started successfully")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops components in reverse dependency order: servers first,
// then the game loop with its managers, then external connections and
// telemetry. Errors are logged but never abort the sequence so every
// component gets a chance to clean up.
func (a *App) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down application...")

	if err := a.apiServer.Shutdown(ctx); err != nil {
		logrus.Errorf("api server shutdown error: %v", err)
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("metrics server shutdown error: %v", err)
	}

	// Cancel active checks and lift every freeze so nobody stays stuck
	// if the host outlives us.
	a.loop.Do(func() {
		a.tracker.Stop()
		a.checks.Close()
		a.freezer.UnfreezeAll()
	})
	a.loop.Stop()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logrus.Errorf("Redis close error: %v", err)
		}
	}

	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			logrus.Errorf("telemetry shutdown error: %v", err)
		}
	}

	logrus.Info("application shutdown complete")
	return nil
}
