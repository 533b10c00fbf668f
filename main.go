package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/internal/app"
	"github.com/mineguard/cheatercheck/internal/config"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("starting cheatercheck service...")

	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Errorf("failed to initialize application: %v", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logrus.Errorf("application error: %v", err)
		os.Exit(1)
	}
}
