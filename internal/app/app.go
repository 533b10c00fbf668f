package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/internal/config"
	"github.com/mineguard/cheatercheck/internal/server"
	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/check"
	"github.com/mineguard/cheatercheck/pkg/events"
	"github.com/mineguard/cheatercheck/pkg/freeze"
	"github.com/mineguard/cheatercheck/pkg/host"
	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/store"
	"github.com/mineguard/cheatercheck/pkg/webhook"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// App holds all application dependencies and manages the lifecycle.
type App struct {
	cfg               *config.Config
	loop              *sched.Loop
	tracker           *afk.Tracker
	checks            *check.Manager
	freezer           *freeze.Manager
	apiServer         *server.APIServer
	metricsServer     *server.MetricsServer
	redisClient       *redis.Client
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes an application instance. Components come up
// in dependency order: Redis, file settings, the host bridge, the game
// loop with its managers, then the servers and telemetry.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	redisClient, err := store.InitRedisClient(ctx, store.RedisOptions{
		Host:       cfg.RedisHost,
		Port:       cfg.RedisPort,
		Password:   cfg.RedisPassword,
		MaxRetries: cfg.RedisMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	app.redisClient = redisClient

	st := store.New(redisClient, logrus.StandardLogger())
	if err := st.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync store from Redis: %w", err)
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings from %s: %w", cfg.SettingsPath, err)
	}
	logrus.Infof("loaded gameplay settings from %s", cfg.SettingsPath)

	catalog := messaging.DefaultCatalog()
	if settings.MessagesPath != "" {
		catalog, err = messaging.LoadCatalog(settings.MessagesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load message catalog: %w", err)
		}
	}

	cheats := check.DefaultCheats()
	if settings.CheatsPath != "" {
		cheats, err = check.LoadCheats(settings.CheatsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load cheat definitions: %w", err)
		}
	}

	// The host bridge serves every outward surface: chat, commands,
	// titles, sounds, teleports and block queries all go through the shim.
	bridge := host.NewClient(cfg.HostBaseURL, cfg.HostToken, logrus.StandardLogger())
	msg := messaging.NewMessenger(catalog, bridge, logrus.StandardLogger())

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	set, err := app.metricsServer.Setup()
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	var reporter check.Reporter
	if cfg.DiscordWebhookURL != "" {
		reporter = webhook.NewReporter(webhook.NewClient(cfg.DiscordWebhookURL, logrus.StandardLogger()), logrus.StandardLogger())
		logrus.Info("discord moderation reports enabled")
	}

	app.loop = sched.NewLoop(sched.SystemClock(), logrus.StandardLogger())
	roster := world.NewMemory(bridge)

	freezer := freeze.NewManager(settings.Freeze, app.loop, roster, bridge, bridge, msg, set, logrus.StandardLogger())
	app.freezer = freezer
	app.tracker = afk.NewTracker(settings.Afk, app.loop, roster, logrus.StandardLogger())
	app.tracker.OnTransition = func(p world.Player, nowAfk bool) {
		key, state := "afk.now", "afk"
		if !nowAfk {
			key, state = "afk.back", "back"
		}
		msg.Broadcast(key, map[string]string{"player": p.Name})
		set.AfkTransitions.WithLabelValues(state).Inc()
	}

	app.checks = check.NewManager(settings.Check, app.loop, roster, freezer, app.tracker,
		msg, bridge, bridge, st, cheats, reporter, set, logrus.StandardLogger())

	router := events.NewRouter(app.loop, roster, app.tracker, freezer, app.checks, msg, set, logrus.StandardLogger())

	auth := server.NewAuth(cfg.JWTSecret)
	handler := &server.Handler{
		Loop:    app.loop,
		Checks:  app.checks,
		Freezer: freezer,
		Tracker: app.tracker,
		Roster:  roster,
		Store:   st,
		Router:  router,
		Logger:  logrus.StandardLogger(),
		Reload: func(ctx context.Context) error {
			reloaded, err := config.LoadSettings(cfg.SettingsPath)
			if err != nil {
				return fmt.Errorf("failed to reload settings: %w", err)
			}
			newCatalog := messaging.DefaultCatalog()
			if reloaded.MessagesPath != "" {
				if newCatalog, err = messaging.LoadCatalog(reloaded.MessagesPath); err != nil {
					return fmt.Errorf("failed to reload message catalog: %w", err)
				}
			}
			newCheats := check.DefaultCheats()
			if reloaded.CheatsPath != "" {
				if newCheats, err = check.LoadCheats(reloaded.CheatsPath); err != nil {
					return fmt.Errorf("failed to reload cheat definitions: %w", err)
				}
			}
			if err := st.Sync(ctx); err != nil {
				return fmt.Errorf("failed to resync store: %w", err)
			}
			app.loop.Do(func() {
				app.checks.SetConfig(reloaded.Check)
				app.checks.SetCheats(newCheats)
				freezer.SetConfig(reloaded.Freeze)
				app.tracker.SetConfig(reloaded.Afk)
				msg.SetCatalog(newCatalog)
			})
			logrus.Info("configuration reloaded")
			return nil
		},
	}
	app.apiServer = server.NewAPIServer(cfg.HTTPPort, handler, auth, cfg.HostToken)

	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.OtelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")
	return app, nil
}
