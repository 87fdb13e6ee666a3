// Package realtime runs the escalation engine against the live
// detection stream.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/conf"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/datastore"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/deterrent"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/escalation"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/events"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/ingest"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/logging"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/notification"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

// Command creates the realtime command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the escalation engine in realtime mode",
		Long:  "Subscribe to the live detection stream and coordinate deterrent escalations.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runEngine(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Ingest.Broker, "broker", viper.GetString("ingest.broker"), "MQTT broker URL of the detection stream")
	cmd.Flags().StringVar(&settings.Ingest.Topic, "topic", viper.GetString("ingest.topic"), "Detections topic")
	cmd.Flags().StringVar(&settings.Deterrent.Endpoint, "deterrent", viper.GetString("deterrent.endpoint"), "Deterrent controller base URL")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "telemetry", viper.GetBool("metrics.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "listen", viper.GetString("metrics.listen"), "Listen address of the telemetry endpoint")

	return viper.BindPFlags(cmd.Flags())
}

func runEngine(settings *conf.Settings) error {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}
	logger := logging.ForService("realtime")

	ingestLogger, closeIngestLog := serviceFileLogger(settings, "ingest", logger)
	defer closeIngestLog()
	escalationLogger, closeEscalationLog := serviceFileLogger(settings, "escalation", logger)
	defer closeEscalationLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := metrics.NewMetrics()
	if err != nil {
		return err
	}

	store, err := datastore.Open(settings.Datastore.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	bus := events.NewBus(events.DefaultConfig())

	notifier := notification.NewService(&notification.Config{
		MaxNotifications:   settings.Notification.MaxNotifications,
		CleanupInterval:    settings.Notification.CleanupInterval,
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 100,
		SubscriberBuffer:   64,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	for _, consumer := range []events.Consumer{
		notifier,
		datastore.NewTransitionRecorder(store),
		telemetry.Engine,
	} {
		if err := bus.RegisterConsumer(consumer); err != nil {
			return err
		}
	}

	controller := deterrent.NewHTTPController(settings.Deterrent.Endpoint)
	dispatcher := deterrent.NewDispatcher(controller, settings.Deterrent.EffectivenessWindow)
	tracker := deterrent.NewTracker(controller)
	sounds := deterrent.NewSoundLibrary(settings.Deterrent.SoundCacheTTL)

	engine, err := escalation.New(escalation.Config{
		Dedup: alert.NewDeduplicator(alert.DeduplicatorConfig{
			MaxKeys:          settings.Dedup.MaxKeys,
			EscalationWindow: settings.Escalation.Window,
		}),
		Dispatcher:           dispatcher,
		Tracker:              tracker,
		Sounds:               sounds,
		Bus:                  bus,
		Store:                store,
		ConfirmationWindow:   settings.Escalation.Confirmation,
		AcknowledgmentWindow: settings.Escalation.Acknowledgment,
		Logger:               escalationLogger,
	})
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	subscriber := ingest.NewSubscriber(settings.Ingest, settings.Main.Name, engine)
	subscriber.SetMetrics(telemetry.Ingest)
	subscriber.SetLogger(ingestLogger)
	if err := subscriber.Start(ctx); err != nil {
		// The broker may simply not be up yet; the client keeps
		// retrying with its fixed delay while the engine reports
		// degraded mode.
		logger.Warn("initial stream connection failed, retrying in background", "error", err)
		engine.SetDegraded(true, err)
	}
	defer subscriber.Stop()

	if settings.Metrics.Enabled {
		startTelemetryEndpoint(ctx, settings.Metrics.Listen, telemetry, logger)
	}

	logger.Info("escalation engine running",
		"broker", settings.Ingest.Broker,
		"topic", settings.Ingest.Topic,
		"deterrent", settings.Deterrent.Endpoint,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := engine.Shutdown(shutdownTimeout); err != nil {
		logger.Error("engine shutdown", "error", err)
	}
	tracker.Shutdown()
	if err := bus.Shutdown(shutdownTimeout); err != nil {
		logger.Error("bus shutdown", "error", err)
	}
	return nil
}

// serviceFileLogger builds a rotated file logger for a chatty service
// under logging.dir. A nil return falls back to the default service
// logger.
func serviceFileLogger(settings *conf.Settings, service string, logger *slog.Logger) (*slog.Logger, func()) {
	if settings.Logging.Dir == "" {
		return nil, func() {}
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}

	fileLogger, closer, err := logging.NewFileLogger(
		filepath.Join(settings.Logging.Dir, service+".log"), service, level)
	if err != nil {
		logger.Warn("file logger unavailable, using default output",
			"service", service,
			"error", err,
		)
		return nil, func() {}
	}

	return fileLogger, func() {
		if err := closer(); err != nil {
			logger.Error("failed to close log file", "service", service, "error", err)
		}
	}
}

func startTelemetryEndpoint(ctx context.Context, listen string, telemetry *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("telemetry endpoint listening", "listen", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("telemetry endpoint failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
