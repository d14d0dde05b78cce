package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"whale_watcher/internal/alert"
	"whale_watcher/internal/bootstrap"
	"whale_watcher/internal/config"
	"whale_watcher/internal/core"
	"whale_watcher/internal/engine"
	"whale_watcher/internal/infrastructure/metrics"
	"whale_watcher/pkg/logging"
	"whale_watcher/pkg/telemetry"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// .env is optional; deployments usually set the environment directly.
	_ = godotenv.Load()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	// Bootstrap logger; rebuilt at the configured level once telemetry
	// is up so records reach the OTel bridge.
	logger, _ := logging.NewZapLogger("INFO")

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configFile); err == nil {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			logger.Fatal("Failed to load config file", "path", *configFile, "error", err)
		}
		cfg = loaded
	} else {
		logger.Info("Config file not found, using default configuration", "path", *configFile)
	}

	tel, err := telemetry.Setup("whale_watcher")
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()

	logger, _ = logging.NewZapLogger(cfg.System.LogLevel)
	logging.SetGlobalLogger(logger)
	defer func() { _ = logger.Sync() }()

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Stop(ctx)
		}()
	}

	// Outbound side: telegram when configured, the log otherwise.
	var sink core.ISink
	var whitelist core.IWhitelist
	if cfg.Telegram.Enabled {
		sink = alert.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL, logger)
		whitelist = alert.NewStaticWhitelist(cfg.Telegram.Whitelist)
	} else {
		logger.Info("Telegram disabled, alerts go to the log")
		sink = alert.NewLogSink(logger)
		whitelist = alert.NewStaticWhitelist([]string{"console"})
	}
	notifier := alert.NewNotifier(sink, whitelist, logger)
	defer notifier.Stop()

	eng, err := engine.New(cfg, notifier, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", "error", err)
	}

	logger.Info("Starting whale watcher",
		"exchange", cfg.Exchange.Name,
		"symbols", cfg.Symbols,
		"sink", sink.Name(),
		"metrics_port", cfg.Telemetry.MetricsPort)

	app := bootstrap.NewApp(logger)
	if err := app.Run(eng); err != nil {
		logger.Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
