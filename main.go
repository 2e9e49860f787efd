package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unplug/config"
	"unplug/log"
	"unplug/services"
	"unplug/simulator"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.GetInstance().Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize structured logger
	logger, err := log.Init(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.GetInstance().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := newBus(cfg, logger)

	// Core engines
	dispatcher := services.NewInterventionDispatcher(cfg, logger)
	engine := services.NewInsightEngine(cfg, logger)
	edge := services.NewEdgeService(cfg, bus, services.NewMetricCalculator(cfg), engine, logger)
	cloud := services.NewCloudService(cfg, bus, services.NewTrendAggregator(cfg, dispatcher, logger), logger)
	home := services.NewSmartHomeService(cfg, bus, dispatcher, logger)
	monitor := services.NewSystemHealthMonitor(cfg, bus, logger)

	// Optional collaborators
	sink := services.MultiReportSink{services.NewFileReportSink(cfg.ReportPath, logger)}

	var batchWriter *services.BatchWriterService
	if cfg.FirebaseDbUrl != "" && cfg.FirebaseServiceAccountJSON != "" {
		firebaseService, err := services.NewFirebaseService(ctx, cfg, logger)
		if err != nil {
			logger.Warn("Firebase unavailable, archiving disabled", zap.Error(err))
		} else {
			defer firebaseService.Close()
			batchWriter = services.NewBatchWriterService(cfg, firebaseService, logger)
			cloud.SetArchiver(batchWriter)
			sink = append(sink, firebaseService)
		}
	}

	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Warn("Telegram unavailable, alerts disabled", zap.Error(err))
			telegramService = nil
		} else {
			cloud.SetNotifier(telegramService)
			monitor.SetNotifier(telegramService)
			if err := telegramService.SendStartupMessage(); err != nil {
				logger.Warn("Failed to send startup message", zap.Error(err))
			}
		}
	}

	if cfg.DeviceGatewayURL != "" {
		home.SetForwarder(services.NewDeviceGatewayService(logger, cfg.DeviceGatewayURL))
		logger.Info("Device gateway forwarding enabled", zap.String("url", cfg.DeviceGatewayURL))
	}

	if err := monitor.Subscribe(); err != nil {
		logger.Fatal("Failed to subscribe health monitor", zap.Error(err))
	}
	if err := bus.Connect(ctx); err != nil {
		logger.Warn("Bus unavailable, continuing in degraded mode", zap.Error(err))
	}

	logger.Info("Unplug pipeline started",
		zap.String("service", cfg.ServiceName),
		zap.String("transport", cfg.Transport),
		zap.Strings("expected_components", cfg.ExpectedComponents))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return edge.Start(gctx) })
	g.Go(func() error { return cloud.Start(gctx) })
	g.Go(func() error { return home.Start(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	if batchWriter != nil {
		g.Go(func() error { return batchWriter.Start(gctx) })
	}
	if cfg.Transport == "memory" {
		sim := simulator.NewSimulator(
			simulator.NewGenerator(cfg.DefaultEntityID, cfg.RandomSeed),
			bus, cfg.TopicTelemetry, cfg.SimulatorInterval, logger)
		g.Go(func() error { return sim.Run(gctx) })
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Pipeline stopped with error", zap.Error(err))
	}

	logger.Info("Starting cleanup")

	report := monitor.Report()
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.SaveHealthReport(saveCtx, report); err != nil {
		logger.Error("Failed to save health report", zap.Error(err))
	}
	if telegramService != nil {
		if err := telegramService.SendShutdownMessage(report); err != nil {
			logger.Warn("Failed to send shutdown message", zap.Error(err))
		}
	}

	if err := bus.Disconnect(); err != nil {
		logger.Error("Error disconnecting bus", zap.Error(err))
	}

	logger.Info("Unplug pipeline stopped",
		zap.Float64("monitoring_duration_hours", report.MonitoringDurationHours),
		zap.Int("history_size", report.HistorySize))
}

func newBus(cfg *config.Config, logger *zap.Logger) services.Bus {
	switch cfg.Transport {
	case "amqp":
		return services.NewAMQPBus(cfg, cfg.ServiceName, logger)
	case "memory":
		return services.NewMemoryBus(cfg.BusBufferSize, logger)
	default:
		return services.NewMQTTBus(cfg, cfg.ServiceName, logger)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
