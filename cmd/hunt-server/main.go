package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/landmarkhunt/hunt/internal/agent"
	"github.com/landmarkhunt/hunt/internal/cache"
	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/dispatcher"
	"github.com/landmarkhunt/hunt/internal/influx"
	"github.com/landmarkhunt/hunt/internal/logging"
	"github.com/landmarkhunt/hunt/internal/monitor"
	intOtel "github.com/landmarkhunt/hunt/internal/otel"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/internal/server"
	"github.com/landmarkhunt/hunt/internal/session"
	"github.com/landmarkhunt/hunt/internal/storage"
	"github.com/landmarkhunt/hunt/internal/worker"
	"github.com/landmarkhunt/hunt/pkg/core"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "hunt-server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configDir := flag.String("config", ".", "Directory containing "+config.ConfigFileName)
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ServiceName, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	sessionStart := time.Now()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, ServiceName, sessionStart)
	if _, err := os.Stat(logFilePath); err == nil {
		_ = os.Rename(logFilePath, logFilePath+".old")
	}
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}
	defer logFile.Close()

	// OTel
	var otelProvider *intOtel.Provider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		otelProvider, err = intOtel.New(intOtel.FromConfig(otelCfg, logFile))
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			logger.Info("OTel provider initialized", "file", logFilePath, "endpoint", otelCfg.Endpoint)
		}
	}
	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider != nil {
		otelLogProvider = otelProvider.LoggerProvider()
	}

	// Graylog
	var gelfWriter *gelf.Writer
	if viper.GetBool("graylog.enabled") {
		gelfWriter, err = gelf.NewWriter(viper.GetString("graylog.address"))
		if err != nil {
			logger.Error("Failed to connect to Graylog", "error", err)
			gelfWriter = nil
		}
	}

	var sessions *session.Manager
	slogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider,
		logging.WithServiceName(otelCfg.ServiceName),
		logging.WithGelf(gelfWriter),
		logging.WithContext(func() []slog.Attr {
			if sessions == nil {
				return nil
			}
			return []slog.Attr{slog.Int("activeRounds", sessions.ActiveRounds())}
		}),
	)
	logger = slogManager.Logger()
	logger.Info("Logging to file", "path", logFilePath, "version", Version, "buildDate", BuildDate)

	zlog := zerolog.New(logFile).With().Timestamp().Str("service", ServiceName).Logger()

	// Storage
	backend, err := storage.NewBackend(config.GetStorageConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to init storage backend: %w", err)
	}
	logger.Info("Storage backend initialized", "type", config.GetStorageConfig().Type)

	// InfluxDB
	influxManager := influx.NewManager(zlog, filepath.Join(logsDir, "influx_backup.lp.gz"))
	if err := influxManager.Connect(context.Background()); err != nil && !errors.Is(err, influx.ErrDisabled) {
		logger.Error("Failed to connect to InfluxDB", "error", err)
	}

	// Dispatcher and workers
	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	workerManager := worker.NewManager(worker.Dependencies{
		Backend: backend,
		Influx:  influxManager,
		Logger:  logger,
	})
	workerManager.RegisterHandlers(eventDispatcher)

	// Sessions
	agentCfg := config.GetAgentConfig()
	roundCfg := config.GetRoundConfig()
	coneCfg := config.GetConeConfig()

	var meta round.MetaEnsurer
	if agentCfg.LandmarkMetaURL != "" {
		meta = agent.NewLandmarkMetaClient(agentCfg.LandmarkMetaURL, agentCfg.Timeout, logger)
	}
	var puzzles round.PuzzleProvider
	if agentCfg.PuzzleURL != "" {
		puzzles = agent.NewPuzzleClient(agentCfg.PuzzleURL, agentCfg.Timeout)
	}

	sessions, err = session.NewManager(session.Config{
		Round: round.Config{
			AttemptBudget: roundCfg.AttemptBudget,
			MaxDuration:   roundCfg.MaxDuration,
			Language:      roundCfg.Language,
			Style:         roundCfg.Style,
		},
		DefaultRadius: roundCfg.DefaultRadius,
		Cone: core.Pose{
			HalfSpanDeg:  coneCfg.HalfSpanDeg,
			RadiusMeters: coneCfg.RadiusMeters,
			Resolution:   coneCfg.Resolution,
		},
	}, session.Dependencies{
		Catalog:    backend,
		Subjects:   backend,
		Puzzles:    puzzles,
		Meta:       meta,
		Recorder:   workerManager.Recorder(eventDispatcher),
		OnRoundEnd: workerManager.OnRoundEnd(eventDispatcher),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	// Monitor
	monitorService := monitor.NewService(monitor.Dependencies{
		Sessions:  sessions,
		Writer:    workerManager,
		Events:    eventDispatcher,
		Logger:    logger,
		StatusDir: logsDir,
	})
	if err := monitorService.Start(); err != nil {
		logger.Warn("Failed to start monitor", "error", err)
	}

	// HTTP
	srv := server.New(config.GetServerConfig(), server.Dependencies{
		Sessions:  sessions,
		Profiles:  backend,
		Landmarks: cache.NewCityCache(backend, cache.DefaultTTL),
		Monitor:   monitorService,
		Logger:    logger,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	sessions.Wait()
	if err := eventDispatcher.Close(shutdownCtx); err != nil {
		logger.Error("Dispatcher did not drain", "error", err)
	}
	monitorService.Stop()
	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage backend", "error", err)
	}
	if err := influxManager.Close(); err != nil {
		logger.Error("Failed to close InfluxDB", "error", err)
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
