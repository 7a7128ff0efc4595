package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/artifacts"
	"github.com/inferloop/modelops/internal/drift"
	"github.com/inferloop/modelops/internal/lifecycle"
	"github.com/inferloop/modelops/internal/observability/alerting"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/internal/rollout"
	"github.com/inferloop/modelops/internal/server"
	"github.com/inferloop/modelops/internal/storage/memory"
	"github.com/inferloop/modelops/internal/storage/postgres"
	redisstore "github.com/inferloop/modelops/internal/storage/redis"
	"github.com/inferloop/modelops/internal/telemetry"
	"github.com/inferloop/modelops/pkg/interfaces"
)

func main() {
	config := ParseFlags()

	logger := setupLogger(config.LogLevel, config.LogFormat)

	logger.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting model lifecycle server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, err := buildRepositories(config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize record store")
	}

	artifactStore, err := buildArtifactStore(ctx, config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize artifact store")
	}
	defer artifactStore.Close()

	sink := buildTelemetrySink(config, logger)
	defer sink.Close()

	m := metrics.New("modelops")

	reg := registry.New(repos, &registry.Config{VersionRetention: config.VersionRetention}, m, logger)
	reg.SetArtifactStore(artifactStore)

	ctrl := rollout.New(repos, rollout.DefaultConfig(), m, sink, logger)

	mon := drift.New(repos, &drift.Config{
		Threshold:        config.DriftThreshold,
		RetrainThreshold: config.RetrainThreshold,
		HistoryLimit:     drift.DefaultConfig().HistoryLimit,
	}, m, sink, alerting.NewLogSink(logger), logger)

	orch := lifecycle.New(lifecycle.DefaultConfig(), reg, ctrl, mon, nil, logger)
	orch.Start(ctx)
	defer orch.Stop()

	handlers := server.NewHandlers(reg, ctrl, mon, orch, m, server.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildDate,
	}, logger)

	serverConfig := server.DefaultConfig()
	serverConfig.Host = config.Host
	serverConfig.Port = config.Port
	serverConfig.MetricsPort = config.MetricsPort
	if config.EnableTLS {
		serverConfig.TLSCertFile = config.TLSCert
		serverConfig.TLSKeyFile = config.TLSKey
	}

	srv, err := server.NewServer(serverConfig, handlers, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	go func() {
		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	if err := srv.Stop(context.Background()); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}

func buildRepositories(config *Config, logger *logrus.Logger) (*interfaces.Repositories, error) {
	switch config.StorageBackend {
	case "memory", "":
		return memory.NewRepositories(), nil
	case "redis":
		return redisstore.NewRepositories(&redisstore.Config{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}, logger)
	case "postgres":
		return postgres.NewRepositories(&postgres.Config{
			Host:     config.PostgresHost,
			Port:     config.PostgresPort,
			Database: config.PostgresDB,
			Username: config.PostgresUser,
			Password: config.PostgresPass,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.StorageBackend)
	}
}

func buildArtifactStore(ctx context.Context, config *Config, logger *logrus.Logger) (artifacts.Store, error) {
	switch config.ArtifactBackend {
	case "local", "":
		return artifacts.NewLocalStore(config.ArtifactDir, logger)
	case "s3":
		return artifacts.NewS3Store(ctx, &artifacts.S3Config{
			Region: config.S3Region,
			Bucket: config.S3Bucket,
			Prefix: config.S3Prefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", config.ArtifactBackend)
	}
}

func buildTelemetrySink(config *Config, logger *logrus.Logger) telemetry.Sink {
	if config.InfluxURL == "" {
		return telemetry.NopSink{}
	}
	return telemetry.NewInfluxSink(&telemetry.InfluxConfig{
		URL:    config.InfluxURL,
		Token:  config.InfluxToken,
		Org:    config.InfluxOrg,
		Bucket: config.InfluxBucket,
	}, logger)
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
