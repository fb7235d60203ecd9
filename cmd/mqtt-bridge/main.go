// Command mqtt-bridge runs the MQTT to HTTP delivery bridge as a standalone
// daemon: it subscribes to an MQTT topic, buffers messages in a bounded
// queue, and POSTs them to a configured HTTP endpoint with retries.
//
// Configuration is taken from environment variables; see internal/config.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coregx/mqttbridge"
	mqttadapter "github.com/coregx/mqttbridge/adapters/mqtt"
	relicaadapter "github.com/coregx/mqttbridge/adapters/relica"
	"github.com/coregx/mqttbridge/adapters/redisdlq"
	"github.com/coregx/mqttbridge/cmd/mqtt-bridge/internal/api"
	"github.com/coregx/mqttbridge/cmd/mqtt-bridge/internal/config"
	"github.com/coregx/mqttbridge/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mqtt-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zapLog.Sync() //nolint:errcheck
	logger := &zapLogger{sugar: zapLog.Sugar()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := mqttbridge.NewHTTPSink(cfg.Sink.URL,
		mqttbridge.WithRequestTimeout(cfg.Sink.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}

	outcomes, store, cleanup, err := buildOutcomeSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create dead-letter backend: %w", err)
	}
	defer cleanup()

	pipeline, err := mqttbridge.NewPipeline(
		mqttbridge.WithSink(sink),
		mqttbridge.WithLogger(logger),
		mqttbridge.WithRetryStrategy(retry.Strategy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			BaseDelay:   cfg.Pipeline.BaseDelay,
			Multiplier:  cfg.Pipeline.Multiplier,
			MaxDelay:    cfg.Pipeline.MaxDelay,
			Jitter:      cfg.Pipeline.Jitter,
		}),
		mqttbridge.WithQueueCapacity(cfg.Pipeline.QueueCapacity),
		mqttbridge.WithOverflowPolicy(mqttbridge.OverflowPolicy(cfg.Pipeline.OverflowPolicy)),
		mqttbridge.WithWorkers(cfg.Pipeline.Workers),
		mqttbridge.WithOutcomeSink(outcomes),
		mqttbridge.WithShutdownPolicy(mqttbridge.ShutdownPolicy(cfg.Pipeline.ShutdownPolicy)),
	)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	source, err := mqttadapter.NewSource(mqttadapter.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		Topic:     cfg.MQTT.Topic,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		QoS:       byte(cfg.MQTT.QoS),
	}, pipeline, logger)
	if err != nil {
		return fmt.Errorf("create mqtt source: %w", err)
	}

	var admin *http.Server
	if cfg.Admin.ListenAddr != "" {
		handler := api.NewHandler(pipeline, store, logger)
		admin = &http.Server{
			Addr:              cfg.Admin.ListenAddr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("Admin endpoint listening on %s", cfg.Admin.ListenAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Admin endpoint failed: %v", err)
			}
		}()
	}

	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start mqtt source: %w", err)
	}
	logger.Infof("Bridging %s (broker %s) to %s", cfg.MQTT.Topic, cfg.MQTT.BrokerURL, cfg.Sink.URL)

	// Blocks until SIGINT/SIGTERM, then drains and reports every
	// undelivered envelope before returning.
	if err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	source.Stop()
	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Admin endpoint shutdown: %v", err)
		}
	}

	logger.Info("Bridge stopped")
	return nil
}

// buildOutcomeSink wires the configured dead-letter backend. The returned
// store is non-nil only for backends the admin API can query.
func buildOutcomeSink(ctx context.Context, cfg *config.Config, logger mqttbridge.Logger) (mqttbridge.OutcomeSink, api.DeadLetterStore, func(), error) {
	noop := func() {}

	switch cfg.DeadLetter.Backend {
	case "log":
		return mqttbridge.NewLoggingOutcomeSink(logger), nil, noop, nil

	case "sql":
		db, err := sql.Open(cfg.DeadLetter.Driver, cfg.DeadLetter.DSN)
		if err != nil {
			return nil, nil, noop, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, noop, fmt.Errorf("ping %s: %w", cfg.DeadLetter.Driver, err)
		}
		repo := relicaadapter.NewDeadLetterRepository(db, cfg.DeadLetter.Driver)
		cleanup := func() { db.Close() }
		return mqttbridge.NewStoreOutcomeSink(repo, logger), repo, cleanup, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.DeadLetter.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		dlq, err := redisdlq.NewSink(client, cfg.DeadLetter.RedisStream, logger)
		if err != nil {
			client.Close()
			return nil, nil, noop, err
		}
		cleanup := func() { client.Close() }
		return dlq, nil, cleanup, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown dead-letter backend %q", cfg.DeadLetter.Backend)
	}
}

// zapLogger adapts a zap sugared logger to the pipeline's Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Info(msg string)                           { l.sugar.Info(msg) }
