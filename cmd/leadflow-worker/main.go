package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/flow"
	"github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "leadflow-worker"

func main() {
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Run column automations for leads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for pauses and current actions (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "crm-url",
				Usage:    "Base URL of the CRM backend",
				Required: true,
				Sources:  cli.EnvVars("CRM_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-token",
				Usage:   "Bearer token for the CRM backend",
				Sources: cli.EnvVars("CRM_TOKEN"),
			},
			&cli.StringFlag{
				Name:     "whatsapp-url",
				Usage:    "Base URL of the WhatsApp gateway",
				Required: true,
				Sources:  cli.EnvVars("WHATSAPP_URL"),
			},
			&cli.StringFlag{
				Name:    "whatsapp-token",
				Usage:   "Bearer token for the WhatsApp gateway",
				Sources: cli.EnvVars("WHATSAPP_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "gateway-timeout",
				Usage:   "Timeout of CRM and WhatsApp requests",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("GATEWAY_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "reply-poll-interval",
				Usage:   "How often a waiting WhatsApp action checks for a reply",
				Value:   flow.DefaultPollInterval,
				Sources: cli.EnvVars("REPLY_POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving Prometheus metrics (0 disables)",
				Value:   9092,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule(serviceName).With("workerId", workerID)

	logger.InfoContext(ctx, "Initializing Leadflow Worker")

	tracer := otelhelper.NoopTracer()

	if command.Bool("tracing") {
		otelTracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return err
		}

		defer func() {
			err := shutdown(context.Background())
			if err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = otelTracer
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.Background())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	backend, messenger := cmd.NewGateways(cmd.GatewayConfig{
		CRMURL:        command.String("crm-url"),
		CRMToken:      command.String("crm-token"),
		WhatsAppURL:   command.String("whatsapp-url"),
		WhatsAppToken: command.String("whatsapp-token"),
		Timeout:       command.Duration("gateway-timeout"),
	}, logger)

	m := metrics.New()

	runtime := cmd.NewRuntime(cmd.RuntimeDependencies{
		Persistence: persistence,
		Backend:     backend,
		Messenger:   messenger,
		Notifier:    eventbus.NewNotifier(eventBus),
		Logger:      logger,
		Metrics:     m,
		Tracer:      tracer,

		ReplyPollInterval: command.Duration("reply-poll-interval"),
	})
	defer runtime.Stop()

	err = runtime.Start(ctx)
	if err != nil {
		return err
	}

	if port := command.Int("metrics-port"); port > 0 {
		server := serveMetrics(ctx, logger, m, port)
		defer func() {
			_ = server.Shutdown(context.Background())
		}()
	}

	worker := NewWorkerManager(workerID, runtime.Engine, eventBus, logger)

	err = worker.Start(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)

		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func serveMetrics(ctx context.Context, logger *slog.Logger, m *metrics.Metrics, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()

	return server
}
