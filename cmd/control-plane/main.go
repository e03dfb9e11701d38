package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newLogger = logging.New
	newBroker = events.NewBroker
	newStore  = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newServer          = func(store *postgres.PostgresStore, broker *events.Broker, workflows *workflows.Service, cfg config.Config, logger *zap.Logger) server {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return api.NewServer(store, broker, workflows, cfg, api.WithLogger(logger), api.WithRegistry(reg))
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if workflowClient != nil {
		defer workflowClient.Close()
	}
	workflowService := newWorkflowService(workflowClient, cfg.TemporalTaskQueue)

	server := newServer(store, broker, workflowService, cfg, logger)

	addr := fmt.Sprintf(":%s", cfg.ControlPlanePort)
	logger.Info("seeker control plane listening", zap.String("addr", addr))
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}
