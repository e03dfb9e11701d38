package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newLogger    = logging.New
	dialTemporal = client.Dial
	newStore     = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	newDeps        = research.NewDeps
	newRedisClient = func(redisURL string) (redis.UniversalClient, error) {
		return navigator.NewRedisClient(redisURL)
	}
	newActivities = func(st store.Store, cfg config.Config, deps research.Deps, opts ...workflows.QuestionActivitiesOption) *workflows.QuestionActivities {
		return workflows.NewQuestionActivities(st, cfg, deps, opts...)
	}
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
	serveMetrics                            = func(addr string, handler http.Handler) error {
		return http.ListenAndServe(addr, handler)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	st, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	deps, err := newDeps(cfg, logger)
	if err != nil {
		return err
	}
	deps.Metrics = navigator.NewMetrics(metricsRegisterer)

	opts := []workflows.QuestionActivitiesOption{workflows.WithLogger(logger)}
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		opts = append(opts, workflows.WithSeenFactory(func(questionID string) navigator.SeenCache {
			return navigator.NewRedisSeen(redisClient, questionID, 0)
		}))
	}
	activities := newActivities(st, cfg, deps, opts...)

	if cfg.WorkerMetricsPort != "" {
		addr := fmt.Sprintf(":%s", cfg.WorkerMetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := serveMetrics(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.QuestionWorkflow)
	w.RegisterActivity(activities)

	logger.Info("seeker worker started", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
