package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexus-rpc/sdk-go/nexus"
	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/workflows"
)

type stubWorker struct {
	runErr     error
	startErr   error
	workflows  int
	activities int
}

func (s *stubWorker) RegisterWorkflow(w interface{}) { s.workflows++ }

func (s *stubWorker) RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicWorkflow(w interface{}, options workflow.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterActivity(a interface{}) { s.activities++ }

func (s *stubWorker) RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicActivity(a interface{}, options activity.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterNexusService(_ *nexus.Service) {}

func (s *stubWorker) Start() error {
	return s.startErr
}

func (s *stubWorker) Run(_ <-chan interface{}) error {
	return s.runErr
}

func (s *stubWorker) Stop() {}

func captureWorkerDeps() func() {
	origLoadConfig := loadConfig
	origNewLogger := newLogger
	origDialTemporal := dialTemporal
	origNewStore := newStore
	origNewDeps := newDeps
	origNewRedisClient := newRedisClient
	origNewActivities := newActivities
	origMetricsRegisterer := metricsRegisterer
	origServeMetrics := serveMetrics
	origNewWorker := newWorker
	origWorkerInterrupt := workerInterrupt

	return func() {
		loadConfig = origLoadConfig
		newLogger = origNewLogger
		dialTemporal = origDialTemporal
		newStore = origNewStore
		newDeps = origNewDeps
		newRedisClient = origNewRedisClient
		newActivities = origNewActivities
		metricsRegisterer = origMetricsRegisterer
		serveMetrics = origServeMetrics
		newWorker = origNewWorker
		workerInterrupt = origWorkerInterrupt
	}
}

func stubWorkerHappyPath(w *stubWorker) {
	newLogger = func(_ string, _ string) (*zap.Logger, error) {
		return zap.NewNop(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newStore = func(_ string) (*postgres.PostgresStore, error) {
		return &postgres.PostgresStore{}, nil
	}
	newDeps = func(_ config.Config, logger *zap.Logger) (research.Deps, error) {
		return research.Deps{Logger: logger}, nil
	}
	metricsRegisterer = prometheus.NewRegistry()
	newWorker = func(_ client.Client, _ string, _ worker.Options) worker.Worker {
		return w
	}
	workerInterrupt = func() <-chan interface{} {
		return make(chan interface{})
	}
}

func TestRunSuccess(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{
			PostgresURL:     "postgres://example",
			TemporalAddress: "localhost:7233",
			ControlPlaneURL: "http://localhost:8080",
		}, nil
	}
	w := &stubWorker{}
	stubWorkerHappyPath(w)
	var gotDeps research.Deps
	newActivities = func(_ store.Store, _ config.Config, deps research.Deps, _ ...workflows.QuestionActivitiesOption) *workflows.QuestionActivities {
		gotDeps = deps
		return &workflows.QuestionActivities{}
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if w.workflows != 1 || w.activities != 1 {
		t.Fatalf("expected one workflow and one activity set, got %d and %d", w.workflows, w.activities)
	}
	if gotDeps.Metrics == nil {
		t.Fatal("expected navigator metrics to be wired")
	}
}

func TestRunWithRedisSeenCache(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	mr := miniredis.RunT(t)
	loadConfig = func() (config.Config, error) {
		return config.Config{RedisURL: "redis://" + mr.Addr()}, nil
	}
	stubWorkerHappyPath(&stubWorker{})
	var optionCount int
	newActivities = func(st store.Store, cfg config.Config, deps research.Deps, opts ...workflows.QuestionActivitiesOption) *workflows.QuestionActivities {
		optionCount = len(opts)
		return workflows.NewQuestionActivities(st, cfg, deps, opts...)
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if optionCount != 2 {
		t.Fatalf("expected logger and seen factory options, got %d", optionCount)
	}
}

func TestRunRedisURLInvalid(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{RedisURL: "not-a-redis-url"}, nil
	}
	stubWorkerHappyPath(&stubWorker{})

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunServesMetricsWhenPortSet(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{WorkerMetricsPort: "9464"}, nil
	}
	stubWorkerHappyPath(&stubWorker{})
	served := make(chan string, 1)
	serveMetrics = func(addr string, _ http.Handler) error {
		served <- addr
		return http.ErrServerClosed
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if addr := <-served; addr != ":9464" {
		t.Fatalf("expected :9464, got %q", addr)
	}
}

func TestRunDepsFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, nil
	}
	stubWorkerHappyPath(&stubWorker{})
	newDeps = func(_ config.Config, _ *zap.Logger) (research.Deps, error) {
		return research.Deps{}, errors.New("llm provider: unsupported provider")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunWorkerError(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, nil
	}
	stubWorkerHappyPath(&stubWorker{runErr: errors.New("worker stopped")})

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("config load failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunTemporalClientFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{TemporalAddress: "localhost:7233"}, nil
	}
	stubWorkerHappyPath(&stubWorker{})
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, errors.New("temporal dial failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}
