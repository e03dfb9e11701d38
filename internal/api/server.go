package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/rendezvous"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
)

type Server struct {
	store     store.Store
	broker    Broker
	workflows WorkflowService
	cfg       config.Config
	waits     *rendezvous.Table
	metrics   http.Handler
	logger    *zap.Logger

	waitMu  sync.Mutex
	waiting map[string]string
}

type Broker interface {
	Publish(event events.QuestionEvent)
	Subscribe(ctx context.Context, questionID string) <-chan events.QuestionEvent
}

type WorkflowService interface {
	StartQuestion(ctx context.Context, questionID string, question string, token string) error
	CancelQuestion(ctx context.Context, questionID string) error
}

type ServerOption func(*Server)

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry serves /metrics from reg and registers the API collectors on it.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) {
		if reg == nil {
			return
		}
		s.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "seeker",
			Subsystem: "api",
			Name:      "pending_waits",
			Help:      "Question requests blocked on an answer",
		}, func() float64 {
			return float64(s.waits.Pending())
		})
	}
}

func NewServer(store store.Store, broker Broker, workflows WorkflowService, cfg config.Config, opts ...ServerOption) *Server {
	server := &Server{
		store:     store,
		broker:    broker,
		workflows: workflows,
		cfg:       cfg,
		metrics:   promhttp.Handler(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.waits = rendezvous.NewTable(cfg.APIWaitTimeout, server.logger)
	server.waiting = map[string]string{}
	return server
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/questions", s.createQuestion)
	r.Get("/questions", s.listQuestions)
	r.Get("/questions/{id}", s.getQuestion)
	r.Delete("/questions/{id}", s.deleteQuestion)
	r.Post("/questions/{id}/cancel", s.cancelQuestion)
	r.Post("/questions/{id}/answer", s.postAnswer)
	r.Get("/questions/{id}/trail", s.listTrail)
	r.Post("/questions/{id}/trail", s.uploadTrail)
	r.Get("/questions/{id}/progress", s.getProgress)
	r.Post("/questions/{id}/events", s.ingestEvent)
	r.Get("/questions/{id}/events", s.streamEvents)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if strings.HasSuffix(cleanPath, "/events") && (method == http.MethodPost || method == http.MethodGet) {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/questions" || cleanPath == "/metrics" || strings.HasSuffix(cleanPath, "/progress")) {
		return true
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                     `json:"status"`
	Subsystems   map[string]subsystemStatus `json:"subsystems"`
	PendingWaits int                        `json:"pending_waits"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.ListQuestions(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	if s.workflows == nil {
		subsystems["workflows"] = subsystemStatus{Status: "error", Error: "workflow client not configured"}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["workflows"] = subsystemStatus{Status: "ok"}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems, PendingWaits: s.waits.Pending()}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

type ingestEventRequest struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	Payload   map[string]any `json:"payload"`
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "event type required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Type, "_") {
		http.Error(w, "event type must use dot notation", http.StatusBadRequest)
		return
	}
	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event := store.QuestionEvent{
		QuestionID: questionID,
		Type:       events.NormalizeType(req.Type),
		Timestamp:  timestamp,
		Source:     req.Source,
		TraceID:    strings.TrimSpace(req.TraceID),
		Payload:    req.Payload,
	}
	if event.TraceID == "" {
		event.TraceID = uuid.New().String()
	}
	if isTransientPayload(req.Payload) {
		s.broker.Publish(toEvent(event))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.recordEvent(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// recordEvent assigns the next seq, stores the event and publishes it to live subscribers.
func (s *Server) recordEvent(ctx context.Context, event store.QuestionEvent) error {
	seq, err := s.store.NextSeq(ctx, event.QuestionID)
	if err != nil {
		return err
	}
	event.Seq = seq
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.TraceID == "" {
		event.TraceID = uuid.New().String()
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return err
	}
	s.broker.Publish(toEvent(event))
	return nil
}

func isTransientPayload(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if value, ok := payload["transient"]; ok {
		if flag, ok := value.(bool); ok {
			return flag
		}
	}
	return false
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	afterSeq := parseAfterSeq(questionID, r)
	stored, err := s.store.ListEvents(ctx, questionID, afterSeq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, event := range stored {
		sendSSE(w, toEvent(event))
		flusher.Flush()
	}

	eventsChan := s.broker.Subscribe(ctx, questionID)
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			sendSSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.QuestionEvent) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s:%d\n", event.QuestionID, event.Seq)
	fmt.Fprint(w, "event: question_event\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func toEvent(event store.QuestionEvent) events.QuestionEvent {
	return events.QuestionEvent{
		QuestionID: event.QuestionID,
		Seq:        event.Seq,
		Type:       events.NormalizeType(event.Type),
		Ts:         event.Timestamp,
		Source:     event.Source,
		TraceID:    event.TraceID,
		Payload:    event.Payload,
	}
}

func parseAfterSeq(questionID string, r *http.Request) int64 {
	afterParam := strings.TrimSpace(r.URL.Query().Get("after_seq"))
	if afterParam != "" {
		if parsed, err := strconv.ParseInt(afterParam, 10, 64); err == nil {
			return parsed
		}
	}
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		return 0
	}
	parts := strings.Split(lastEventID, ":")
	if len(parts) != 2 {
		return 0
	}
	if parts[0] != questionID {
		return 0
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
