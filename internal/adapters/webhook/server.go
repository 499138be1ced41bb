package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/eleven-am/flux/internal/domain"
	"github.com/eleven-am/flux/internal/ports"
	json "github.com/eleven-am/flux/internal/xjson"
)

// Server is the HTTP ingress for webhook triggers. A request is resolved
// through the dispatcher and answered synchronously while the run proceeds
// asynchronously.
type Server struct {
	config     domain.WebhookConfig
	dispatcher ports.DispatcherPort
	contexts   ports.ContextManagerPort
	logger     *slog.Logger

	router *mux.Router
	server *http.Server
}

func NewServer(config domain.WebhookConfig, dispatcher ports.DispatcherPort, contexts ports.ContextManagerPort, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:     config,
		dispatcher: dispatcher,
		contexts:   contexts,
		logger:     logger.With("component", "webhook-server"),
		router:     mux.NewRouter(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/webhook/{triggerKey}", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/executions/{executionID}", s.handleExecutionStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/executions/{executionID}", s.handleCancelExecution).Methods(http.MethodDelete)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.BindAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("webhook server listening", "addr", s.config.BindAddr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webhook server stopped unexpectedly", "error", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Debug("shutting down webhook server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	triggerKey := mux.Vars(r)["triggerKey"]

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	observe := s.config.EmitObserve || r.URL.Query().Get("observe") == "true"

	ack, err := s.dispatcher.Dispatch(triggerKey, payload, observe)
	if err != nil {
		switch {
		case domain.IsTriggerNotFound(err):
			s.writeError(w, http.StatusNotFound, "no trigger registered for key")
		case domain.IsBusy(err):
			s.writeError(w, http.StatusConflict, "graph busy")
		default:
			s.logger.Error("dispatch failed",
				"trigger_key", triggerKey,
				"error", err)
			s.writeError(w, http.StatusInternalServerError, "dispatch failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, ack)
}

// handleExecutionStatus answers with the isolation-filtered snapshot. An
// unknown or expired execution id yields an empty snapshot, not an error.
func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionID"]

	snapshot := s.contexts.Snapshot(executionID)
	if snapshot == nil {
		s.writeJSON(w, http.StatusOK, domain.NodeStatusSnapshot{
			ExecutionID: executionID,
			NodeStates:  map[string]*domain.NodeState{},
		})
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionID"]

	if err := s.dispatcher.CancelExecution(executionID); err != nil {
		if domain.IsContextNotFound(err) {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		s.logger.Error("cancel failed",
			"execution_id", executionID,
			"error", err)
		s.writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"cancelled":    true,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	encoded, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"accepted": false,
		"error":    message,
	})
}
