// Package server exposes the orchestrator over HTTP: one execution endpoint
// and one health endpoint. Transport concerns only; all orchestration
// semantics live behind the Executor interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/orchestrator"
)

// Executor runs one instruction end to end. Implemented by
// orchestrator.Orchestrator; tests substitute a stub.
type Executor interface {
	Execute(ctx context.Context, req orchestrator.TaskRequest) (orchestrator.Result, error)
	Budgets() orchestrator.Budgets
}

type Server struct {
	exec Executor
	cfg  config.Config
	log  *logging.Logger
}

func NewServer(exec Executor, cfg config.Config, log *logging.Logger) *Server {
	return &Server{exec: exec, cfg: cfg, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/api/execute", s.execute)
	r.Get("/api/health", s.health)

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.TrimSpace(r.URL.Path) == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

type executeRequest struct {
	Instruction string `json:"instruction"`
	ContextText string `json:"context_text"`
	StartURL    string `json:"start_url"`
	MaxSteps    int    `json:"max_steps"`
	KeepAlive   bool   `json:"keep_alive"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}

	result, err := s.exec.Execute(r.Context(), orchestrator.TaskRequest{
		Instruction: req.Instruction,
		ContextText: req.ContextText,
		StartURL:    req.StartURL,
		MaxSteps:    req.MaxSteps,
		KeepAlive:   req.KeepAlive,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrMissingInstruction) {
			writeJSONStatus(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
			return
		}
		s.log.Errorf("execution failed: %v", err)
		writeJSONStatus(w, errorResponse{Error: err.Error()}, http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, result, http.StatusOK)
}

// healthResponse reports configuration and the effective budget values.
// Credentials are reported as presence booleans only.
type healthResponse struct {
	Status            string            `json:"status"`
	PrimaryEngine     string            `json:"primary_engine"`
	AgentEnabled      bool              `json:"agent_enabled"`
	CLIFallback       bool              `json:"cli_fallback"`
	Model             string            `json:"model"`
	OpenAICredential  bool              `json:"openai_credential"`
	EffectiveTimeouts map[string]string `json:"effective_timeouts"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	b := s.exec.Budgets()
	writeJSONStatus(w, healthResponse{
		Status:           "ok",
		PrimaryEngine:    s.cfg.PrimaryEngine,
		AgentEnabled:     s.cfg.AgentEnabled,
		CLIFallback:      s.cfg.CLIFallbackEnabled,
		Model:            s.cfg.Model,
		OpenAICredential: s.cfg.HasOpenAICredential(),
		EffectiveTimeouts: map[string]string{
			"init":       b.Init.String(),
			"navigation": b.Navigation.String(),
			"action":     b.Action.String(),
			"agent":      b.Agent.String(),
			"cli":        b.CLI.String(),
			"overall":    b.Overall.String(),
		},
	}, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully with a bounded drain window.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
