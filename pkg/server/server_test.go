package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/orchestrator"
)

type stubExecutor struct {
	result  orchestrator.Result
	err     error
	lastReq orchestrator.TaskRequest
}

func (s *stubExecutor) Execute(ctx context.Context, req orchestrator.TaskRequest) (orchestrator.Result, error) {
	s.lastReq = req
	if strings.TrimSpace(req.Instruction) == "" {
		return orchestrator.Result{}, orchestrator.ErrMissingInstruction
	}
	if s.err != nil {
		return orchestrator.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubExecutor) Budgets() orchestrator.Budgets {
	return orchestrator.NewBudgets(config.Timeouts{
		Agent: 90 * time.Second,
	})
}

func newTestServer(t *testing.T, exec Executor) *Server {
	t.Helper()
	log, _ := logging.NewLogger("server-test")
	t.Cleanup(func() { log.Close() })
	cfg := config.Config{
		PrimaryEngine:      config.EngineBrowser,
		AgentEnabled:       true,
		CLIFallbackEnabled: true,
		Model:              "gpt-4o-mini",
		OpenAIAPIKey:       "sk-test",
	}
	return NewServer(exec, cfg, log)
}

func postExecute(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestExecuteSuccess(t *testing.T) {
	exec := &stubExecutor{result: orchestrator.Result{
		OK:         true,
		Engine:     "engine-action",
		TaskPrompt: "Primary instruction: click the button",
		Result: orchestrator.ResultBody{
			FinalMessage: "clicked the button",
			ConfirmedURL: "https://example.com/next",
			PageTitle:    "Next",
			IsDone:       true,
		},
	}}
	srv := newTestServer(t, exec)

	rec := postExecute(t, srv, `{"instruction":"click the button","start_url":"https://example.com","max_steps":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.OK)
	assert.Equal(t, "engine-action", got.Engine)
	assert.Equal(t, "clicked the button", got.Result.FinalMessage)
	assert.Equal(t, "https://example.com/next", got.Result.ConfirmedURL)

	assert.Equal(t, "click the button", exec.lastReq.Instruction)
	assert.Equal(t, "https://example.com", exec.lastReq.StartURL)
	assert.Equal(t, 5, exec.lastReq.MaxSteps)
}

func TestExecuteMissingInstruction(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{})

	rec := postExecute(t, srv, `{"start_url":"https://example.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "Missing required field: instruction", resp.Error)
}

func TestExecuteInvalidJSON(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{})

	rec := postExecute(t, srv, `{"instruction": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid request body", resp.Error)
}

func TestExecuteOrchestrationFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("engine-action error: element not found; external-tool-fallback error: no success marker in output")}
	srv := newTestServer(t, exec)

	rec := postExecute(t, srv, `{"instruction":"click the missing button"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "engine-action error")
	assert.Contains(t, resp.Error, "external-tool-fallback error")
}

func TestHealthReportsConfigAndBudgets(t *testing.T) {
	srv := newTestServer(t, &stubExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, config.EngineBrowser, resp.PrimaryEngine)
	assert.True(t, resp.AgentEnabled)
	assert.True(t, resp.CLIFallback)
	assert.True(t, resp.OpenAICredential, "key presence is reported, never the key")
	assert.Equal(t, "1m30s", resp.EffectiveTimeouts["agent"])
	assert.Equal(t, "5s", resp.EffectiveTimeouts["init"], "zero config values are raised to the floor")
}
