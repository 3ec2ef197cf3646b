package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/application/port/input"
	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/agentrun"
)

type stubRunner struct {
	result   *input.RunResult
	err      error
	progress []string
}

func (s *stubRunner) Run(ctx context.Context, task string, progress input.ProgressFunc) (*input.RunResult, error) {
	if progress != nil {
		for _, p := range s.progress {
			progress(p)
		}
	}
	return s.result, s.err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                          {}
func (nopLogger) Info(string, ...any)                           {}
func (nopLogger) Warn(string, ...any)                           {}
func (nopLogger) Error(string, ...any)                          {}
func (l nopLogger) WithField(string, any) output.LoggerPort     { return l }
func (l nopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (nopLogger) Close() error                                  { return nil }

func newTestServer(agent, research input.AgentRunner) *Server {
	return New(agent, research, agentrun.New(), nil, nopLogger{})
}

func TestHandleChat_ReturnsFinalAnswerSynchronously(t *testing.T) {
	srv := newTestServer(&stubRunner{result: &input.RunResult{FinalAnswer: "hello"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"prompt":"hi"}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "hello", body["content"])
	assert.NotEmpty(t, body["conversationId"])
}

func TestHandleChat_PropagatesRunnerError(t *testing.T) {
	srv := newTestServer(&stubRunner{err: assert.AnError}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"prompt":"hi"}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleChat_RejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`not json`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAgentRun_AcknowledgesImmediatelyWithConversationID(t *testing.T) {
	srv := newTestServer(&stubRunner{result: &input.RunResult{FinalAnswer: "done"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewBufferString(`{"prompt":"go do it","conversationId":"conv-1"}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var body ackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "conv-1", body.ConversationID)
}

func TestHandleAgentStop_SetsAbortFlag(t *testing.T) {
	abort := agentrun.New()
	srv := New(&stubRunner{}, &stubRunner{}, abort, nil, nopLogger{})

	req := httptest.NewRequest(http.MethodPost, "/agent/stop", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, abort.Aborted())
}

func TestHandleEvents_StreamsProgressDoneForARun(t *testing.T) {
	runner := &stubRunner{
		result:   &input.RunResult{FinalAnswer: "ok"},
		progress: []string{"step one", "step two"},
	}
	srv := newTestServer(runner, nil)

	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	// Subscribe before triggering the run: the handler flushes SSE headers
	// (and this client unblocks) before the run goroutine can publish
	// anything, so the subscription is always in place first.
	eventsReq, _ := http.NewRequest(http.MethodGet, server.URL+"/events/conv-2", nil)
	eventsReq = eventsReq.WithContext(contextWithTimeout(t))
	eventsResp, err := http.DefaultClient.Do(eventsReq)
	require.NoError(t, err)
	defer eventsResp.Body.Close()

	runReq, _ := http.NewRequest(http.MethodPost, server.URL+"/agent/run", bytes.NewBufferString(`{"prompt":"x","conversationId":"conv-2"}`))
	resp, err := http.DefaultClient.Do(runReq)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var names []string
	scanner := bufio.NewScanner(eventsResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			name := strings.TrimPrefix(line, "event: ")
			names = append(names, name)
			if name == "agent_done" || name == "agent_error" {
				break
			}
		}
	}

	require.Contains(t, names, "agent_done")
	assert.Equal(t, []string{"agent_progress", "agent_progress", "agent_done"}, names)
}

func contextWithTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
